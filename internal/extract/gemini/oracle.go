// Package gemini implements the extraction oracle on Google's Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/dvloznov/invoice-agent/internal/extract"
	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/logger"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// Config configures the Gemini oracle. An empty APIKey falls back to the
// environment the genai client reads (GOOGLE_API_KEY or Vertex AI settings).
type Config struct {
	APIKey string
	Model  string
}

// generator is the subset of *genai.Models the oracle uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Oracle sends invoice images and PDFs inline to Gemini.
type Oracle struct {
	models generator
	model  string
}

// New creates a Gemini-backed oracle.
func New(ctx context.Context, cfg Config) (*Oracle, error) {
	cc := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	if cfg.APIKey != "" {
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini.New: create genai client: %w", err)
	}

	return newOracle(client.Models, cfg.Model), nil
}

func newOracle(models generator, model string) *Oracle {
	if model == "" {
		model = DefaultModel
	}
	return &Oracle{models: models, model: model}
}

// Extract implements extract.Oracle.
func (o *Oracle) Extract(ctx context.Context, doc extract.Document) (invoice.Fields, error) {
	log := logger.FromContext(ctx)

	if doc.Kind != extract.KindImage && doc.Kind != extract.KindPDF {
		return invoice.Fields{}, extract.Fail(extract.ReasonUnsupported, fmt.Errorf("document kind %q", doc.Kind))
	}
	if len(doc.Bytes) == 0 {
		return invoice.Fields{}, extract.Fail(extract.ReasonUnsupported, errors.New("gemini oracle needs the document bytes"))
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: extract.Prompt()},
				{
					InlineData: &genai.Blob{
						MIMEType: doc.MIME(),
						Data:     doc.Bytes,
					},
				},
			},
		},
	}

	start := time.Now()
	resp, err := o.models.GenerateContent(ctx, o.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return invoice.Fields{}, extract.Fail(extract.ReasonUnreachable, fmt.Errorf("generate content: %w", err))
	}

	rawText := resp.Text()
	log.Debug().
		Str("model", o.model).
		Str("kind", string(doc.Kind)).
		Int("bytes", len(doc.Bytes)).
		Dur("elapsed", time.Since(start)).
		Msg("Gemini extraction finished")

	if rawText == "" {
		return invoice.Fields{}, extract.Fail(extract.ReasonMalformed, errors.New("empty response from model"))
	}

	return extract.Decode(rawText)
}

var _ extract.Oracle = (*Oracle)(nil)
