// Package openai implements the extraction oracle on the OpenAI
// chat-completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/invoice-agent/internal/extract"
	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/logger"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o"
	DefaultTimeout = 60 * time.Second
)

// Config for the OpenAI client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
	MinPDFText  int
	HTTPClient  *http.Client
}

// Client sends images as vision input and PDFs as their text layer.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a client, filling defaults for empty settings.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MinPDFText == 0 {
		cfg.MinPDFText = extract.DefaultMinTextChars
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, httpClient: hc}
}

// Extract implements extract.Oracle.
func (c *Client) Extract(ctx context.Context, doc extract.Document) (invoice.Fields, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	user, err := c.userContent(doc)
	if err != nil {
		return invoice.Fields{}, err
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": extract.Prompt()},
			{"role": "user", "content": user},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		log.Error().Err(err).Str("model", c.cfg.Model).Dur("elapsed", time.Since(start)).Msg("OpenAI request failed")
		return invoice.Fields{}, extract.Fail(extract.ReasonUnreachable, err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return invoice.Fields{}, extract.Fail(extract.ReasonMalformed, fmt.Errorf("decode openai response: %w", err))
	}
	if len(cc.Choices) == 0 {
		return invoice.Fields{}, extract.Fail(extract.ReasonMalformed, errors.New("no choices in openai response"))
	}

	log.Debug().
		Str("model", c.cfg.Model).
		Str("kind", string(doc.Kind)).
		Dur("elapsed", time.Since(start)).
		Msg("OpenAI extraction finished")

	return extract.Decode(cc.Choices[0].Message.Content)
}

// userContent builds the user message: a vision part for images, the
// extracted text layer for PDFs.
func (c *Client) userContent(doc extract.Document) (any, error) {
	switch doc.Kind {
	case extract.KindImage:
		url := doc.URL
		if len(doc.Bytes) > 0 {
			url = "data:" + doc.MIME() + ";base64," + base64.StdEncoding.EncodeToString(doc.Bytes)
		}
		if url == "" {
			return nil, extract.Fail(extract.ReasonUnsupported, errors.New("image has neither bytes nor URL"))
		}
		return []map[string]any{
			{"type": "text", "text": "Extract the invoice fields from this image."},
			{"type": "image_url", "image_url": map[string]any{"url": url}},
		}, nil

	case extract.KindPDF:
		if len(doc.Bytes) == 0 {
			return nil, extract.Fail(extract.ReasonUnsupported, errors.New("pdf extraction needs the document bytes"))
		}
		text, err := extract.PDFText(doc.Bytes, c.cfg.MinPDFText)
		if err != nil {
			return nil, err
		}
		return "Extract the invoice fields from this invoice text:\n\n" + text, nil

	default:
		return nil, extract.Fail(extract.ReasonUnsupported, fmt.Errorf("document kind %q", doc.Kind))
	}
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

var _ extract.Oracle = (*Client)(nil)
