// Package intake turns an uploaded invoice file into a pending submission
// waiting for the approver: fetch, extract, normalize, register and ask
// for a decision.
package intake

import (
	"context"
	"fmt"

	"github.com/dvloznov/invoice-agent/internal/extract"
	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

// Upload is an inbound file as announced by the chat transport.
type Upload struct {
	Kind     extract.Kind
	URL      string
	MIMEType string
	FileName string
	Size     int64
}

// Step is a single stage of the intake pipeline.
type Step interface {
	Execute(ctx context.Context, state *State) error
}

// State holds the shared state across all pipeline steps.
type State struct {
	Submitter    pending.Submitter
	Upload       Upload
	Bytes        []byte
	Fields       invoice.Fields
	Record       invoice.Record
	SubmissionID string
}

// Source returns the pending source reference for the upload.
func (s *State) Source() pending.Source {
	return pending.Source{
		URL:      s.Upload.URL,
		Bytes:    s.Bytes,
		MIMEType: s.Upload.MIMEType,
		FileName: s.Upload.FileName,
	}
}

// Pipeline executes a sequence of steps in order and stops at the first
// failure.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("intake step %d failed: %w", i+1, err)
		}
	}
	return nil
}
