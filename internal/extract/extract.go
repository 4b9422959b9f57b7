// Package extract defines the contract for turning an invoice document into
// raw invoice fields, plus the helpers shared by every oracle backend.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dvloznov/invoice-agent/internal/invoice"
)

// Kind is the shape of an uploaded document.
type Kind string

const (
	KindImage Kind = "image"
	KindPDF   Kind = "pdf"
)

// Document is the input handed to an Oracle. Bytes is preferred; URL is
// used by backends that can fetch the file themselves.
type Document struct {
	Kind     Kind
	Bytes    []byte
	URL      string
	MIMEType string
	FileName string
}

// Oracle extracts invoice fields from a document.
type Oracle interface {
	Extract(ctx context.Context, doc Document) (invoice.Fields, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, doc Document) (invoice.Fields, error)

// Extract implements Oracle.
func (f OracleFunc) Extract(ctx context.Context, doc Document) (invoice.Fields, error) {
	return f(ctx, doc)
}

// DetectKind classifies an upload by MIME type, falling back to the file
// extension. Only images and PDFs are accepted.
func DetectKind(mimeType, fileName string) (Kind, bool) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage, true
	case mimeType == "application/pdf":
		return KindPDF, true
	}

	switch strings.ToLower(path.Ext(fileName)) {
	case ".jpg", ".jpeg", ".png", ".webp", ".heic":
		return KindImage, true
	case ".pdf":
		return KindPDF, true
	}
	return "", false
}

// MIME returns the document MIME type, inferring a default from Kind.
func (d Document) MIME() string {
	if d.MIMEType != "" {
		return d.MIMEType
	}
	if d.Kind == KindPDF {
		return "application/pdf"
	}
	return "image/jpeg"
}

// ErrExtraction matches every *Failure.
var ErrExtraction = errors.New("extraction failed")

// Reason classifies an extraction failure.
type Reason string

const (
	ReasonUnreachable Reason = "unreachable"
	ReasonMalformed   Reason = "malformed"
	ReasonNoTextLayer Reason = "no_text_layer"
	ReasonUnsupported Reason = "unsupported"
)

// Failure is returned by oracles when no fields could be produced.
type Failure struct {
	Reason Reason
	Err    error
}

// Fail wraps err as a Failure with the given reason.
func Fail(reason Reason, err error) error {
	return &Failure{Reason: reason, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("extraction failed (%s)", f.Reason)
	}
	return fmt.Sprintf("extraction failed (%s): %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Is reports ErrExtraction as a match.
func (f *Failure) Is(target error) bool {
	return target == ErrExtraction
}

// ReasonOf returns the failure reason carried by err, or "" if err is not
// an extraction failure.
func ReasonOf(err error) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ""
}
