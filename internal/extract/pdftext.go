package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// DefaultMinTextChars is the smallest text layer treated as a real one.
// Scanned PDFs usually carry no text or a few stray glyphs.
const DefaultMinTextChars = 50

// PDFText returns the plain text layer of a PDF. A document whose layer has
// fewer than minChars non-space characters fails with ReasonNoTextLayer.
func PDFText(data []byte, minChars int) (text string, err error) {
	// ledongthuc/pdf panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", Fail(ReasonMalformed, fmt.Errorf("read pdf: %v", r))
		}
	}()

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", Fail(ReasonMalformed, fmt.Errorf("open pdf: %w", err))
	}

	var b strings.Builder
	for i := 1; i <= doc.NumPage(); i++ {
		p := doc.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", Fail(ReasonMalformed, fmt.Errorf("page %d: %w", i, err))
		}
		b.WriteString(content)
		b.WriteString("\n")
	}

	text = b.String()
	if visibleChars(text) < minChars {
		return "", Fail(ReasonNoTextLayer, errors.New("pdf has no usable text layer"))
	}
	return text, nil
}

func visibleChars(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
