package extractor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"strings"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/Rentora/internal/core"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// SupportedTypes lists the brochure formats accepted from publishers.
var SupportedTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.oasis.opendocument.text":                                 true,
	"application/rtf": true,
	"text/rtf":        true,
}

// DocconvExtractor converts listing brochures to plain text.
type DocconvExtractor struct {
	useReadability bool
	maxChars       int
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability, maxChars: 4000}
}

// Supports reports whether contentType is a brochure format.
func Supports(contentType string) bool {
	base, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		base = contentType
	}
	return SupportedTypes[strings.ToLower(base)]
}

// ExtractText returns the document body with blank lines collapsed, capped so
// the result fits a single NLU prompt.
func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	if !Supports(contentType) {
		return "", fmt.Errorf("unsupported document type %q", contentType)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{text: res.Body}
	}()

	var r result
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r = <-done:
	}
	if r.err != nil {
		slog.Warn("docconv extraction failed", "content_type", contentType, "err", r.err)
		return "", fmt.Errorf("docconv: %w", r.err)
	}

	var lines []string
	for _, line := range strings.Split(r.text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	text := strings.Join(lines, "\n")
	if text == "" {
		return "", fmt.Errorf("docconv: document has no text")
	}
	if len([]rune(text)) > e.maxChars {
		text = string([]rune(text)[:e.maxChars])
	}
	return text, nil
}
