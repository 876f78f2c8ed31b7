package extractor

import (
	"context"
	"strings"
	"testing"
)

func TestSupports(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"application/pdf":                         true,
		"application/rtf; charset=utf-8":          true,
		"APPLICATION/MSWORD":                      true,
		"image/jpeg":                              false,
		"application/zip":                         false,
		"application/vnd.oasis.opendocument.text": true,
	}
	for ct, want := range cases {
		if got := Supports(ct); got != want {
			t.Errorf("Supports(%q) = %v, want %v", ct, got, want)
		}
	}
}

func TestExtractTextRejectsUnsupported(t *testing.T) {
	t.Parallel()

	_, err := NewDocconvExtractor(false).ExtractText(context.Background(), []byte("x"), "image/png")
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestExtractTextHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDocconvExtractor(false).ExtractText(ctx, []byte("%PDF-1.4"), "application/pdf"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
