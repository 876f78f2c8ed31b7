package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"strings"

	"github.com/markdave123-py/Rentora/internal/core"
	"github.com/markdave123-py/Rentora/internal/core/extractor"
	objectclient "github.com/markdave123-py/Rentora/internal/core/object-client"
	"github.com/markdave123-py/Rentora/internal/models"
)

// ErrUnsupportedBrochure is returned for documents that are not brochures.
var ErrUnsupportedBrochure = errors.New("unsupported brochure format")

// BrochureService turns a listing brochure sent by a publisher into the text
// of a listing description and, when mirroring is on, archives the original.
type BrochureService struct {
	docs   core.DocumentExtractor
	mirror *objectclient.Mirror
	log    *slog.Logger
}

func NewBrochureService(docs core.DocumentExtractor, mirror *objectclient.Mirror, logger *slog.Logger) *BrochureService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrochureService{docs: docs, mirror: mirror, log: logger.With("component", "brochures")}
}

// ContentType resolves the document type, falling back to the file extension.
func ContentType(contentType, fileName string) string {
	if base, _, err := mime.ParseMediaType(contentType); err == nil && base != "application/octet-stream" {
		return base
	}
	ext := strings.ToLower(path.Ext(strings.TrimSpace(fileName)))
	switch ext {
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	case ".odt":
		return "application/vnd.oasis.opendocument.text"
	case ".rtf":
		return "application/rtf"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		base, _, _ := mime.ParseMediaType(t)
		return base
	}
	return contentType
}

// Supports reports whether the document can be read as a brochure.
func (s *BrochureService) Supports(contentType, fileName string) bool {
	return s != nil && s.docs != nil && extractor.Supports(ContentType(contentType, fileName))
}

// Read extracts the brochure text. The returned reference is set only when the
// original was archived.
func (s *BrochureService) Read(ctx context.Context, data []byte, contentType, fileName string) (string, *models.MediaRef, error) {
	ct := ContentType(contentType, fileName)
	if !s.Supports(ct, fileName) {
		return "", nil, ErrUnsupportedBrochure
	}
	text, err := s.docs.ExtractText(ctx, data, ct)
	if err != nil {
		return "", nil, fmt.Errorf("extract brochure: %w", err)
	}

	var ref *models.MediaRef
	if s.mirror.Enabled() {
		stored, err := s.mirror.Store(ctx, bytes.NewReader(data), ct, models.MediaDocument)
		if err != nil {
			s.log.Warn("brochure archive failed", "file", fileName, "err", err)
		} else {
			ref = &stored
		}
	}
	return strings.TrimSpace(text), ref, nil
}
