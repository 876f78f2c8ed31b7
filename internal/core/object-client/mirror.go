package objectclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/google/uuid"

	"github.com/markdave123-py/Rentora/internal/core"
	"github.com/markdave123-py/Rentora/internal/models"
)

// Mirror copies inbound chat media into object storage so listing media
// outlive transport-scoped file ids. A nil Mirror keeps transport references.
type Mirror struct {
	obj    core.ObjectClient
	prefix string
}

func NewMirror(obj core.ObjectClient) *Mirror {
	return &Mirror{obj: obj, prefix: "listings/media"}
}

// Enabled reports whether media should be mirrored at all.
func (m *Mirror) Enabled() bool { return m != nil && m.obj != nil }

// Store uploads one media body and returns a reference pointing at the stored copy.
func (m *Mirror) Store(ctx context.Context, body io.Reader, contentType string, kind models.MediaKind) (models.MediaRef, error) {
	if !m.Enabled() {
		return models.MediaRef{}, fmt.Errorf("media mirror disabled")
	}
	key := fmt.Sprintf("%s/%s/%s%s", m.prefix, kind, uuid.NewString(), extensionFor(contentType, kind))
	url, err := m.obj.UploadFile(ctx, key, body, contentType)
	if err != nil {
		return models.MediaRef{}, err
	}
	return models.MediaRef{Reference: url, Kind: kind}, nil
}

// Discard deletes the stored copies among refs. References the mirror did not
// create, such as platform file ids, are left alone.
func (m *Mirror) Discard(ctx context.Context, refs []models.MediaRef) error {
	if !m.Enabled() {
		return nil
	}
	var errs []error
	for _, r := range refs {
		key, ok := m.keyOf(r.Reference)
		if !ok {
			continue
		}
		if err := m.obj.DeleteFile(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// keyOf recovers the object key from a URL returned by Store.
func (m *Mirror) keyOf(reference string) (string, bool) {
	if !strings.HasPrefix(reference, "http://") && !strings.HasPrefix(reference, "https://") {
		return "", false
	}
	i := strings.Index(reference, "/"+m.prefix+"/")
	if i < 0 {
		return "", false
	}
	return reference[i+1:], true
}

func extensionFor(contentType string, kind models.MediaKind) string {
	base, _, _ := mime.ParseMediaType(contentType)
	switch base {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "video/mp4":
		return ".mp4"
	case "application/pdf":
		return ".pdf"
	}
	if exts, _ := mime.ExtensionsByType(base); len(exts) > 0 {
		return exts[0]
	}
	switch kind {
	case models.MediaImage:
		return ".jpg"
	case models.MediaVideo:
		return ".mp4"
	}
	return "." + strings.ToLower(string(kind))
}
