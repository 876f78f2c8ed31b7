package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	objectclient "github.com/markdave123-py/Rentora/internal/core/object-client"
	"github.com/markdave123-py/Rentora/internal/models"
)

// MaxDownload caps the size of media and documents pulled from a platform.
const MaxDownload = 20 << 20

// Media downloads platform files and, when a mirror is configured, copies
// them into object storage.
type Media struct {
	http   *resty.Client
	mirror *objectclient.Mirror
	log    *slog.Logger
}

func NewMedia(client *resty.Client, mirror *objectclient.Mirror, logger *slog.Logger) *Media {
	if client == nil {
		client = resty.New().SetTimeout(60 * time.Second)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Media{http: client, mirror: mirror, log: logger.With("component", "media")}
}

// Mirroring reports whether inbound media should be copied to storage.
func (m *Media) Mirroring() bool { return m != nil && m.mirror.Enabled() }

// Download fetches url with optional headers and returns the body and its
// content type.
func (m *Media) Download(ctx context.Context, url string, headers map[string]string) ([]byte, string, error) {
	resp, err := m.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.StatusCode() != http.StatusOK {
		return nil, "", fmt.Errorf("download: unexpected status %d", resp.StatusCode())
	}

	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(body, MaxDownload+1))
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	if n > MaxDownload {
		return nil, "", fmt.Errorf("download: file larger than %d bytes", MaxDownload)
	}
	return buf.Bytes(), resp.Header().Get("Content-Type"), nil
}

// Keep mirrors data when mirroring is on; otherwise it returns fallback, the
// platform's own reference.
func (m *Media) Keep(ctx context.Context, data []byte, contentType string, kind models.MediaKind, fallback string) models.MediaRef {
	ref := models.MediaRef{Reference: fallback, Kind: kind}
	if !m.Mirroring() {
		return ref
	}
	stored, err := m.mirror.Store(ctx, bytes.NewReader(data), contentType, kind)
	if err != nil {
		m.log.Warn("media mirror failed, keeping platform reference", "kind", kind, "err", err)
		return ref
	}
	return stored
}
