package objectclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/markdave123-py/Rentora/internal/models"
)

type recordingObjects struct {
	key, contentType string
	body             []byte
	deleted          []string
	err              error
}

func (r *recordingObjects) UploadFile(_ context.Context, key string, data io.Reader, contentType string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.key, r.contentType = key, contentType
	r.body, _ = io.ReadAll(data)
	return "https://cdn.example/" + key, nil
}

func (r *recordingObjects) DeleteFile(_ context.Context, key string) error {
	if r.err != nil {
		return r.err
	}
	r.deleted = append(r.deleted, key)
	return nil
}

func TestMirrorStoreUploadsUnderKindPrefix(t *testing.T) {
	t.Parallel()

	objs := &recordingObjects{}
	ref, err := NewMirror(objs).Store(context.Background(), bytes.NewReader([]byte("jpeg")), "image/jpeg", models.MediaImage)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if ref.Kind != models.MediaImage || !strings.HasPrefix(ref.Reference, "https://cdn.example/listings/media/image/") {
		t.Fatalf("unexpected ref %+v", ref)
	}
	if !strings.HasSuffix(objs.key, ".jpg") || string(objs.body) != "jpeg" {
		t.Fatalf("unexpected upload key=%s body=%q", objs.key, objs.body)
	}
}

func TestMirrorDisabledAndFailing(t *testing.T) {
	t.Parallel()

	var nilMirror *Mirror
	if nilMirror.Enabled() {
		t.Fatal("nil mirror must be disabled")
	}
	if _, err := nilMirror.Store(context.Background(), strings.NewReader(""), "image/png", models.MediaImage); err == nil {
		t.Fatal("expected error from disabled mirror")
	}

	boom := errors.New("s3 down")
	_, err := NewMirror(&recordingObjects{err: boom}).Store(context.Background(), strings.NewReader("x"), "video/mp4", models.MediaVideo)
	if !errors.Is(err, boom) {
		t.Fatalf("expected upload error, got %v", err)
	}
}

func TestMirrorDiscardDeletesOnlyStoredCopies(t *testing.T) {
	t.Parallel()

	objs := &recordingObjects{}
	m := NewMirror(objs)
	ref, err := m.Store(context.Background(), strings.NewReader("png"), "image/png", models.MediaImage)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	refs := []models.MediaRef{
		ref,
		{Reference: "AgACAgQAAxkBAAIB", Kind: models.MediaImage},
		{Reference: "https://elsewhere.example/photo.jpg", Kind: models.MediaImage},
	}
	if err := m.Discard(context.Background(), refs); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if len(objs.deleted) != 1 || objs.deleted[0] != objs.key {
		t.Fatalf("deleted %v, want only %s", objs.deleted, objs.key)
	}

	var nilMirror *Mirror
	if err := nilMirror.Discard(context.Background(), refs); err != nil {
		t.Fatalf("disabled mirror: %v", err)
	}
	boom := errors.New("s3 down")
	if err := NewMirror(&recordingObjects{err: boom}).Discard(context.Background(), refs[:1]); !errors.Is(err, boom) {
		t.Fatalf("expected delete error, got %v", err)
	}
}
