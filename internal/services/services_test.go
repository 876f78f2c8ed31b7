package services

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/markdave123-py/Rentora/internal/core/memstore"
	objectclient "github.com/markdave123-py/Rentora/internal/core/object-client"
	"github.com/markdave123-py/Rentora/internal/models"
	"github.com/markdave123-py/Rentora/internal/testfixtures"
)

func newAccounts(t *testing.T) (*AccountService, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return NewAccountService(store, testfixtures.NewIDGenerator(0x100).NextFunc(), "972", nil), store
}

func TestEnsureCreatesOnce(t *testing.T) {
	t.Parallel()
	svc, _ := newAccounts(t)
	ctx := context.Background()

	a, err := svc.Ensure(ctx, "tg:1", "Dana")
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.Ensure(ctx, "tg:1", "Dana")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != b.ID {
		t.Fatalf("ensure created two accounts: %s %s", a.ID, b.ID)
	}
}

func TestLinkByEmailReplacesAnonymousAccount(t *testing.T) {
	t.Parallel()
	svc, store := newAccounts(t)
	ctx := context.Background()

	anon, _ := svc.Ensure(ctx, "tg:1", "Dana")
	if err := store.CreateAccount(ctx, &models.Account{ID: "reg", Email: "dana@example.com", Role: models.RoleLandlord}); err != nil {
		t.Fatal(err)
	}

	linked, err := svc.LinkByEmail(ctx, "Dana@Example.com", "tg:1")
	if err != nil || linked == nil {
		t.Fatalf("link: %v %v", linked, err)
	}
	if linked.ID != "reg" || linked.ChatIdentity != "tg:1" {
		t.Fatalf("unexpected link result %+v", linked)
	}
	if gone, _ := store.GetAccount(ctx, anon.ID); gone != nil {
		t.Fatal("anonymous account should be deleted")
	}

	missing, err := svc.LinkByEmail(ctx, "nobody@example.com", "tg:1")
	if err != nil || missing != nil {
		t.Fatalf("unknown email: %v %v", missing, err)
	}
}

func TestResolveOwnerChatByPhone(t *testing.T) {
	t.Parallel()
	svc, store := newAccounts(t)
	ctx := context.Background()

	_ = store.CreateAccount(ctx, &models.Account{ID: "owner", Name: "Moshe", Phone: "0501234567"})
	_ = store.CreateAccount(ctx, &models.Account{ID: "chatty", Phone: "0501234567", ChatIdentity: "tg:9"})
	listing := &models.Listing{ID: "l1", OwnerID: "owner"}

	chat, owner, err := svc.ResolveOwnerChat(ctx, listing)
	if err != nil {
		t.Fatal(err)
	}
	if chat != "tg:9" || owner == nil || owner.ID != "owner" {
		t.Fatalf("got chat %q owner %+v", chat, owner)
	}
	cached, _ := store.GetAccount(ctx, "owner")
	if cached.ChatIdentity != "tg:9" {
		t.Fatalf("chat identity not cached on owner: %+v", cached)
	}

	chat, owner, err = svc.ResolveOwnerChat(ctx, &models.Listing{ID: "l2", OwnerID: "ghost"})
	if err != nil || chat != "" || owner != nil {
		t.Fatalf("unknown owner: %q %+v %v", chat, owner, err)
	}
}

func TestEnsureKeysWhatsAppAccountsByPhone(t *testing.T) {
	t.Parallel()
	svc, store := newAccounts(t)
	ctx := context.Background()

	wa, _ := svc.Ensure(ctx, "wa:972521112222", "Avi")
	tg, _ := svc.Ensure(ctx, "tg:5", "Dana")
	if wa.Phone != "972521112222" || tg.Phone != "" {
		t.Fatalf("phones = %q %q", wa.Phone, tg.Phone)
	}

	_ = store.CreateAccount(ctx, &models.Account{ID: "owner", Phone: "052-111-2222"})
	chat, owner, err := svc.ResolveOwnerChat(ctx, &models.Listing{ID: "l1", OwnerID: "owner"})
	if err != nil || chat != "wa:972521112222" || owner == nil || owner.ID != "owner" {
		t.Fatalf("got chat %q owner %+v err %v", chat, owner, err)
	}
}

type stubExtractor struct{ text string }

func (s stubExtractor) ExtractText(context.Context, []byte, string) (string, error) {
	return s.text, nil
}

type memObjects struct{ keys []string }

func (m *memObjects) UploadFile(_ context.Context, key string, data io.Reader, _ string) (string, error) {
	_, _ = io.Copy(io.Discard, data)
	m.keys = append(m.keys, key)
	return "https://cdn.example.com/" + key, nil
}

func (m *memObjects) DeleteFile(context.Context, string) error { return nil }

func TestBrochureRead(t *testing.T) {
	t.Parallel()
	objs := &memObjects{}
	svc := NewBrochureService(stubExtractor{text: "  דירת 3 חדרים בחיפה  "}, objectclient.NewMirror(objs), nil)

	if svc.Supports("image/jpeg", "a.jpg") {
		t.Fatal("image accepted as brochure")
	}
	if _, _, err := svc.Read(context.Background(), []byte("x"), "text/plain", "notes.txt"); !errors.Is(err, ErrUnsupportedBrochure) {
		t.Fatalf("expected unsupported error, got %v", err)
	}

	text, ref, err := svc.Read(context.Background(), []byte("%PDF"), "application/octet-stream", "flat.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if text != "דירת 3 חדרים בחיפה" {
		t.Fatalf("text = %q", text)
	}
	if ref == nil || ref.Kind != models.MediaDocument || len(objs.keys) != 1 {
		t.Fatalf("brochure not archived: %+v %v", ref, objs.keys)
	}
}

func TestContentTypeFromExtension(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"a.docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"b.DOC":  "application/msword",
		"c.rtf":  "application/rtf",
	}
	for name, want := range cases {
		if got := ContentType("", name); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}
