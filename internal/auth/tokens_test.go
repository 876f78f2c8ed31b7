package auth

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/markdave123-py/Rentora/internal/testfixtures"
)

func TestIssueAndParse(t *testing.T) {
	t.Parallel()

	clock := testfixtures.NewClock(time.Time{})
	iss := NewIssuer("secret", clock.NowFunc())

	tok, err := iss.Issue("acc-1", "AGENT", "0501234567", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := iss.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "acc-1" || claims.Role != "AGENT" || claims.Phone != "0501234567" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	clock.Advance(2 * time.Minute)
	if _, err := iss.Parse(tok); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestParseRejectsForeignSecret(t *testing.T) {
	t.Parallel()

	tok, _ := NewIssuer("one", nil).Issue("acc", "", "", time.Hour)
	if _, err := NewIssuer("two", nil).Parse(tok); err == nil {
		t.Fatal("token signed with another secret accepted")
	}
	if _, err := NewIssuer("", nil).Issue("acc", "", "", time.Hour); err == nil {
		t.Fatal("empty secret should not sign")
	}
}

func TestFastLoginURL(t *testing.T) {
	t.Parallel()

	iss := NewIssuer("secret", nil)
	link, err := NewLoginLinks(iss, "https://app.example").FastLoginURL("acc-9", "LANDLORD", "")
	if err != nil {
		t.Fatalf("FastLoginURL: %v", err)
	}
	if !strings.HasPrefix(link, "https://app.example/login?token=") {
		t.Fatalf("unexpected link %s", link)
	}
	u, _ := url.Parse(link)
	claims, err := iss.Parse(u.Query().Get("token"))
	if err != nil || claims.Subject != "acc-9" {
		t.Fatalf("link token invalid: %v %+v", err, claims)
	}
	exp := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time)
	if exp != 5*time.Minute {
		t.Fatalf("fast login ttl = %v", exp)
	}

	if _, err := NewLoginLinks(iss, "").FastLoginURL("acc", "", ""); err == nil {
		t.Fatal("missing frontend url should fail")
	}
}
