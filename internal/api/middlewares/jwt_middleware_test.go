package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/markdave123-py/Rentora/internal/auth"
)

func TestJWTMiddleware(t *testing.T) {
	t.Parallel()
	issuer := auth.NewIssuer("test-secret", nil)
	operator, _ := issuer.Issue("ops@example.com", "OPERATOR", "", time.Hour)
	publisher, _ := issuer.Issue("acct-1", "LANDLORD", "050", time.Hour)
	expired, _ := issuer.Issue("ops@example.com", "OPERATOR", "", -time.Minute)

	var subject string
	h := JWTMiddleware(issuer, "OPERATOR")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := ClaimsFrom(r.Context())
		if !ok {
			t.Error("claims missing from context")
		}
		subject = c.Subject
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, tc := range []struct {
		name   string
		header string
		code   int
	}{
		{"operator", "Bearer " + operator, http.StatusNoContent},
		{"wrong role", "Bearer " + publisher, http.StatusForbidden},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.code {
			t.Errorf("%s: code = %d, want %d", tc.name, rec.Code, tc.code)
		}
	}
	if subject != "ops@example.com" {
		t.Fatalf("subject = %q", subject)
	}
}
