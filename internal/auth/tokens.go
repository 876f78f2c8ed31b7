// Package auth issues and verifies the HS256 tokens used by the operator API
// and the publisher fast-login links.
package auth

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by every token this service signs.
type Claims struct {
	Role  string `json:"role,omitempty"`
	Phone string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and parses tokens with a shared secret.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret string, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: []byte(secret), now: now}
}

// Issue signs a token for subject that expires after ttl.
func (i *Issuer) Issue(subject, role, phone string, ttl time.Duration) (string, error) {
	if len(i.secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	now := i.now()
	claims := Claims{
		Role:  role,
		Phone: phone,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature and expiry and returns the claims.
func (i *Issuer) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// LoginLinks builds short-lived fast-login URLs into the web app.
type LoginLinks struct {
	issuer      *Issuer
	frontendURL string
	ttl         time.Duration
}

func NewLoginLinks(issuer *Issuer, frontendURL string) *LoginLinks {
	return &LoginLinks{issuer: issuer, frontendURL: frontendURL, ttl: 5 * time.Minute}
}

// FastLoginURL returns FRONTEND_URL/login?token=<jwt> for the account.
func (l *LoginLinks) FastLoginURL(accountID, role, phone string) (string, error) {
	if l.frontendURL == "" {
		return "", errors.New("frontend url is not configured")
	}
	tok, err := l.issuer.Issue(accountID, role, phone, l.ttl)
	if err != nil {
		return "", err
	}
	return l.frontendURL + "/login?token=" + url.QueryEscape(tok), nil
}
