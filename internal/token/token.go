// Package token issues and verifies the cookie pair used for authentication:
// an HttpOnly JWT access cookie plus a script-readable CSRF cookie whose value
// is embedded in the token, so mutating requests can prove both cookie
// possession and header knowledge (double submit).
package token

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// AccessCookie carries the signed JWT; never exposed to scripts.
	AccessCookie = "access_token"
	// CSRFCookie carries the CSRF value; readable by the client so it can be
	// echoed back in the CSRFHeader on state-changing requests.
	CSRFCookie = "csrf_access_token"
	// CSRFHeader is the header mutating requests must carry.
	CSRFHeader = "X-CSRF-TOKEN"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims for an access token.
type Claims struct {
	UserID int    `json:"uid"`
	CSRF   string `json:"csrf"`
	jwt.RegisteredClaims
}

// Manager mints and parses access tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl}
}

// TTL returns the access token lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Mint creates a signed access token for the user together with its CSRF value.
func (m *Manager) Mint(userID int) (access, csrf string, err error) {
	now := time.Now().UTC()
	csrf = uuid.NewString()
	claims := Claims{
		UserID: userID,
		CSRF:   csrf,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	access, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", fmt.Errorf("token mint: %w", err)
	}
	return access, csrf, nil
}

// Parse verifies the signature and expiry and returns the claims.
func (m *Manager) Parse(access string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(access, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Cookies builds the access/CSRF cookie pair for a freshly minted token.
func (m *Manager) Cookies(access, csrf string) (*http.Cookie, *http.Cookie) {
	maxAge := int(m.ttl / time.Second)
	return &http.Cookie{
			Name:     AccessCookie,
			Value:    access,
			Path:     "/",
			MaxAge:   maxAge,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		}, &http.Cookie{
			Name:     CSRFCookie,
			Value:    csrf,
			Path:     "/",
			MaxAge:   maxAge,
			HttpOnly: false,
			SameSite: http.SameSiteLaxMode,
		}
}

// ClearCookies builds an expired cookie pair for logout.
func ClearCookies() (*http.Cookie, *http.Cookie) {
	return &http.Cookie{Name: AccessCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true},
		&http.Cookie{Name: CSRFCookie, Value: "", Path: "/", MaxAge: -1}
}
