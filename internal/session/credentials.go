package session

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

// Session holds the identity the auth flow established for a profile. The
// chat core treats it as read-only: it is created on login, destroyed on
// logout, and the transport must tear its socket down when it goes away.
type Session struct {
	UserID    string `json:"user_id"`
	AuthToken string `json:"access_token"`
}

// Load reads the credentials file for a profile. A missing file means the
// user is logged out; that is reported as an error the caller can branch on
// with os.IsNotExist.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if s.UserID == "" || s.AuthToken == "" {
		return nil, fmt.Errorf("credentials missing user_id or access_token")
	}
	return &s, nil
}

// Token returns the bearer token, or "" on a nil session. Satisfies the
// token source contract of the api and transport packages.
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	return s.AuthToken
}

// Expired reports whether the bearer token carries an exp claim in the past.
// The signature is not verified here; only the backend holds the key. Tokens
// that do not parse as JWTs, or carry no exp claim, are treated as not
// expired and left for the backend to reject.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.AuthToken == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AuthToken, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}
