package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	sessionIssuer   = "coverletter"
	sessionLifetime = 30 * 24 * time.Hour
)

var errInvalidSession = errors.New("invalid session token")

// SessionCodec signs the anonymous session id stored in the browser cookie.
type SessionCodec struct {
	secret []byte
	now    func() time.Time
}

// NewSessionCodec requires a secret of at least 16 bytes.
func NewSessionCodec(secret []byte) (*SessionCodec, error) {
	if len(secret) < 16 {
		return nil, errors.New("session secret must be at least 16 bytes")
	}
	return &SessionCodec{secret: secret, now: time.Now}, nil
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return uuid.NewString()
}

// Encode signs sessionID into a cookie value.
func (c *SessionCodec) Encode(sessionID string) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sessionID,
		Issuer:    sessionIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(sessionLifetime)),
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Decode verifies a cookie value and returns the session id it carries.
func (c *SessionCodec) Decode(value string) (string, error) {
	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(value, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidSession, err)
	}
	id := strings.TrimSpace(claims.Subject)
	if id == "" {
		return "", errInvalidSession
	}
	return id, nil
}

// Lifetime is how long an issued cookie stays valid.
func (c *SessionCodec) Lifetime() time.Duration { return sessionLifetime }
