// Package session hands out editing sessions. A session binds a client to
// the content version it started from; the session token is a signed,
// stateless handle, so any number of sessions may coexist per design.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/lordrhodos/apicurio-studio/pkg/designid"
)

const (
	// MaxSecretLength is the number of secret characters kept on a session.
	MaxSecretLength = 64

	issuer = "designhub"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid session token")

// Session is an editing session. It is never persisted.
type Session struct {
	ID          string      `json:"sessionId"`
	Token       string      `json:"token"`
	DesignID    designid.ID `json:"designId"`
	User        string      `json:"user"`
	Secret      string      `json:"-"`
	BaseVersion int64       `json:"contentVersion"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Claims are the signed contents of a session token.
type Claims struct {
	jwt.RegisteredClaims
	DesignID    designid.ID `json:"did"`
	BaseVersion int64       `json:"ver"`
}

// Coordinator creates and verifies editing sessions.
type Coordinator struct {
	key    []byte
	logger hclog.Logger
	now    func() time.Time
}

// NewCoordinator returns a Coordinator signing tokens with key.
func NewCoordinator(key []byte, logger hclog.Logger) (*Coordinator, error) {
	if len(key) == 0 {
		return nil, errors.New("session signing key is required")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Coordinator{
		key:    key,
		logger: logger.Named("session"),
		now:    time.Now,
	}, nil
}

// CreateSession opens a session for user on designID at baseVersion.
func (c *Coordinator) CreateSession(designID designid.ID, user, secret string, baseVersion int64) (*Session, error) {
	if designID.IsZero() {
		return nil, errors.New("design id is required")
	}
	if user == "" {
		return nil, errors.New("user is required")
	}
	if len(secret) > MaxSecretLength {
		secret = secret[:MaxSecretLength]
	}

	now := c.now().UTC()
	s := &Session{
		ID:          uuid.New().String(),
		DesignID:    designID,
		User:        user,
		Secret:      secret,
		BaseVersion: baseVersion,
		CreatedAt:   now,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       s.ID,
			Issuer:   issuer,
			Subject:  user,
			IssuedAt: jwt.NewNumericDate(now),
		},
		DesignID:    designID,
		BaseVersion: baseVersion,
	})
	token, err := t.SignedString(c.key)
	if err != nil {
		return nil, fmt.Errorf("error signing session token: %w", err)
	}
	s.Token = token

	c.logger.Debug("created editing session",
		"session_id", s.ID,
		"design_id", designID,
		"user", user,
		"base_version", baseVersion,
	)
	return s, nil
}

// ParseToken verifies token and returns the session it describes. The
// returned session carries no secret.
func (c *Coordinator) ParseToken(token string) (*Session, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.key, nil
	}, jwt.WithIssuer(issuer), jwt.WithIssuedAt())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.ID == "" || claims.DesignID.IsZero() {
		return nil, ErrInvalidToken
	}

	s := &Session{
		ID:          claims.ID,
		Token:       token,
		DesignID:    claims.DesignID,
		User:        claims.Subject,
		BaseVersion: claims.BaseVersion,
	}
	if claims.IssuedAt != nil {
		s.CreatedAt = claims.IssuedAt.Time.UTC()
	}
	return s, nil
}
