// Package token mints and verifies the HS256 bearer tokens that carry a
// user's id and roles into the authenticated API.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "edms/pkg/domain-errors"
	authmw "edms/pkg/platform/middleware/auth"
)

// Claims is the payload of an access token.
type Claims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies access tokens for one issuer/audience pair.
type Issuer struct {
	key      []byte
	issuer   string
	audience string
	now      func() time.Time
}

type Option func(*Issuer)

// WithClock overrides the time source used for iat/exp.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

func NewIssuer(signingKey, issuer, audience string, opts ...Option) *Issuer {
	i := &Issuer{
		key:      []byte(signingKey),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue signs a token for userID valid for ttl.
func (i *Issuer) Issue(userID string, roles []string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	now := i.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := t.SignedString(i.key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign access token")
	}
	return signed, nil
}

// Parse verifies signature, issuer, audience and expiry.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
	case err != nil:
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.UserID == "" || claims.UserID != claims.Subject {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// ValidateToken satisfies the bearer-auth middleware.
func (i *Issuer) ValidateToken(raw string) (*authmw.JWTClaims, error) {
	c, err := i.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{UserID: c.UserID, Roles: c.Roles, JTI: c.ID}, nil
}
