package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/providers"
	"github.com/zatekoja/Readmissionriskdashboard/backend/pkg/config"
	apperrors "github.com/zatekoja/Readmissionriskdashboard/backend/pkg/errors"
)

// Claims are the token claims the dashboard reads.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// JWTAuthenticator validates HS256 bearer tokens issued by the external
// identity provider.
type JWTAuthenticator struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

// NewJWTAuthenticator creates an authenticator from the auth configuration
func NewJWTAuthenticator(cfg *config.AuthConfig) *JWTAuthenticator {
	return &JWTAuthenticator{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		now:        time.Now,
	}
}

var _ providers.Authenticator = (*JWTAuthenticator)(nil)

// Resolve validates the token and returns its subject
func (a *JWTAuthenticator) Resolve(ctx context.Context, token string) (*entities.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.signingKey, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, apperrors.NewUnauthorizedError("invalid token")
	}
	if claims.Subject == "" {
		return nil, apperrors.NewUnauthorizedError("token has no subject")
	}

	return &entities.Principal{ID: claims.Subject, Email: claims.Email}, nil
}

// Issue signs a token for subject. It exists for tooling and tests; the
// dashboard itself never mints tokens in jwt mode.
func (a *JWTAuthenticator) Issue(subject, email string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
	}
	if a.audience != "" {
		claims.Audience = jwt.ClaimStrings{a.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
