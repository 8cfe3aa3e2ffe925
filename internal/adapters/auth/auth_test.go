package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/providers"
	"github.com/zatekoja/Readmissionriskdashboard/backend/pkg/config"
	apperrors "github.com/zatekoja/Readmissionriskdashboard/backend/pkg/errors"
)

func TestJWTAuthenticator_Resolve(t *testing.T) {
	a := NewJWTAuthenticator(&config.AuthConfig{Mode: "jwt", SigningKey: "secret", Issuer: "idp", Audience: "dashboard"})

	token, err := a.Issue("user-1", "u1@example.com", time.Hour)
	require.NoError(t, err)

	principal, err := a.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", principal.ID)
	assert.Equal(t, "u1@example.com", principal.Email)
}

func TestJWTAuthenticator_Rejects(t *testing.T) {
	a := NewJWTAuthenticator(&config.AuthConfig{Mode: "jwt", SigningKey: "secret", Issuer: "idp"})

	other := NewJWTAuthenticator(&config.AuthConfig{Mode: "jwt", SigningKey: "other", Issuer: "idp"})
	forged, err := other.Issue("user-1", "", time.Hour)
	require.NoError(t, err)

	wrongIssuer := NewJWTAuthenticator(&config.AuthConfig{Mode: "jwt", SigningKey: "secret", Issuer: "someone-else"})
	misissued, err := wrongIssuer.Issue("user-1", "", time.Hour)
	require.NoError(t, err)

	expired, err := a.Issue("user-1", "", -time.Minute)
	require.NoError(t, err)

	noSubject, err := a.Issue("", "", time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong key":    forged,
		"wrong issuer": misissued,
		"expired":      expired,
		"no subject":   noSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Resolve(context.Background(), token)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnauthorized))
		})
	}
}

func TestDevSessionProvider_SignInAndOut(t *testing.T) {
	ctx := context.Background()
	p := NewDevSessionProvider()

	var events []providers.SessionEvent
	unsubscribe := p.OnChange(func(e providers.SessionEvent) { events = append(events, e) })

	_, _, err := p.SignIn(ctx, DemoEmail, "wrong")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnauthorized))

	token, principal, err := p.SignIn(ctx, " Demo@Example.com ", DemoPassword)
	require.NoError(t, err)
	assert.Equal(t, "demo-user", principal.ID)

	resolved, err := p.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, principal.ID, resolved.ID)

	require.NoError(t, p.SignOut(ctx, token))
	_, err = p.Resolve(ctx, token)
	assert.Error(t, err)

	require.Len(t, events, 2)
	assert.NotNil(t, events[0].Principal)
	assert.Nil(t, events[1].Principal)
	assert.Equal(t, "demo-user", events[1].UserID)

	unsubscribe()
	unsubscribe()
	_, _, err = p.SignIn(ctx, DemoEmail, DemoPassword)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestDevSessionProvider_SignUp(t *testing.T) {
	ctx := context.Background()
	p := NewDevSessionProvider()

	token, principal, err := p.SignUp(ctx, "new@example.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, principal.ID)

	resolved, err := p.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", resolved.Email)

	_, _, err = p.SignUp(ctx, "new@example.com", "secret1")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))

	_, _, err = p.SignUp(ctx, "bad-email", "secret1")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, _, err = p.SignUp(ctx, "short@example.com", "123")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}
