package providers

import (
	"context"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
)

// Authenticator resolves a bearer credential into the signed-in user.
type Authenticator interface {
	Resolve(ctx context.Context, token string) (*entities.Principal, error)
}

// SessionEvent is delivered to OnChange subscribers. Principal is nil after
// a sign-out.
type SessionEvent struct {
	Token     string
	UserID    string
	Principal *entities.Principal
}

// SessionObserver is implemented by auth capabilities that can report
// sign-in and sign-out.
type SessionObserver interface {
	OnChange(callback func(SessionEvent)) (unsubscribe func())
}
