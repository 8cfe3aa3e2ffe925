package auth

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/providers"
	apperrors "github.com/zatekoja/Readmissionriskdashboard/backend/pkg/errors"
)

// Demo credentials accepted in development mode.
const (
	DemoEmail    = "demo@example.com"
	DemoPassword = "demo123"
)

type devUser struct {
	principal entities.Principal
	password  string
}

// DevSessionProvider is the development stand-in for the identity
// provider: an in-memory user list and opaque session tokens.
type DevSessionProvider struct {
	mu        sync.RWMutex
	users     map[string]devUser
	sessions  map[string]entities.Principal
	listeners map[int]func(providers.SessionEvent)
	nextID    int
}

// NewDevSessionProvider creates a provider seeded with the demo user
func NewDevSessionProvider() *DevSessionProvider {
	p := &DevSessionProvider{
		users:     make(map[string]devUser),
		sessions:  make(map[string]entities.Principal),
		listeners: make(map[int]func(providers.SessionEvent)),
	}
	p.users[DemoEmail] = devUser{
		principal: entities.Principal{ID: "demo-user", Email: DemoEmail},
		password:  DemoPassword,
	}
	return p
}

var (
	_ providers.Authenticator   = (*DevSessionProvider)(nil)
	_ providers.SessionObserver = (*DevSessionProvider)(nil)
)

// SignIn checks credentials and opens a session
func (p *DevSessionProvider) SignIn(ctx context.Context, email, password string) (string, *entities.Principal, error) {
	email = normalizeEmail(email)

	p.mu.RLock()
	user, ok := p.users[email]
	p.mu.RUnlock()

	if !ok || subtle.ConstantTimeCompare([]byte(user.password), []byte(password)) != 1 {
		return "", nil, apperrors.NewUnauthorizedError("invalid email or password")
	}
	return p.openSession(user.principal)
}

// SignUp registers a new user and signs them in
func (p *DevSessionProvider) SignUp(ctx context.Context, email, password string) (string, *entities.Principal, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return "", nil, apperrors.NewValidationError("a valid email is required")
	}
	if len(password) < 6 {
		return "", nil, apperrors.NewValidationError("password must be at least 6 characters")
	}

	p.mu.Lock()
	if _, exists := p.users[email]; exists {
		p.mu.Unlock()
		return "", nil, apperrors.NewConflictError("an account with this email already exists")
	}
	user := devUser{
		principal: entities.Principal{ID: uuid.New().String(), Email: email},
		password:  password,
	}
	p.users[email] = user
	p.mu.Unlock()

	return p.openSession(user.principal)
}

// SignOut ends the session; unknown tokens are ignored
func (p *DevSessionProvider) SignOut(ctx context.Context, token string) error {
	p.mu.Lock()
	principal, ok := p.sessions[token]
	delete(p.sessions, token)
	p.mu.Unlock()

	if ok {
		p.notify(providers.SessionEvent{Token: token, UserID: principal.ID})
	}
	return nil
}

// Resolve returns the user of an open session
func (p *DevSessionProvider) Resolve(ctx context.Context, token string) (*entities.Principal, error) {
	p.mu.RLock()
	principal, ok := p.sessions[token]
	p.mu.RUnlock()

	if !ok {
		return nil, apperrors.NewUnauthorizedError("no active session")
	}
	return &principal, nil
}

// OnChange registers callback for sign-in and sign-out events
func (p *DevSessionProvider) OnChange(callback func(providers.SessionEvent)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = callback
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *DevSessionProvider) openSession(principal entities.Principal) (string, *entities.Principal, error) {
	token := uuid.New().String()

	p.mu.Lock()
	p.sessions[token] = principal
	p.mu.Unlock()

	p.notify(providers.SessionEvent{Token: token, UserID: principal.ID, Principal: &principal})
	return token, &principal, nil
}

func (p *DevSessionProvider) notify(event providers.SessionEvent) {
	p.mu.RLock()
	listeners := make([]func(providers.SessionEvent), 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.RUnlock()

	for _, l := range listeners {
		l(event)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
