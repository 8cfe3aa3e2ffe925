package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/adapters/auth"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/api/handlers"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/providers"
)

func postJSON(handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return w
}

func TestAuthHandler_SignIn(t *testing.T) {
	sessions := auth.NewDevSessionProvider()
	handler := handlers.NewAuthHandler(sessions)

	w := postJSON(handler.SignIn, "/api/auth/signin", `{"email":"demo@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(handler.SignIn, "/api/auth/signin", `{"email":" Demo@Example.com ","password":"demo123"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	decode(t, w.Body, &response)
	assert.NotEmpty(t, response.Token)
	assert.Equal(t, "demo-user", response.User.ID)

	principal, err := sessions.Resolve(t.Context(), response.Token)
	require.NoError(t, err)
	assert.Equal(t, "demo-user", principal.ID)

	assert.Equal(t, http.StatusBadRequest, postJSON(handler.SignIn, "/api/auth/signin", `{`).Code)
}

func TestAuthHandler_SignUp(t *testing.T) {
	handler := handlers.NewAuthHandler(auth.NewDevSessionProvider())

	w := postJSON(handler.SignUp, "/api/auth/signup", `{"email":"nurse@ward.org","password":"secret1"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(handler.SignUp, "/api/auth/signup", `{"email":"nurse@ward.org","password":"secret1"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = postJSON(handler.SignUp, "/api/auth/signup", `{"email":"nurse2@ward.org","password":"123"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandler_SignOutNotifies(t *testing.T) {
	sessions := auth.NewDevSessionProvider()
	handler := handlers.NewAuthHandler(sessions)

	token, _, err := sessions.SignIn(t.Context(), auth.DemoEmail, auth.DemoPassword)
	require.NoError(t, err)

	var signedOut []string
	unsubscribe := sessions.OnChange(func(ev providers.SessionEvent) {
		if ev.Principal == nil {
			signedOut = append(signedOut, ev.UserID)
		}
	})
	defer unsubscribe()

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.SignOut(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"demo-user"}, signedOut)

	_, err = sessions.Resolve(t.Context(), token)
	assert.Error(t, err)
}
