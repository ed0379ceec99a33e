package server

import (
	"net/http"
	"testing"

	"github.com/bloggy/backend/internal/users"
	"github.com/stretchr/testify/require"
)

func TestRegisterLoginAndMe(t *testing.T) {
	server := newTestServer(t)
	alice := server.register(t, "alice")

	recorder := server.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "ALICE@example.com",
		"username": "alice2",
		"password": "secret123",
	})
	require.Equal(t, http.StatusConflict, recorder.Code)
	var response errorResponse
	decode(t, recorder, &response)
	require.Equal(t, "conflict", response.Error)

	recorder = server.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = server.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "Alice@Example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	var login authResponsePayload
	decode(t, recorder, &login)
	require.Equal(t, alice.ID, login.UserID)
	require.Equal(t, tokenTypeBearer, login.TokenType)
	require.Positive(t, login.ExpiresIn)
	require.Nil(t, login.User)

	recorder = server.do(t, http.MethodGet, "/auth/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.JSONEq(t, `{"userId":"`+alice.ID+`","email":"alice@example.com","role":"user"}`, recorder.Body.String())
	require.NotContains(t, recorder.Body.String(), "password")
}

func TestRegisterValidation(t *testing.T) {
	server := newTestServer(t)

	recorder := server.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "not-an-email",
		"username": "al",
		"password": "123",
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	var response errorResponse
	decode(t, recorder, &response)
	require.Len(t, response.Fields, 3)
	require.Contains(t, response.Message, "email must be a valid email address")
	require.Contains(t, response.Message, "username must be at least 3 characters long")

	recorder = server.do(t, http.MethodPost, "/auth/register", "", nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestUserLookupsOverHTTP(t *testing.T) {
	server := newTestServer(t)
	alice := server.register(t, "alice")

	recorder := server.do(t, http.MethodGet, "/users/username/alice", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var user users.User
	decode(t, recorder, &user)
	require.Equal(t, alice.ID, user.ID)
	require.NotContains(t, recorder.Body.String(), "password")

	recorder = server.do(t, http.MethodGet, "/users/email/alice@example.com", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	recorder = server.do(t, http.MethodGet, "/users/"+alice.ID, "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	recorder = server.do(t, http.MethodGet, "/users/nobody", "", nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = server.do(t, http.MethodGet, "/users/isvalid/alice", "", nil)
	require.JSONEq(t, `{"isTaken":true}`, recorder.Body.String())
	recorder = server.do(t, http.MethodGet, "/users/isvalid/free-name", "", nil)
	require.JSONEq(t, `{"isTaken":false}`, recorder.Body.String())

	recorder = server.do(t, http.MethodPost, "/users", "", map[string]string{
		"email":    "carol@example.com",
		"username": "carol",
		"password": "secret123",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = server.do(t, http.MethodGet, "/users", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var listed []users.User
	decode(t, recorder, &listed)
	require.Len(t, listed, 2)
}

func TestProfileSelfService(t *testing.T) {
	server := newTestServer(t)
	alice := server.register(t, "alice")
	bob := server.register(t, "bob")

	recorder := server.do(t, http.MethodGet, "/users/infos", alice.Token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = server.do(t, http.MethodPatch, "/users/infos", alice.Token, map[string]string{"username": "bob"})
	require.Equal(t, http.StatusConflict, recorder.Code)

	recorder = server.do(t, http.MethodPatch, "/users/infos", alice.Token, map[string]string{"bio": "Writes about Go", "name": "Alice"})
	require.Equal(t, http.StatusOK, recorder.Code)
	var updated users.User
	decode(t, recorder, &updated)
	require.Equal(t, "Writes about Go", updated.Bio)
	require.Equal(t, "Alice", updated.Name)

	recorder = server.do(t, http.MethodPatch, "/users/infos/password", alice.Token, map[string]string{"currentPassword": "nope", "newPassword": "another1"})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	recorder = server.do(t, http.MethodPatch, "/users/infos/password", alice.Token, map[string]string{"currentPassword": "secret123", "newPassword": "another1"})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = server.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": "another1"})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = server.do(t, http.MethodPatch, "/users/"+alice.ID, bob.Token, map[string]string{"bio": "hacked"})
	require.Equal(t, http.StatusForbidden, recorder.Code)
	recorder = server.do(t, http.MethodDelete, "/users/"+alice.ID, bob.Token, nil)
	require.Equal(t, http.StatusForbidden, recorder.Code)
	recorder = server.do(t, http.MethodDelete, "/users/"+alice.ID, alice.Token, nil)
	require.Equal(t, http.StatusNoContent, recorder.Code)
	recorder = server.do(t, http.MethodGet, "/users/"+alice.ID, "", nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}
