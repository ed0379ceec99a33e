package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bloggy/backend/internal/articles"
	"github.com/bloggy/backend/internal/auth"
	"github.com/bloggy/backend/internal/database"
	"github.com/bloggy/backend/internal/ids"
	"github.com/bloggy/backend/internal/images"
	"github.com/bloggy/backend/internal/notifications"
	"github.com/bloggy/backend/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSigningSecret = "test-signing-secret"

type testServer struct {
	db       *gorm.DB
	handler  http.Handler
	hub      *RealtimeHub
	tokens   *auth.TokenIssuer
	imageDir string
}

type registeredUser struct {
	ID    string
	Token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := database.Open(database.Options{Driver: database.DriverSQLite, Path: dsn}, zap.NewNop())
	require.NoError(t, err)

	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        "bloggy-auth",
		Audience:      "bloggy-api",
		TokenTTL:      time.Hour,
	})
	require.NoError(t, err)

	hub := NewRealtimeHub()
	t.Cleanup(hub.Close)

	userService, err := users.NewService(users.ServiceConfig{Database: db, IDProvider: ids.NewUUIDProvider()})
	require.NoError(t, err)
	notificationService, err := notifications.NewService(notifications.ServiceConfig{
		Database:   db,
		Directory:  userService,
		Publisher:  hub,
		IDProvider: ids.NewUUIDProvider(),
	})
	require.NoError(t, err)

	store := articles.NewGormStore(db)
	imageDir := filepath.Join(t.TempDir(), "images")
	imageService, err := images.NewService(images.ServiceConfig{
		Database:   db,
		Articles:   store,
		Directory:  imageDir,
		MaxBytes:   1024,
		IDProvider: ids.NewUUIDProvider(),
	})
	require.NoError(t, err)

	articleService, err := articles.NewService(articles.ServiceConfig{
		Store:       store,
		Authors:     userService,
		Notifier:    notificationService,
		Events:      hub,
		Attachments: imageService,
		IDProvider:  ids.NewUUIDProvider(),
	})
	require.NoError(t, err)

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager:   tokens,
		Users:          userService,
		Articles:       articleService,
		Notifications:  notificationService,
		Images:         imageService,
		Realtime:       hub,
		AllowedOrigins: []string{"*"},
	})
	require.NoError(t, err)

	return &testServer{db: db, handler: handler, hub: hub, tokens: tokens, imageDir: imageDir}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s *testServer) register(t *testing.T, username string) registeredUser {
	t.Helper()
	recorder := s.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    username + "@example.com",
		"username": username,
		"password": "secret123",
	})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
	var response authResponsePayload
	decode(t, recorder, &response)
	require.NotEmpty(t, response.AccessToken)
	return registeredUser{ID: response.UserID, Token: response.AccessToken}
}

func (s *testServer) createArticle(t *testing.T, author registeredUser, title string) articles.View {
	t.Helper()
	recorder := s.do(t, http.MethodPost, "/articles", author.Token, map[string]string{
		"title":   title,
		"content": "Content long enough for " + title,
	})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
	var view articles.View
	decode(t, recorder, &view)
	return view
}

func (s *testServer) comment(t *testing.T, author registeredUser, parentID, content string) articles.View {
	t.Helper()
	recorder := s.do(t, http.MethodPost, "/articles/comments", author.Token, map[string]string{
		"parentId": parentID,
		"content":  content,
	})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
	var view articles.View
	decode(t, recorder, &view)
	return view
}

func (s *testServer) notificationsOf(t *testing.T, user registeredUser) []notifications.View {
	t.Helper()
	recorder := s.do(t, http.MethodGet, "/notifications", user.Token, nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	var views []notifications.View
	decode(t, recorder, &views)
	return views
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), target), recorder.Body.String())
}
