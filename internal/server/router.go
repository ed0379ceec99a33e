package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bloggy/backend/internal/articles"
	"github.com/bloggy/backend/internal/auth"
	"github.com/bloggy/backend/internal/images"
	"github.com/bloggy/backend/internal/notifications"
	"github.com/bloggy/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	userIDContextKey    = "bloggy_user_id"
	userRoleContextKey  = "bloggy_user_role"
	userEmailContextKey = "bloggy_user_email"
	accessTokenQueryKey = "access_token"
	bearerPrefix        = "Bearer "
)

var (
	errMissingTokenManager   = errors.New("token manager dependency required")
	errMissingUsersService   = errors.New("users service dependency required")
	errMissingArticleService = errors.New("articles service dependency required")
	errMissingNotifications  = errors.New("notifications service dependency required")
	errMissingImagesService  = errors.New("images service dependency required")
	errMissingRealtimeHub    = errors.New("realtime hub dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates access tokens.
type TokenManager interface {
	IssueToken(ctx context.Context, identity auth.Identity) (string, int64, error)
	ValidateToken(token string) (auth.Claims, error)
}

type Dependencies struct {
	TokenManager   TokenManager
	Users          *users.Service
	Articles       *articles.Service
	Notifications  *notifications.Service
	Images         *images.Service
	Realtime       *RealtimeHub
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Articles == nil {
		return nil, errMissingArticleService
	}
	if deps.Notifications == nil {
		return nil, errMissingNotifications
	}
	if deps.Images == nil {
		return nil, errMissingImagesService
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtimeHub
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))
	router.MaxMultipartMemory = deps.Images.MaxBytes() + 1024*1024

	handler := &httpHandler{
		tokens:        deps.TokenManager,
		users:         deps.Users,
		articles:      deps.Articles,
		notifications: deps.Notifications,
		images:        deps.Images,
		realtime:      deps.Realtime,
		validate:      newValidator(),
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.Static(images.PublicPrefix, deps.Images.Directory())
	router.GET("/ws", handler.handleWebSocket)

	authGroup := router.Group("/auth")
	authGroup.POST("/register", handler.handleRegister)
	authGroup.POST("/login", handler.handleLogin)
	authGroup.GET("/me", handler.authorizeRequest, handler.handleMe)

	usersGroup := router.Group("/users")
	usersGroup.POST("", handler.handleCreateUser)
	usersGroup.GET("", handler.handleListUsers)
	usersGroup.GET("/email/:email", handler.handleFindUserByEmail)
	usersGroup.GET("/username/:username", handler.handleFindUserByUsername)
	usersGroup.GET("/isvalid/:identifier", handler.handleIdentifierTaken)
	usersGroup.GET("/infos", handler.authorizeRequest, handler.handleGetProfile)
	usersGroup.PATCH("/infos", handler.authorizeRequest, handler.handleUpdateProfile)
	usersGroup.PATCH("/infos/password", handler.authorizeRequest, handler.handleChangePassword)
	usersGroup.GET("/:id", handler.handleGetUser)
	usersGroup.PATCH("/:id", handler.authorizeRequest, handler.handleUpdateUser)
	usersGroup.DELETE("/:id", handler.authorizeRequest, handler.handleDeleteUser)

	articlesGroup := router.Group("/articles")
	articlesGroup.GET("", handler.handleListArticles)
	articlesGroup.GET("/search", handler.handleSearchArticles)
	articlesGroup.POST("", handler.authorizeRequest, handler.handleCreateArticle)
	articlesGroup.POST("/comments", handler.authorizeRequest, handler.handleCreateComment)
	articlesGroup.GET("/comments/:commentId/replies", handler.handleCommentReplies)
	articlesGroup.GET("/full/:id", handler.handleArticleThread)
	articlesGroup.GET("/:id", handler.handleGetArticle)
	articlesGroup.PATCH("/:id", handler.authorizeRequest, handler.handleUpdateArticle)
	articlesGroup.DELETE("/:id", handler.authorizeRequest, handler.handleDeleteArticle)
	articlesGroup.GET("/:id/comments", handler.handleListComments)
	articlesGroup.POST("/:id/upvote", handler.authorizeRequest, handler.handleUpvote)
	articlesGroup.POST("/:id/downvote", handler.authorizeRequest, handler.handleDownvote)
	articlesGroup.GET("/:id/votes", handler.identifyRequest, handler.handleVotes)

	notificationsGroup := router.Group("/notifications")
	notificationsGroup.Use(handler.authorizeRequest)
	notificationsGroup.GET("", handler.handleListNotifications)
	notificationsGroup.PATCH("/read", handler.handleMarkNotificationsRead)
	notificationsGroup.DELETE("/:id", handler.handleDeleteNotification)

	legacyNotificationsGroup := router.Group("/notification")
	legacyNotificationsGroup.Use(handler.authorizeRequest)
	legacyNotificationsGroup.GET("", handler.handleListNotifications)
	legacyNotificationsGroup.PATCH("/updates", handler.handleMarkNotificationsRead)
	legacyNotificationsGroup.DELETE("/:id", handler.handleDeleteNotification)

	imagesGroup := router.Group("/images")
	imagesGroup.POST("/upload", handler.authorizeRequest, handler.handleUploadImage)
	imagesGroup.GET("", handler.handleListImages)
	imagesGroup.GET("/:id", handler.handleGetImage)
	imagesGroup.DELETE("/:id", handler.authorizeRequest, handler.handleDeleteImage)

	return router, nil
}

type httpHandler struct {
	tokens        TokenManager
	users         *users.Service
	articles      *articles.Service
	notifications *notifications.Service
	images        *images.Service
	realtime      *RealtimeHub
	validate      *validator.Validate
	logger        *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Origin"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "*" {
			config.AllowAllOrigins = true
			origins = nil
			break
		}
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if !config.AllowAllOrigins {
		if len(origins) == 0 {
			config.AllowAllOrigins = true
		} else {
			config.AllowOrigins = origins
			config.AllowCredentials = true
		}
	}
	return cors.New(config)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(started)))
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("unauthorized", "auth.missing_token", errInvalidAuthorization.Error()))
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logTokenFailure(err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("unauthorized", "auth.invalid_token", "unauthorized"))
		return
	}
	setIdentity(c, claims)
	c.Next()
}

// identifyRequest attaches the caller's identity when a valid token is sent
// and otherwise lets the request through anonymously.
func (h *httpHandler) identifyRequest(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token != "" {
		if claims, err := h.tokens.ValidateToken(token); err == nil {
			setIdentity(c, claims)
		} else {
			h.logTokenFailure(err)
		}
	}
	c.Next()
}

func (h *httpHandler) logTokenFailure(err error) {
	if errors.Is(err, jwt.ErrTokenExpired) {
		h.logger.Info("token validation failed", zap.Error(err))
		return
	}
	h.logger.Warn("token validation failed", zap.Error(err))
}

func setIdentity(c *gin.Context, claims auth.Claims) {
	c.Set(userIDContextKey, claims.Subject)
	c.Set(userRoleContextKey, claims.Role)
	c.Set(userEmailContextKey, claims.Email)
}

func bearerToken(header string) string {
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
}

func currentUserID(c *gin.Context) string {
	return c.GetString(userIDContextKey)
}

func currentUserIsAdmin(c *gin.Context) bool {
	return c.GetString(userRoleContextKey) == string(users.RoleAdmin)
}
