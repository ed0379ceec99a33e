package server

import (
	"errors"
	"net/http"

	"github.com/bloggy/backend/internal/auth"
	"github.com/bloggy/backend/internal/errs"
	"github.com/bloggy/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const tokenTypeBearer = "Bearer"

var errNotAccountOwner = errors.New("only the account owner or an admin may change this user")

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,notblank,min=3,max=20"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"max=255"`
	LastName string `json:"lastName" validate:"max=255"`
	Bio      string `json:"bio"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type updateUserRequest struct {
	Email    *string `json:"email" validate:"omitnil,email"`
	Username *string `json:"username" validate:"omitnil,notblank,min=3,max=20"`
	Name     *string `json:"name" validate:"omitnil,max=255"`
	LastName *string `json:"lastName" validate:"omitnil,max=255"`
	Bio      *string `json:"bio"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

type authResponsePayload struct {
	AccessToken string      `json:"accessToken"`
	ExpiresIn   int64       `json:"expiresIn"`
	TokenType   string      `json:"tokenType"`
	UserID      string      `json:"userId"`
	Email       string      `json:"email"`
	User        *users.User `json:"user,omitempty"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequest
	if !h.bindJSON(c, &request) {
		return
	}
	user, err := h.users.Create(c.Request.Context(), request.toCreateInput())
	if err != nil {
		h.respondError(c, err)
		return
	}
	response, ok := h.issueToken(c, user)
	if !ok {
		return
	}
	response.User = &user
	c.JSON(http.StatusCreated, response)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequest
	if !h.bindJSON(c, &request) {
		return
	}
	user, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response, ok := h.issueToken(c, user)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"userId": currentUserID(c),
		"email":  c.GetString(userEmailContextKey),
		"role":   c.GetString(userRoleContextKey),
	})
}

func (h *httpHandler) issueToken(c *gin.Context, user users.User) (authResponsePayload, bool) {
	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), auth.Identity{
		UserID: user.ID,
		Email:  user.Email,
		Role:   string(user.Role),
	})
	if err != nil {
		h.logger.Error("failed to issue access token", zap.String("user_id", user.ID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(string(errs.KindInternal), "auth.token_issue_failed", internalMessage))
		return authResponsePayload{}, false
	}
	return authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   tokenTypeBearer,
		UserID:      user.ID,
		Email:       user.Email,
	}, true
}

func (h *httpHandler) handleCreateUser(c *gin.Context) {
	var request registerRequest
	if !h.bindJSON(c, &request) {
		return
	}
	user, err := h.users.Create(c.Request.Context(), request.toCreateInput())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *httpHandler) handleListUsers(c *gin.Context) {
	list, err := h.users.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *httpHandler) handleFindUserByEmail(c *gin.Context) {
	h.respondUser(c)(h.users.FindByEmail(c.Request.Context(), c.Param("email")))
}

func (h *httpHandler) handleFindUserByUsername(c *gin.Context) {
	h.respondUser(c)(h.users.FindByUsername(c.Request.Context(), c.Param("username")))
}

func (h *httpHandler) handleGetUser(c *gin.Context) {
	h.respondUser(c)(h.users.FindByID(c.Request.Context(), c.Param("id")))
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	h.respondUser(c)(h.users.FindByID(c.Request.Context(), currentUserID(c)))
}

func (h *httpHandler) handleIdentifierTaken(c *gin.Context) {
	taken, err := h.users.IsTaken(c.Request.Context(), c.Param("identifier"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"isTaken": taken})
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	h.updateUser(c, currentUserID(c))
}

func (h *httpHandler) handleUpdateUser(c *gin.Context) {
	targetID := c.Param("id")
	if !h.mayManageUser(c, targetID) {
		return
	}
	h.updateUser(c, targetID)
}

func (h *httpHandler) updateUser(c *gin.Context, userID string) {
	var request updateUserRequest
	if !h.bindJSON(c, &request) {
		return
	}
	h.respondUser(c)(h.users.Update(c.Request.Context(), userID, users.UpdateInput{
		Email:    request.Email,
		Username: request.Username,
		Name:     request.Name,
		LastName: request.LastName,
		Bio:      request.Bio,
	}))
}

func (h *httpHandler) handleDeleteUser(c *gin.Context) {
	targetID := c.Param("id")
	if !h.mayManageUser(c, targetID) {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.users.FindByID(ctx, targetID); err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.articles.RemoveAuthorAttachments(ctx, targetID); err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.users.Delete(ctx, targetID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleChangePassword(c *gin.Context) {
	var request changePasswordRequest
	if !h.bindJSON(c, &request) {
		return
	}
	if err := h.users.ChangePassword(c.Request.Context(), currentUserID(c), request.CurrentPassword, request.NewPassword); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}

func (h *httpHandler) mayManageUser(c *gin.Context, targetID string) bool {
	if currentUserID(c) == targetID || currentUserIsAdmin(c) {
		return true
	}
	h.respondError(c, errs.Forbidden("users.manage", "not_owner", errNotAccountOwner))
	return false
}

func (h *httpHandler) respondUser(c *gin.Context) func(users.User, error) {
	return func(user users.User, err error) {
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func (r registerRequest) toCreateInput() users.CreateInput {
	return users.CreateInput{
		Email:    r.Email,
		Username: r.Username,
		Password: r.Password,
		Name:     r.Name,
		LastName: r.LastName,
		Bio:      r.Bio,
	}
}
