package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type markReadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,notblank"`
}

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	list, err := h.notifications.ListForUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *httpHandler) handleMarkNotificationsRead(c *gin.Context) {
	var request markReadRequest
	if !h.bindJSON(c, &request) {
		return
	}
	updated, err := h.notifications.MarkRead(c.Request.Context(), currentUserID(c), request.IDs)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updatedCount": updated})
}

func (h *httpHandler) handleDeleteNotification(c *gin.Context) {
	if err := h.notifications.Delete(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted successfully"})
}
