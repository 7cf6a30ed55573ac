package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/middleware"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/service"
)

type NotificationHandler struct {
	store    service.Store
	notifier *service.NotificationService
}

func NewNotificationHandler(store service.Store, notifier *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{store: store, notifier: notifier}
}

// List returns the caller's notifications, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	limit, offset, ok := paging(c)
	if !ok {
		return
	}
	unreadOnly, err := strconv.ParseBool(c.DefaultQuery("unread_only", "false"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid unread_only"})
		return
	}

	userID := middleware.GetUserID(c)
	q := service.NotificationQuery{UserID: &userID, Limit: limit, Offset: offset}
	if unreadOnly {
		unread := false
		q.Read = &unread
	}

	items, err := h.store.ListNotifications(c.Request.Context(), q)
	if err != nil {
		respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// owned loads a notification belonging to the caller. Other users' rows read as missing.
func (h *NotificationHandler) owned(c *gin.Context) (model.Notification, bool) {
	id, ok := pathID(c)
	if !ok {
		return model.Notification{}, false
	}

	n, err := h.store.GetNotification(c.Request.Context(), id)
	if err == nil && n.UserID != middleware.GetUserID(c) {
		err = service.ErrNotFound
	}
	if err != nil {
		respondError(c, err, "Notification not found")
		return model.Notification{}, false
	}
	return n, true
}

// Get returns a single notification
func (h *NotificationHandler) Get(c *gin.Context) {
	n, ok := h.owned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, n)
}

type NotificationUpdateRequest struct {
	IsRead *bool `json:"is_read" binding:"required"`
}

// Update sets the read flag, the only mutable field.
func (h *NotificationHandler) Update(c *gin.Context) {
	var req NotificationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	n, ok := h.owned(c)
	if !ok {
		return
	}

	if err := h.store.SetNotificationRead(c.Request.Context(), n.ID, *req.IsRead); err != nil {
		respondError(c, err, "Notification not found")
		return
	}
	n.Read = *req.IsRead

	c.JSON(http.StatusOK, n)
}

// MarkAllRead marks every unread notification of the caller as read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	updated, err := h.store.MarkAllNotificationsRead(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read", "updated": updated})
}

// Delete deletes one of the caller's notifications
func (h *NotificationHandler) Delete(c *gin.Context) {
	n, ok := h.owned(c)
	if !ok {
		return
	}

	if err := h.store.DeleteNotification(c.Request.Context(), n.ID); err != nil {
		respondError(c, err, "Notification not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted"})
}

// SendCustom delivers an ad-hoc notice to an explicit list of users.
func (h *NotificationHandler) SendCustom(c *gin.Context) {
	var req service.CustomNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if len(req.UserIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_ids is required"})
		return
	}

	created, err := h.notifier.SendCustom(c.Request.Context(), h.store, req)
	if err != nil && !errors.Is(err, service.ErrInvalidInput) && created > 0 {
		// Some recipients were written; report the partial count.
		c.JSON(http.StatusMultiStatus, gin.H{"created": created, "error": err.Error()})
		return
	}
	if err != nil {
		respondError(c, err, "")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"created": created})
}
