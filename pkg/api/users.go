package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mahaj/groupchat/pkg/apperr"
	"github.com/mahaj/groupchat/pkg/auth"
	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/notify"
	"github.com/mahaj/groupchat/pkg/store"
)

func (h *Handler) RegisterUserRoutes(rg *gin.RouterGroup) {
	rg.GET("/groups", h.MyGroups)
	rg.GET("/settings", h.GetSettings)
	rg.PUT("/settings", h.UpdateSettings)

	rg.GET("/notifications", h.ListNotifications)
	rg.GET("/notifications/unread", h.UnreadCount)
	rg.POST("/notifications/read-all", h.MarkAllRead)
	rg.PUT("/notifications/:id", h.UpdateNotification)
}

func (h *Handler) MyGroups(c *gin.Context) {
	groups, err := h.Groups.ListForUser(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

func (h *Handler) ListNotifications(c *gin.Context) {
	limit, err := queryInt(c, "limit", notify.DefaultPageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		h.fail(c, err)
		return
	}
	var read *bool
	if v := c.Query("read"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.fail(c, apperr.Invalid("read must be true or false"))
			return
		}
		read = &b
	}
	res, err := h.Notifications.List(c.Request.Context(), auth.UserID(c), read, store.Page{Offset: offset, Limit: limit})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type UpdateNotificationRequest struct {
	Read *bool `json:"read" binding:"required"`
}

func (h *Handler) UpdateNotification(c *gin.Context) {
	var req UpdateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	n, err := h.Notifications.SetRead(c.Request.Context(), auth.UserID(c), c.Param("id"), *req.Read)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *Handler) UnreadCount(c *gin.Context) {
	n, err := h.Notifications.UnreadCount(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	n, err := h.Notifications.MarkAllRead(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *Handler) GetSettings(c *gin.Context) {
	p, err := h.Notifications.Preferences(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type SettingsRequest struct {
	Notifications model.NotificationLevel `json:"notifications" binding:"required"`
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	p, err := h.Notifications.SetPreferences(c.Request.Context(), auth.UserID(c), req.Notifications)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
