package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mahaj/groupchat/pkg/auth"
	"github.com/mahaj/groupchat/pkg/group"
	"github.com/mahaj/groupchat/pkg/message"
)

func (h *Handler) RegisterGroupRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.CreateGroup)
	rg.GET("/:id", h.GetGroup)
	rg.DELETE("/:id", h.DeleteGroup)

	rg.GET("/:id/members", h.ListMembers)
	rg.DELETE("/:id/members/:userId", h.RemoveMember)
	rg.POST("/:id/invite", h.Invite)
	rg.POST("/:id/join", h.Join)
	rg.GET("/:id/online", h.Online)

	rg.GET("/:id/roles", h.ListRoles)
	rg.POST("/:id/roles", h.CreateRole)
	rg.PATCH("/:id/roles/:roleId", h.UpdateRole)
	rg.DELETE("/:id/roles/:roleId", h.DeleteRole)

	rg.GET("/:id/messages", h.ListMessages)
	rg.POST("/:id/messages", h.CreateMessage)
}

func (h *Handler) CreateGroup(c *gin.Context) {
	var req group.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	g, err := h.Groups.Create(c.Request.Context(), auth.UserID(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (h *Handler) GetGroup(c *gin.Context) {
	g, err := h.Groups.Get(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *Handler) DeleteGroup(c *gin.Context) {
	if err := h.Groups.Delete(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "group deleted"})
}

func (h *Handler) ListMembers(c *gin.Context) {
	members, err := h.Groups.Members(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

func (h *Handler) RemoveMember(c *gin.Context) {
	if err := h.Groups.RemoveMember(c.Request.Context(), auth.UserID(c), c.Param("id"), c.Param("userId")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "member removed"})
}

func (h *Handler) Invite(c *gin.Context) {
	var req group.InviteInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	res, err := h.Groups.Invite(c.Request.Context(), auth.UserID(c), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusOK
	if res.Status == group.InviteAdded {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

type JoinRequest struct {
	NotificationID string `json:"notificationId"`
}

func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}
	m, err := h.Groups.Join(c.Request.Context(), auth.UserID(c), c.Param("id"), req.NotificationID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// Online lists users with a live session in the group.
func (h *Handler) Online(c *gin.Context) {
	ctx := c.Request.Context()
	g, err := h.Groups.Get(ctx, auth.UserID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	users, err := h.Presence.Online(ctx, g.ID)
	if err != nil {
		h.Log.Warn("presence lookup failed", "group", g.ID, "error", err)
		users = nil
	}
	if users == nil {
		users = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"groupId": g.ID, "users": users})
}

func (h *Handler) ListRoles(c *gin.Context) {
	roles, err := h.Groups.Roles(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, roles)
}

func (h *Handler) CreateRole(c *gin.Context) {
	var req group.RoleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	r, err := h.Groups.CreateRole(c.Request.Context(), auth.UserID(c), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *Handler) UpdateRole(c *gin.Context) {
	var req group.RolePatch
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	r, err := h.Groups.UpdateRole(c.Request.Context(), auth.UserID(c), c.Param("id"), c.Param("roleId"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteRole(c *gin.Context) {
	if err := h.Groups.DeleteRole(c.Request.Context(), auth.UserID(c), c.Param("id"), c.Param("roleId")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "role deleted"})
}

// ListMessages pages through history newest first. Either offset or a
// 1-based page selects the window.
func (h *Handler) ListMessages(c *gin.Context) {
	limit, err := queryInt(c, "limit", message.DefaultPageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		h.fail(c, err)
		return
	}
	page, err := queryInt(c, "page", 0)
	if err != nil {
		h.fail(c, err)
		return
	}
	if page > 0 && limit > 0 {
		offset = (page - 1) * limit
	}
	res, err := h.Messages.List(c.Request.Context(), auth.UserID(c), c.Param("id"), offset, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) CreateMessage(c *gin.Context) {
	var req message.Input
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	m, err := h.Messages.Create(c.Request.Context(), auth.UserID(c), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}
