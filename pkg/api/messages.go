package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mahaj/groupchat/pkg/auth"
	"github.com/mahaj/groupchat/pkg/message"
)

func (h *Handler) RegisterMessageRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id", h.GetMessage)
	rg.PATCH("/:id", h.EditMessage)
	rg.DELETE("/:id", h.DeleteMessage)
	rg.GET("/:id/reactions", h.ListReactions)
	rg.POST("/:id/reactions", h.React)
}

func (h *Handler) GetMessage(c *gin.Context) {
	m, err := h.Messages.Get(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) EditMessage(c *gin.Context) {
	var req message.Patch
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	m, err := h.Messages.Edit(c.Request.Context(), auth.UserID(c), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	if err := h.Messages.Delete(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "message deleted"})
}

type ReactionRequest struct {
	Reaction string `json:"reaction" binding:"required"`
}

func (h *Handler) React(c *gin.Context) {
	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	r, err := h.Messages.React(c.Request.Context(), auth.UserID(c), c.Param("id"), req.Reaction)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *Handler) ListReactions(c *gin.Context) {
	rs, err := h.Messages.Reactions(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rs)
}
