// Package api exposes the group chat actions over HTTP with gin.
package api

import (
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mahaj/groupchat/pkg/apperr"
	"github.com/mahaj/groupchat/pkg/auth"
	"github.com/mahaj/groupchat/pkg/group"
	"github.com/mahaj/groupchat/pkg/message"
	"github.com/mahaj/groupchat/pkg/metrics"
	"github.com/mahaj/groupchat/pkg/notify"
	"github.com/mahaj/groupchat/pkg/realtime"
)

// Deps are the services behind the routes.
type Deps struct {
	Groups        *group.Service
	Messages      *message.Service
	Notifications *notify.Service
	Presence      realtime.Presence
	Tokens        *auth.Manager
	Metrics       *metrics.Metrics
	Log           *slog.Logger

	// DevLogin enables POST /auth/token, which issues a token for any
	// user id. Credentials are managed elsewhere.
	DevLogin     bool
	AllowOrigins []string
}

type Handler struct {
	Deps
}

func NewHandler(d Deps) *Handler {
	return &Handler{Deps: d}
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	h := NewHandler(d)
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLog(), cors(d.AllowOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	if d.DevLogin {
		r.POST("/auth/token", h.IssueToken)
	}

	authed := r.Group("/")
	authed.Use(auth.Middleware(d.Tokens))
	h.RegisterGroupRoutes(authed.Group("/groups"))
	h.RegisterMessageRoutes(authed.Group("/messages"))
	h.RegisterUserRoutes(authed.Group("/users/me"))
	return r
}

func cors(origins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := "*"
		if len(origins) > 0 {
			origin = ""
			if o := c.GetHeader("Origin"); slices.Contains(origins, o) {
				origin = o
			}
		}
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
		}
		c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, PATCH, DELETE")
		c.Header("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (h *Handler) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.Log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"user", auth.UserID(c),
			"duration", time.Since(start))
	}
}

// fail renders a classified error as {"error", "status"}.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := kind.Status()
	if kind == apperr.Internal {
		h.Log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": apperr.MessageOf(err), "status": status})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "status": http.StatusBadRequest})
}

// queryInt parses an optional integer query parameter.
func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Invalid("%s must be an integer", key)
	}
	return n, nil
}

type TokenRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

// IssueToken signs a token for the requested user id.
func (h *Handler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	token, err := h.Tokens.GenerateToken(req.UserID)
	if err != nil {
		h.fail(c, apperr.Wrap(apperr.Internal, err, "failed to generate token"))
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Token: token})
}
