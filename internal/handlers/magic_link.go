package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/fhpereira/acesso/internal/auth"
	"github.com/fhpereira/acesso/internal/services"
	"github.com/fhpereira/acesso/pkg/logger"
	"github.com/fhpereira/acesso/pkg/metrics"
	"github.com/fhpereira/acesso/pkg/response"
)

// MagicLinkHandler serves passwordless email login.
type MagicLinkHandler struct {
	magic    *services.MagicLinkService
	sessions *iauth.SessionService
}

func NewMagicLinkHandler(magic *services.MagicLinkService, sessions *iauth.SessionService) *MagicLinkHandler {
	return &MagicLinkHandler{magic: magic, sessions: sessions}
}

type magicLinkRequest struct {
	Email string `json:"email"`
}

// Request emails a single-use sign-in link to the given address.
//
// POST /api/auth/magic-link
func (h *MagicLinkHandler) Request(c *gin.Context) {
	var req magicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Email = c.PostForm("email")
	}

	if err := h.magic.Request(c.Request.Context(), req.Email); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sent": true})
}

// Callback consumes a sign-in token, creates a session and redirects to
// the dashboard. The email is auto-registered on first login.
//
// GET /api/auth/magic-link/callback
func (h *MagicLinkHandler) Callback(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		redirectWithError(c, "link_invalid")
		return
	}

	user, err := h.magic.Consume(c.Request.Context(), token)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("magic_link", "failure").Inc()
		logger.WithModule("magic_link").Warn("token consume failed", zap.Error(err))
		redirectWithError(c, "link_invalid")
		return
	}

	pair, session, err := h.sessions.CreateSession(iauth.AuthSubject{
		UserID:   user.ID,
		Name:     user.Name,
		Email:    user.Email,
		Provider: "magic_link",
	}, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("magic_link", "failure").Inc()
		response.Error(c, err)
		return
	}

	metrics.AuthAttempts.WithLabelValues("magic_link", "success").Inc()

	setAuthCookies(c, pair, iauth.DefaultAccessTokenTTL, session.ExpiresAt.Sub(session.LastUsedAt))
	c.Redirect(http.StatusSeeOther, DashboardRedirect)
}
