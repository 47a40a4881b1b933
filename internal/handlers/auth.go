package handlers

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/fhpereira/acesso/internal/auth"
	"github.com/fhpereira/acesso/internal/auth/providers"
	"github.com/fhpereira/acesso/internal/middleware"
	"github.com/fhpereira/acesso/pkg/errors"
	"github.com/fhpereira/acesso/pkg/metrics"
	"github.com/fhpereira/acesso/pkg/response"
)

// AuthHandler manages credential authentication flows (login/refresh/logout/session).
type AuthHandler struct {
	db       *gorm.DB
	local    *providers.LocalProvider
	sessions *iauth.SessionService
}

func NewAuthHandler(db *gorm.DB, local *providers.LocalProvider, sessions *iauth.SessionService) *AuthHandler {
	return &AuthHandler{db: db, local: local, sessions: sessions}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errors.NewBadRequest("invalid JSON payload"))
		return
	}

	user, err := h.local.Authenticate(providers.AuthenticateInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("password", "failure").Inc()
		switch {
		case stderrors.Is(err, providers.ErrMissingCredentials):
			// Absent fields get a bare 401 with no user-facing message.
			response.Error(c, errors.ErrUnauthorized)
		case stderrors.Is(err, providers.ErrInvalidCredentials):
			response.Error(c, errors.ErrInvalidCredentials)
		default:
			response.Error(c, errors.ErrInternalServer)
		}
		return
	}

	pair, _, err := h.sessions.CreateSession(iauth.AuthSubject{
		UserID:   user.ID,
		Name:     user.Name,
		Email:    user.Email,
		Provider: "password",
	}, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("password", "failure").Inc()
		response.Error(c, errors.ErrInternalServer)
		return
	}

	metrics.AuthAttempts.WithLabelValues("password", "success").Inc()

	payload := gin.H{
		"tokens": tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
		"user": gin.H{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
		},
		"redirect": DashboardRedirect,
	}

	response.Success(c, http.StatusOK, payload)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err == nil {
		req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	}
	if req.RefreshToken == "" {
		// Browser flows keep the refresh token in a cookie.
		if cookie, err := c.Cookie(refreshTokenCookie); err == nil {
			req.RefreshToken = strings.TrimSpace(cookie)
		}
	}
	if req.RefreshToken == "" {
		response.Error(c, errors.NewBadRequest("refresh token is required"))
		return
	}

	pair, session, err := h.sessions.RefreshSession(req.RefreshToken)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	setAuthCookies(c, pair, iauth.DefaultAccessTokenTTL, session.ExpiresAt.Sub(session.LastUsedAt))

	response.Success(c, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	v, ok := c.Get(middleware.CtxSessionIDKey)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	sid, _ := v.(string)
	if sid == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.sessions.RevokeSession(sid); err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	clearAuthCookies(c)

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /api/auth/session
//
// The payload is rebuilt from the token's claims snapshot, not from the user
// row, so it reflects the identity as it was when the session was issued.
func (h *AuthHandler) Session(c *gin.Context) {
	v, ok := c.Get(middleware.CtxClaimsKey)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	claims, _ := v.(*iauth.Claims)
	if claims == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user := gin.H{
		"id":    claims.UserID,
		"name":  claims.Name,
		"email": claims.Email,
	}
	if !claims.Profile.IsZero() {
		user["provider_profile"] = claims.Profile
	}

	response.Success(c, http.StatusOK, gin.H{
		"user":       user,
		"provider":   claims.Provider,
		"expires_at": claims.ExpiresAt,
	})
}
