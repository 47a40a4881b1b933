package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/fhpereira/acesso/internal/auth"
	"github.com/fhpereira/acesso/internal/auth/providers"
	"github.com/fhpereira/acesso/pkg/crypto"
	"github.com/fhpereira/acesso/pkg/logger"
	"github.com/fhpereira/acesso/pkg/metrics"
	"github.com/fhpereira/acesso/pkg/response"
)

const oauthErrorRedirect = "/login"

// OAuthHandler manages redirect-based provider login and callback flows.
type OAuthHandler struct {
	registry   *providers.Registry
	linker     *iauth.AccountLinker
	stateCodec *iauth.StateCodec
}

func NewOAuthHandler(registry *providers.Registry, linker *iauth.AccountLinker, codec *iauth.StateCodec) *OAuthHandler {
	return &OAuthHandler{registry: registry, linker: linker, stateCodec: codec}
}

// Providers lists the redirect-based providers enabled for this deployment.
//
// GET /api/auth/providers
func (h *OAuthHandler) Providers(c *gin.Context) {
	items := h.registry.Metadata()
	payload := make([]gin.H, 0, len(items))
	for _, meta := range items {
		payload = append(payload, gin.H{
			"type":         meta.Type,
			"display_name": meta.DisplayName,
			"button_text":  meta.ButtonText,
		})
	}
	response.Success(c, http.StatusOK, gin.H{"providers": payload})
}

// Begin redirects the user to the provider's authorization endpoint.
//
// GET /api/auth/oauth/:provider/login
func (h *OAuthHandler) Begin(c *gin.Context) {
	providerType := strings.ToLower(strings.TrimSpace(c.Param("provider")))

	provider, err := h.registry.Lookup(providerType)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "provider not supported"})
		return
	}

	pkce, err := iauth.GeneratePKCE()
	if err != nil {
		response.Error(c, err)
		return
	}

	nonce, err := crypto.GenerateToken(32)
	if err != nil {
		response.Error(c, err)
		return
	}

	state, err := h.stateCodec.Encode(iauth.StatePayload{
		Provider: providerType,
		Nonce:    nonce,
		PKCE:     pkce.Verifier,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	resp, err := provider.Begin(c.Request.Context(), providers.BeginAuthRequest{
		State:         state,
		Nonce:         nonce,
		PKCEChallenge: pkce.Challenge,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Redirect(http.StatusFound, resp.RedirectURL)
}

// Callback processes the provider callback, issues a session and redirects
// to the dashboard.
//
// GET /api/auth/oauth/:provider/callback
func (h *OAuthHandler) Callback(c *gin.Context) {
	providerType := strings.ToLower(strings.TrimSpace(c.Param("provider")))

	payload, err := h.stateCodec.Decode(c.Query("state"))
	if err != nil || payload.Provider != providerType {
		redirectWithError(c, "oauth_state")
		return
	}

	provider, err := h.registry.Lookup(providerType)
	if err != nil {
		redirectWithError(c, "oauth_provider")
		return
	}

	identity, err := provider.Callback(c.Request.Context(), providers.CallbackRequest{
		PKCEVerifier:   payload.PKCE,
		ExpectedNonce:  payload.Nonce,
		RawHTTPRequest: c.Request,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(providerType, "failure").Inc()
		logger.WithModule("oauth").Warn("provider callback failed",
			zap.String("provider", providerType),
			zap.Error(err),
		)
		redirectWithError(c, "oauth_failed")
		return
	}

	pair, _, session, err := h.linker.Resolve(c.Request.Context(), *identity, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(providerType, "failure").Inc()
		logger.WithModule("oauth").Warn("account resolution failed",
			zap.String("provider", providerType),
			zap.Error(err),
		)
		redirectWithError(c, "oauth_failed")
		return
	}

	metrics.AuthAttempts.WithLabelValues(providerType, "success").Inc()

	setAuthCookies(c, pair, iauth.DefaultAccessTokenTTL, session.ExpiresAt.Sub(session.LastUsedAt))
	c.Redirect(http.StatusSeeOther, DashboardRedirect)
}

func redirectWithError(c *gin.Context, code string) {
	target := url.URL{Path: oauthErrorRedirect}
	q := target.Query()
	q.Set("error", code)
	target.RawQuery = q.Encode()
	c.Redirect(http.StatusSeeOther, target.String())
}
