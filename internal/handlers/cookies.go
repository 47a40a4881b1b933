package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/fhpereira/acesso/internal/auth"
	"github.com/fhpereira/acesso/internal/middleware"
)

const (
	// DashboardRedirect is where every successful login flow lands,
	// regardless of where the flow started.
	DashboardRedirect = "/dashboard"

	refreshTokenCookie = "refresh_token"
	refreshCookiePath  = "/api/auth"
)

// setAuthCookies installs the token pair for browser-based flows. The access
// token cookie is visible to the whole site; the refresh token only travels
// back to the auth endpoints.
func setAuthCookies(c *gin.Context, pair iauth.TokenPair, accessTTL, refreshTTL time.Duration) {
	secure := c.Request.TLS != nil

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, pair.AccessToken, int(accessTTL.Seconds()), "/", "", secure, true)
	c.SetCookie(refreshTokenCookie, pair.RefreshToken, int(refreshTTL.Seconds()), refreshCookiePath, "", secure, true)
}

// clearAuthCookies expires both auth cookies.
func clearAuthCookies(c *gin.Context) {
	secure := c.Request.TLS != nil

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", secure, true)
	c.SetCookie(refreshTokenCookie, "", -1, refreshCookiePath, "", secure, true)
}
