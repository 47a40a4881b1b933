package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/fhpereira/acesso/internal/auth"
	"github.com/fhpereira/acesso/pkg/errors"
	"github.com/fhpereira/acesso/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"

	// AccessTokenCookie is the cookie set by redirect-based login flows.
	AccessTokenCookie = "access_token"
)

// Auth enforces JWT authentication using the supplied JWT service.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		authz := c.GetHeader("Authorization")
		switch {
		case len(authz) >= 8 && strings.EqualFold(authz[:7], "Bearer "):
			token = strings.TrimSpace(authz[7:])
		default:
			// Redirect-based logins carry the access token in a cookie
			// instead of a header.
			if cookie, err := c.Cookie(AccessTokenCookie); err == nil {
				token = strings.TrimSpace(cookie)
			}
		}
		if token == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		// Propagate identity into request context
		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		if claims.SessionID != "" {
			c.Set(CtxSessionIDKey, claims.SessionID)
		}

		c.Next()
	}
}
