package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"bitbucket.org/mmdatafocus/trade_backend/utils"
	"github.com/gin-gonic/gin"
)

// RevokedTokenKey is the redis key marking a token as revoked.
func RevokedTokenKey(token string) string {
	return "RevokedToken:" + token
}

// AuthMiddleware requires a bearer token and binds the operator and
// permissions it carries to the request context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		const bearer = "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		token := strings.TrimSpace(auth[len(bearer):])

		validate, err := utils.JwtValidate(token)
		if err != nil || !validate.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		claim, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok || claim.OperatorId == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if config.RedisEnabled() {
			var revoked bool
			exists, err := config.GetRedisObject(RevokedTokenKey(token), &revoked)
			if err != nil {
				config.LogError(config.GetLogger(), "middlewares", "AuthMiddleware", "revocation check", nil, err)
			} else if exists && revoked {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
				return
			}
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetOperatorIdInContext(ctx, claim.OperatorId)
		ctx = utils.SetOperatorNameInContext(ctx, claim.OperatorName)
		ctx = utils.SetPermissionsInContext(ctx, claim.Permissions)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequirePermission rejects callers whose token does not grant operation.
func RequirePermission(operation string) gin.HandlerFunc {
	return func(c *gin.Context) {
		permissions, _ := utils.GetPermissionsFromContext(c.Request.Context())
		if !utils.CanPerform(permissions, operation) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied: " + operation})
			return
		}
		c.Next()
	}
}
