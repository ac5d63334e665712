package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	config "github.com/phillip/farewell-fund-go/config"
	services "github.com/phillip/farewell-fund-go/services"
	utils "github.com/phillip/farewell-fund-go/utils"
)

const identityKey = "identity"

// AuthMiddleware validates the bearer token and attaches the caller's
// identity. Requests without a valid token stop here with 401.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := utils.ParseToken(cfg.JWTSecret, strings.TrimSpace(parts[1]))
		if err != nil {
			log.Debug("token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(identityKey, &services.Identity{
			UserID:     claims.UserID,
			Email:      claims.Email,
			EventRoles: claims.Roles(),
		})
		c.Set("user_id", claims.UserID)
		c.Next()
	}
}

// CurrentIdentity returns the identity set by AuthMiddleware, or nil.
func CurrentIdentity(c *gin.Context) *services.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*services.Identity)
	return id
}
