package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ArowuTest/uptime-rewards-backend/internal/config"
	"github.com/ArowuTest/uptime-rewards-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/slog"
)

// WalletAddressKey is the gin context key set from a verified token's subject
const WalletAddressKey = "walletAddress"

// InternalKeyHeader carries the shared secret of internal callers
const InternalKeyHeader = "X-Internal-Key"

// NodeAuthMiddleware verifies the bearer token of node clients and stores its wallet
// address under WalletAddressKey. Without a configured secret, or when tokens are
// optional and none is sent, the request passes through unauthenticated.
func NodeAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	tokens := jwt.NewNodeTokenService(cfg)
	if !tokens.Enabled() {
		slog.Warn("JWT secret is not configured, node requests are not authenticated")
	}

	return func(c *gin.Context) {
		const BearerSchema = "Bearer "
		authHeader := c.GetHeader("Authorization")
		if !tokens.Enabled() {
			c.Next()
			return
		}
		if authHeader == "" {
			if cfg.JWT.Required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
				return
			}
			c.Next()
			return
		}

		if !strings.HasPrefix(authHeader, BearerSchema) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header must start with Bearer "})
			return
		}

		wallet, err := tokens.Verify(authHeader[len(BearerSchema):])
		if err != nil {
			slog.Warn("Node token rejected", "error", err, "clientIp", c.ClientIP())
			if errors.Is(err, jwt.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has expired"})
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			return
		}
		c.Set(WalletAddressKey, wallet)
		c.Next()
	}
}

// InternalKeyMiddleware admits only callers presenting the internal key, checked
// against its bcrypt hash. With no hash configured every request is refused.
func InternalKeyMiddleware(cfg *config.Config) gin.HandlerFunc {
	keyHash := []byte(cfg.Internal.KeyHash)
	if len(keyHash) == 0 {
		slog.Warn("Internal key hash is not configured, internal endpoints are disabled")
	}

	return func(c *gin.Context) {
		key := c.GetHeader(InternalKeyHeader)
		if len(keyHash) == 0 || key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Internal key is required"})
			return
		}
		if err := bcrypt.CompareHashAndPassword(keyHash, []byte(key)); err != nil {
			slog.Warn("Internal key rejected", "clientIp", c.ClientIP(), "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid internal key"})
			return
		}
		c.Next()
	}
}
