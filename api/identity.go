package api

import (
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"silentbid/auction"
)

const identityContextKey = "silentbid-identity"

// identityClaims 是身份協作者簽發的token內容，
// uid 放在標準的 Subject 欄位。
type identityClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IdentityMiddleware 驗證請求的Bearer token並將已驗證的身份放進請求context。
// 核心邏輯信任 {uid, email} 這組身份，不再重複驗證簽章。
func IdentityMiddleware(publicKey ed25519.PublicKey) gin.HandlerFunc {
	const op = "IdentityMiddleware"
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "No token provided"})
			return
		}

		claims := &identityClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return publicKey, nil
		})
		if err != nil || !token.Valid {
			slog.Debug("Token verification failed", slog.String("op", op), slog.Any("error", err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
			return
		}

		c.Set(identityContextKey, auction.Identity{
			UID:   claims.Subject,
			Email: claims.Email,
		})
		c.Next()
	}
}

// callerIdentity 取出中介層驗證過的身份
func callerIdentity(c *gin.Context) auction.Identity {
	identity, _ := c.Get(identityContextKey)
	caller, _ := identity.(auction.Identity)
	return caller
}
