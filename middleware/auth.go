package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/communityconnect/server/models"
	"github.com/communityconnect/server/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = "username"
	// ContextRoleKey stores the role carried by the token.
	ContextRoleKey = "role"
	// ContextTokenKey and ContextTokenExpKey keep the raw token for logout.
	ContextTokenKey    = "token"
	ContextTokenExpKey = "token_exp"
)

// bearerToken extracts the token. A non-zero code means the header is unusable.
func bearerToken(ctx *gin.Context) (string, int, string) {
	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		return "", 40101, "authorization header missing"
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", 40102, "invalid authorization header format"
	}
	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return "", 40103, "empty bearer token"
	}
	return tokenString, 0, ""
}

func authenticate(ctx *gin.Context, tokenString string) (int, string) {
	if utils.IsTokenBlacklisted(tokenString) {
		return 40104, "token revoked"
	}
	claims, err := utils.ParseToken(tokenString)
	if err != nil {
		return 40105, "invalid token"
	}
	ctx.Set(ContextUserIDKey, claims.UserID)
	ctx.Set(ContextUsernameKey, claims.Username)
	ctx.Set(ContextRoleKey, claims.Role)
	ctx.Set(ContextTokenKey, tokenString)
	if claims.ExpiresAt != nil {
		ctx.Set(ContextTokenExpKey, claims.ExpiresAt.Time)
	} else {
		ctx.Set(ContextTokenExpKey, time.Now().Add(24*time.Hour))
	}
	return 0, ""
}

// AuthRequired ensures the request is authenticated via JWT.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenString, code, msg := bearerToken(ctx)
		if code == 0 {
			code, msg = authenticate(ctx, tokenString)
		}
		if code != 0 {
			utils.Error(ctx, http.StatusUnauthorized, code, msg)
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// OptionalAuth identifies the viewer when a valid token is sent and lets anonymous requests through.
func OptionalAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if tokenString, code, _ := bearerToken(ctx); code == 0 {
			_, _ = authenticate(ctx, tokenString)
		}
		ctx.Next()
	}
}

// AdminRequired rejects callers whose stored role is not admin. It must run after AuthRequired.
// The role is read from the database so demotions apply before the token expires.
func AdminRequired(db *gorm.DB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		uid := ctx.GetUint(ContextUserIDKey)
		if uid == 0 {
			utils.Error(ctx, http.StatusUnauthorized, 40106, "unauthorized")
			ctx.Abort()
			return
		}
		var user models.User
		if err := db.Select("id", "role").First(&user, uid).Error; err != nil || !user.IsAdmin() {
			utils.Error(ctx, http.StatusForbidden, 40301, "admin privileges required")
			ctx.Abort()
			return
		}
		ctx.Set(ContextRoleKey, user.Role)
		ctx.Next()
	}
}
