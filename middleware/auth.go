package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"

	RoleAdmin = "admin"
)

// JWTAuth requires an HS256 bearer token and stores its subject and role on the context.
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		subject, err := claims.GetSubject()
		if err != nil || subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		role, _ := claims["role"].(string)

		c.Set(ctxUserID, subject)
		c.Set(ctxRole, role)
		c.Next()
	}
}

var errNoIdentity = errors.New("request is not authenticated")

// CurrentUser returns the authenticated subject and role.
func CurrentUser(c *gin.Context) (userID, role string, err error) {
	userID = c.GetString(ctxUserID)
	if userID == "" {
		return "", "", errNoIdentity
	}
	return userID, c.GetString(ctxRole), nil
}

// CanAccessRecipient allows admins, and recipients reading their own data.
func CanAccessRecipient(c *gin.Context, recipientID string) bool {
	userID, role, err := CurrentUser(c)
	if err != nil {
		return false
	}
	return role == RoleAdmin || userID == recipientID
}
