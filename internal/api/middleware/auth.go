package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mercadia/salesgoals/internal/models"
	"github.com/mercadia/salesgoals/internal/service"
)

const (
	UserIDKey = "user_id"
	EmailKey  = "email"
	NameKey   = "name"
)

func Auth(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(EmailKey, claims.Email)
		c.Set(NameKey, claims.Name)
		c.Next()
	}
}

func GetUserID(c *gin.Context) uuid.UUID {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return uuid.Nil
	}
	return userID.(uuid.UUID)
}

// GetActor возвращает аутентифицированного принципала для полей происхождения и аудита
func GetActor(c *gin.Context) models.Actor {
	actor := models.Actor{}
	if id, exists := c.Get(UserIDKey); exists {
		actor.ID = id.(uuid.UUID).String()
	}
	if name, exists := c.Get(NameKey); exists {
		actor.Name = name.(string)
	}
	return actor
}
