package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/clinicdesk/scheduling-api/pkg/errors"
	"github.com/clinicdesk/scheduling-api/pkg/httputil"
)

const (
	ContextUserID   = "user_id"
	ContextClinicID = "clinic_id"
	ContextRole     = "role"
)

type AuthMiddleware struct {
	secret []byte
}

func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret)}
}

// Authenticate verifies the bearer token and sets caller identity in context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			m.unauthorized(c, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.unauthorized(c, "invalid authorization format")
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return m.secret, nil
		})
		if err != nil || !token.Valid {
			m.unauthorized(c, "invalid token")
			return
		}

		if sub, ok := claims["sub"].(string); ok {
			c.Set(ContextUserID, sub)
		}
		if clinicID, ok := claims["clinic_id"].(string); ok {
			c.Set(ContextClinicID, clinicID)
		}
		if role, ok := claims["role"].(string); ok {
			c.Set(ContextRole, role)
		}
		c.Next()
	}
}

// RequireRole gates staff-only operations such as status transitions.
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, &apperrors.AppError{
			Kind:    apperrors.KindValidation,
			Code:    http.StatusForbidden,
			Message: "insufficient role",
		})
		c.Abort()
	}
}

func (m *AuthMiddleware) unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": gin.H{
		"code":    http.StatusUnauthorized,
		"message": message,
	}})
	c.Abort()
}
