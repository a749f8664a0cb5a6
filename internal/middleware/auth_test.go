package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func authRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/protected", handlers...)
	return r
}

func TestAuthenticateRejectsMissingHeader(t *testing.T) {
	m := NewAuthMiddleware(testSecret)
	r := authRouter(m.Authenticate(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticateRejectsMalformedHeader(t *testing.T) {
	m := NewAuthMiddleware(testSecret)
	r := authRouter(m.Authenticate(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, header := range []string{"Basic abc", "Bearer", "not-a-token"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", header)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}
}

func TestAuthenticateRejectsWrongSignature(t *testing.T) {
	m := NewAuthMiddleware(testSecret)
	r := authRouter(m.Authenticate(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).
		SignedString([]byte("another-secret"))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticateSetsCallerIdentity(t *testing.T) {
	m := NewAuthMiddleware(testSecret)

	var userID, clinicID, role string
	r := authRouter(m.Authenticate(), func(c *gin.Context) {
		userID = c.GetString(ContextUserID)
		clinicID = c.GetString(ContextClinicID)
		role = c.GetString(ContextRole)
		c.Status(http.StatusOK)
	})

	token := signedToken(t, jwt.MapClaims{
		"sub":       "user-1",
		"clinic_id": "clinic-1",
		"role":      "staff",
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, "clinic-1", clinicID)
	assert.Equal(t, "staff", role)
}

func TestRequireRoleAllowsListedRole(t *testing.T) {
	m := NewAuthMiddleware(testSecret)
	r := authRouter(m.Authenticate(), m.RequireRole("staff", "admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, role := range []string{"staff", "admin"} {
		token := signedToken(t, jwt.MapClaims{"sub": "user-1", "role": role})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code, "role %q", role)
	}
}

func TestRequireRoleBlocksOtherRoles(t *testing.T) {
	m := NewAuthMiddleware(testSecret)

	handlerCalled := false
	r := authRouter(m.Authenticate(), m.RequireRole("staff", "admin"), func(c *gin.Context) {
		handlerCalled = true
		c.Status(http.StatusOK)
	})

	for _, role := range []string{"patient", ""} {
		claims := jwt.MapClaims{"sub": "user-1"}
		if role != "" {
			claims["role"] = role
		}
		token := signedToken(t, claims)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code, "role %q", role)
		assert.False(t, handlerCalled, "role %q", role)
	}
}
