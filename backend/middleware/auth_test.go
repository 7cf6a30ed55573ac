package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/config"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testAuthConfig = &config.AuthConfig{
	JWTSecret:        "test-secret-key",
	TokenExpireHours: 24,
}

func testUser(role string) *model.User {
	return &model.User{ID: 42, Username: "aigerim", Role: role, Active: true}
}

func TestGenerateToken(t *testing.T) {
	token, expiresAt, err := GenerateToken(testUser(model.RoleManager), testAuthConfig)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if token == "" {
		t.Error("Expected non-empty token")
	}

	expectedExpiry := time.Now().Add(24 * time.Hour)
	if expiresAt.Before(expectedExpiry.Add(-time.Minute)) || expiresAt.After(expectedExpiry.Add(time.Minute)) {
		t.Errorf("Expiry time %v is not within expected range of %v", expiresAt, expectedExpiry)
	}

	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(testAuthConfig.JWTSecret), nil
	}); err != nil {
		t.Fatalf("Failed to parse token: %v", err)
	}
	if claims.UserID != 42 || claims.Role != model.RoleManager || claims.Subject != "42" {
		t.Errorf("Unexpected claims: %+v", claims)
	}
}

func TestAuthMiddleware(t *testing.T) {
	token, _, err := GenerateToken(testUser(model.RoleUser), testAuthConfig)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{name: "valid token", authHeader: "Bearer " + token, expectedStatus: http.StatusOK},
		{name: "missing header", authHeader: "", expectedStatus: http.StatusUnauthorized},
		{name: "invalid format", authHeader: token, expectedStatus: http.StatusUnauthorized},
		{name: "invalid token", authHeader: "Bearer invalid.token.here", expectedStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(AuthMiddleware(testAuthConfig))
			router.GET("/test", func(c *gin.Context) {
				if GetUserID(c) != 42 || GetUsername(c) != "aigerim" || GetRole(c) != model.RoleUser {
					t.Errorf("Unexpected identity %d/%s/%s", GetUserID(c), GetUsername(c), GetRole(c))
				}
				c.JSON(http.StatusOK, gin.H{"message": "ok"})
			})

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestAuthMiddlewareRejectsBadTokens(t *testing.T) {
	sign := func(claims Claims, secret string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	tests := []struct {
		name  string
		token string
	}{
		{
			name: "expired",
			token: sign(Claims{
				UserID: 42,
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
					IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
				},
			}, testAuthConfig.JWTSecret),
		},
		{
			name:  "wrong secret",
			token: sign(Claims{UserID: 42}, "other-secret"),
		},
		{
			name:  "no user id",
			token: sign(Claims{Username: "ghost"}, testAuthConfig.JWTSecret),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(AuthMiddleware(testAuthConfig))
			router.GET("/test", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"message": "ok"})
			})

			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		role           string
		expectedStatus int
	}{
		{model.RoleAdmin, http.StatusOK},
		{model.RoleManager, http.StatusForbidden},
		{model.RoleUser, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			token, _, err := GenerateToken(testUser(tt.role), testAuthConfig)
			if err != nil {
				t.Fatalf("Failed to generate token: %v", err)
			}

			router := gin.New()
			router.Use(AuthMiddleware(testAuthConfig), RequireAdmin())
			router.GET("/admin", func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest("GET", "/admin", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestIdentityAccessorsEmpty(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if GetUserID(c) != 0 {
		t.Error("Expected zero user id")
	}
	if GetUsername(c) != "" || GetRole(c) != "" {
		t.Error("Expected empty username and role")
	}

	c.Set(userIDKey, "not-an-int")
	if GetUserID(c) != 0 {
		t.Error("Expected zero user id for a mistyped value")
	}
}
