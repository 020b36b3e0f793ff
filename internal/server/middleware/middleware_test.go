package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"naija-nutri-hub/backend/internal/security"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(t *testing.T) (*gin.Engine, *security.TokenProvider) {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	r := gin.New()
	r.GET("/private", BearerAuth(tokens), func(c *gin.Context) {
		userID, _ := GetUserID(c.Request.Context())
		username, _ := GetUsername(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "username": username})
	})
	return r, tokens
}

func TestBearerAuth_ValidToken(t *testing.T) {
	r, tokens := newAuthRouter(t)
	token, _, err := tokens.IssueAccess("user-1", "ada@example.com", "ada")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"user-1","username":"ada"}`, w.Body.String())
}

func TestBearerAuth_Rejects(t *testing.T) {
	r, _ := newAuthRouter(t)
	other, err := security.GenerateSigningKey()
	require.NoError(t, err)
	foreign := security.NewTokenProvider(other, other.Public(), "test-issuer", "test-audience", time.Minute)
	forged, _, err := foreign.IssueAccess("user-1", "ada@example.com", "ada")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty bearer", "Bearer "},
		{"garbage", "Bearer not-a-jwt"},
		{"foreign key", "Bearer " + forged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestExtractBearer(t *testing.T) {
	assert.Equal(t, "abc", extractBearer("Bearer abc"))
	assert.Equal(t, "abc", extractBearer("  bearer   abc "))
	assert.Equal(t, "", extractBearer("Token abc"))
	assert.Equal(t, "", extractBearer("Bear"))
}

func TestIdentityContext(t *testing.T) {
	_, ok := GetUserID(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), "u1", "ada")
	id, ok := GetUserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", id)
	name, ok := GetUsername(ctx)
	assert.True(t, ok)
	assert.Equal(t, "ada", name)
}

func TestRequestLog_OmitsQuery(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	r := gin.New()
	r.Use(RequestLog(log))
	r.GET("/password/reset/check", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/password/reset/check?token=s3cr3t", nil))

	out := buf.String()
	assert.Contains(t, out, `"route":"/password/reset/check"`)
	assert.Contains(t, out, `"status":204`)
	assert.False(t, strings.Contains(out, "s3cr3t"), "token leaked into request log")
}
