package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lesson_engine_backend/internal/config"
	"lesson_engine_backend/internal/model"
	"lesson_engine_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "middleware-test-secret"

type stubSessions struct {
	live map[string]bool
	err  error
}

func (s stubSessions) IsSessionLive(_ context.Context, _ uint, sessionID string) (bool, error) {
	return s.live[sessionID], s.err
}

func newRouter(sessions SessionChecker, roles ...model.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := &config.Config{JWT: config.JWTConfig{Secret: secret}}
	r.Use(func(c *gin.Context) {
		c.Set(util.ContextConfigKey, cfg)
		c.Next()
	})
	handlers := []gin.HandlerFunc{AuthMiddleware(sessions)}
	if len(roles) > 0 {
		handlers = append(handlers, RoleMiddleware(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		util.Success(c, gin.H{"user": util.GetUserFromContext(c).UserID})
	})
	r.GET("/protected", handlers...)
	return r
}

func token(t *testing.T, role model.UserRole, sid string) string {
	t.Helper()
	u := &model.User{Email: "s@example.com", Role: role}
	u.ID = 4
	tok, err := util.GenerateJWT(u, sid, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(r *gin.Engine, tok string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter(stubSessions{live: map[string]bool{"live": true}})

	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "garbage").Code)
	assert.Equal(t, http.StatusOK, do(r, token(t, model.Student, "live")).Code)

	w := do(r, token(t, model.Student, "superseded"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "authentication", body.Data["reason"])
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	r := newRouter(stubSessions{live: map[string]bool{"live": true}})
	req := httptest.NewRequest(http.MethodGet, "/protected?token="+token(t, model.Student, "live"), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_StoreError(t *testing.T) {
	r := newRouter(stubSessions{err: errors.New("db down")})
	assert.Equal(t, http.StatusInternalServerError, do(r, token(t, model.Student, "live")).Code)
}

func TestRoleMiddleware(t *testing.T) {
	r := newRouter(stubSessions{live: map[string]bool{"s": true}}, model.Teacher)

	assert.Equal(t, http.StatusForbidden, do(r, token(t, model.Student, "s")).Code)
	assert.Equal(t, http.StatusOK, do(r, token(t, model.Teacher, "s")).Code)
	assert.Equal(t, http.StatusOK, do(r, token(t, model.Admin, "s")).Code)
}
