package middleware

import (
	"context"
	"net/http"
	"strings"

	"lesson_engine_backend/internal/assessment"
	"lesson_engine_backend/internal/config"
	"lesson_engine_backend/internal/model"
	"lesson_engine_backend/internal/util"
	"lesson_engine_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionChecker 判断令牌中的会话是否仍是该用户当前的会话
type SessionChecker interface {
	IsSessionLive(ctx context.Context, studentID uint, sessionID string) (bool, error)
}

func AuthMiddleware(sessions SessionChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		cfg := c.MustGet(util.ContextConfigKey).(*config.Config)
		claims, err := util.ParseJWT(tokenString, cfg.JWT.Secret)
		if err != nil {
			logger.Log.Debug("JWT解析错误", zap.Error(err))
			util.Unauthorized(c)
			c.Abort()
			return
		}

		live, err := sessions.IsSessionLive(c.Request.Context(), claims.UserID, claims.SessionID)
		if err != nil {
			util.LogInternalError(c, err)
			c.Abort()
			return
		}
		if !live {
			// 会话已被新的登录顶替
			util.ErrorWithData(c, http.StatusUnauthorized, util.ErrSessionTerminated.Error(), gin.H{
				"reason": assessment.ReasonAuthentication,
			})
			c.Abort()
			return
		}

		c.Set(util.ContextUserKey, claims)
		c.Next()
	}
}

func RoleMiddleware(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := util.GetUserFromContext(c)
		if user == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		hasRole := false
		for _, role := range roles {
			// 管理员拥有所有教师权限
			if user.Role == model.Admin || user.Role == role {
				hasRole = true
				break
			}
		}

		if !hasRole {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
