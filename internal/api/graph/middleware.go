package graph

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/planningpoker/internal/auth"
	"github.com/lvdashuaibi/planningpoker/internal/logger"
	"github.com/lvdashuaibi/planningpoker/internal/model"
)

const requestIDHeader = "X-Request-Id"

// Authenticator 将请求令牌解析为身份
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.Identity, error)
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

func accessLogMiddleware(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.FromContext(c.Request.Context(), base).Info("HTTP请求",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// authMiddleware 令牌缺失或无效时按匿名请求继续处理，由各操作决定是否拒绝
func authMiddleware(authenticator Authenticator, base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.ExtractToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		identity, err := authenticator.Authenticate(ctx, token)
		if err != nil {
			logger.FromContext(ctx, base).Debug("令牌无效，按匿名请求处理", zap.Error(err))
			c.Next()
			return
		}

		ctx = auth.WithIdentity(ctx, identity)
		ctx = logger.WithUserID(ctx, identity.UserID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
