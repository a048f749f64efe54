package auth

import (
	"context"
	"strings"

	"github.com/lvdashuaibi/planningpoker/internal/model"
)

type ctxKey string

var identityKey ctxKey = "identity"

// WithIdentity 将请求者身份写入上下文
func WithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext 读取请求者身份，未设置时返回匿名身份
func IdentityFromContext(ctx context.Context) model.Identity {
	identity, _ := ctx.Value(identityKey).(model.Identity)
	return identity
}

// ExtractToken 从Authorization头解析令牌，支持 "JWT <token>" 和 "Bearer <token>"
func ExtractToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "JWT") && !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
