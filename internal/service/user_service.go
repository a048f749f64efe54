package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lvdashuaibi/planningpoker/internal/auth"
	"github.com/lvdashuaibi/planningpoker/internal/logger"
	"github.com/lvdashuaibi/planningpoker/internal/model"
)

// UserStore 用户持久化
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
}

type UserService struct {
	store  UserStore
	tokens *auth.TokenService
	logger *zap.Logger
}

func NewUserService(store UserStore, tokens *auth.TokenService, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{store: store, tokens: tokens, logger: logger}
}

// CreateUser 注册用户
func (s *UserService) CreateUser(ctx context.Context, username, password, email string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, model.NewError(model.KindInvalidArgument, "用户名不能为空")
	}
	if password == "" {
		return nil, model.NewError(model.KindInvalidArgument, "密码不能为空")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, model.Internal("生成密码哈希失败", err)
	}

	user := &model.User{
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		DateJoined:   time.Now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, storeError("创建用户失败", err)
	}

	logger.FromContext(ctx, s.logger).Info("用户已注册", zap.Int64("new_user_id", user.ID))
	return user, nil
}

// Me 返回当前请求者
func (s *UserService) Me(ctx context.Context, requester model.Identity) (*model.User, error) {
	if requester.IsAnonymous() {
		return nil, model.ErrUnauthenticated
	}

	user, err := s.store.GetUserByID(ctx, requester.UserID)
	if err != nil {
		return nil, storeError("查询用户失败", err)
	}
	return user, nil
}

// Users 列出所有用户
func (s *UserService) Users(ctx context.Context, requester model.Identity) ([]*model.User, error) {
	if requester.IsAnonymous() {
		return nil, model.ErrUnauthenticated
	}

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, storeError("查询用户失败", err)
	}
	return users, nil
}

// TokenAuth 用户名密码换取令牌
func (s *UserService) TokenAuth(ctx context.Context, username, password string) (*auth.Token, error) {
	badCredentials := model.NewError(model.KindUnauthenticated, "用户名或密码错误")

	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, badCredentials
		}
		return nil, storeError("查询用户失败", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, badCredentials
	}

	return s.tokens.Issue(user)
}

// VerifyToken 校验令牌并返回载荷
func (s *UserService) VerifyToken(_ context.Context, token string) (*auth.Claims, error) {
	return s.tokens.Verify(token)
}

// RefreshToken 在刷新期限内换取新令牌
func (s *UserService) RefreshToken(ctx context.Context, token string) (*auth.Token, error) {
	refreshed, err := s.tokens.Refresh(token)
	if err != nil {
		return nil, err
	}

	// 用户被删除后不再续期
	if _, err := s.authenticatedUser(ctx, refreshed.Payload); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// Authenticate 解析请求令牌为身份，令牌对应的用户必须仍然存在
func (s *UserService) Authenticate(ctx context.Context, token string) (model.Identity, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return model.Identity{}, err
	}

	user, err := s.authenticatedUser(ctx, claims)
	if err != nil {
		return model.Identity{}, err
	}
	return user.Identity(), nil
}

func (s *UserService) authenticatedUser(ctx context.Context, claims *auth.Claims) (*model.User, error) {
	userID, err := claims.UserID()
	if err != nil {
		return nil, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, auth.ErrInvalidToken
		}
		return nil, storeError("查询用户失败", err)
	}
	return user, nil
}
