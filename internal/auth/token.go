package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lvdashuaibi/planningpoker/config"
	"github.com/lvdashuaibi/planningpoker/internal/model"
)

var ErrInvalidToken = model.NewError(model.KindUnauthenticated, "无效的令牌")

// Claims JWT载荷，sub为用户ID，origIat为首次签发时间，刷新时保持不变
type Claims struct {
	Username string `json:"username"`
	OrigIat  int64  `json:"origIat"`
	jwt.RegisteredClaims
}

// UserID 从sub解析用户ID
func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Token 签发结果
type Token struct {
	Token            string
	Payload          *Claims
	RefreshExpiresIn int64 // 可刷新截止时间（Unix秒）
}

type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenService(cfg config.AuthConfig) *TokenService {
	return &TokenService{
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
}

// Issue 为用户签发新令牌
func (s *TokenService) Issue(user *model.User) (*Token, error) {
	return s.sign(user.ID, user.Username, s.now().Unix())
}

// Verify 校验签名和过期时间
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	return s.parse(tokenString, jwt.WithTimeFunc(s.now))
}

// Refresh 签名有效且仍在刷新窗口内时签发新令牌，保留原origIat
func (s *TokenService) Refresh(tokenString string) (*Token, error) {
	claims, err := s.parse(tokenString, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}

	if s.now().Unix() >= claims.OrigIat+int64(s.refreshTTL/time.Second) {
		return nil, model.NewError(model.KindUnauthenticated, "令牌已超过刷新期限")
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrInvalidToken
	}
	return s.sign(userID, claims.Username, claims.OrigIat)
}

func (s *TokenService) sign(userID int64, username string, origIat int64) (*Token, error) {
	now := s.now()
	claims := &Claims{
		Username: username,
		OrigIat:  origIat,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, model.Internal("签发令牌失败", err)
	}

	return &Token{
		Token:            signed,
		Payload:          claims,
		RefreshExpiresIn: origIat + int64(s.refreshTTL/time.Second),
	}, nil
}

func (s *TokenService) parse(tokenString string, opts ...jwt.ParserOption) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("意外的签名算法: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.NewError(model.KindUnauthenticated, "令牌已过期")
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
