package auth

import (
	"context"
	"testing"
	"time"

	"github.com/lvdashuaibi/planningpoker/config"
	"github.com/lvdashuaibi/planningpoker/internal/model"
)

func newTestTokenService(now *time.Time) *TokenService {
	s := NewTokenService(config.AuthConfig{
		JWTSecret:  "test-secret",
		AccessTTL:  5 * time.Minute,
		RefreshTTL: time.Hour,
	})
	s.now = func() time.Time { return *now }
	return s
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newTestTokenService(&now)

	tok, err := s.Issue(&model.User{ID: 42, Username: "alice"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if tok.RefreshExpiresIn != now.Unix()+3600 {
		t.Errorf("RefreshExpiresIn = %d, want %d", tok.RefreshExpiresIn, now.Unix()+3600)
	}

	claims, err := s.Verify(tok.Token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	id, _ := claims.UserID()
	if id != 42 || claims.Username != "alice" || claims.OrigIat != now.Unix() {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ExpiresAt.Unix() != now.Add(5*time.Minute).Unix() {
		t.Errorf("exp = %v", claims.ExpiresAt)
	}
}

func TestVerifyRejects(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newTestTokenService(&now)
	tok, _ := s.Issue(&model.User{ID: 1, Username: "alice"})

	other := NewTokenService(config.AuthConfig{JWTSecret: "other", AccessTTL: time.Minute, RefreshTTL: time.Hour})
	other.now = s.now
	foreign, _ := other.Issue(&model.User{ID: 1, Username: "alice"})

	tests := []struct {
		name  string
		token string
		shift time.Duration
	}{
		{"空令牌", "", 0},
		{"格式错误", "not-a-jwt", 0},
		{"篡改", tok.Token + "x", 0},
		{"密钥不同", foreign.Token, 0},
		{"已过期", tok.Token, 10 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now = time.Unix(1_700_000_000, 0).Add(tt.shift)
			_, err := s.Verify(tt.token)
			if model.KindOf(err) != model.KindUnauthenticated {
				t.Errorf("Verify() err = %v, want Unauthenticated", err)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	now := start
	s := newTestTokenService(&now)
	tok, _ := s.Issue(&model.User{ID: 7, Username: "bob"})

	// 访问令牌过期但仍在刷新窗口内
	now = start.Add(30 * time.Minute)
	refreshed, err := s.Refresh(tok.Token)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if refreshed.Payload.OrigIat != start.Unix() {
		t.Errorf("OrigIat = %d, want %d", refreshed.Payload.OrigIat, start.Unix())
	}
	if refreshed.RefreshExpiresIn != tok.RefreshExpiresIn {
		t.Errorf("RefreshExpiresIn = %d, want %d", refreshed.RefreshExpiresIn, tok.RefreshExpiresIn)
	}
	if _, err := s.Verify(refreshed.Token); err != nil {
		t.Errorf("刷新后的令牌应可验证: %v", err)
	}

	now = start.Add(2 * time.Hour)
	if _, err := s.Refresh(refreshed.Token); model.KindOf(err) != model.KindUnauthenticated {
		t.Errorf("超过刷新期限 err = %v, want Unauthenticated", err)
	}

	if _, err := s.Refresh("garbage"); model.KindOf(err) != model.KindUnauthenticated {
		t.Errorf("无效令牌 err = %v, want Unauthenticated", err)
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("不应保存明文密码")
	}
	if !CheckPassword(hash, "s3cret") {
		t.Error("正确密码校验失败")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("错误密码不应通过")
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"JWT abc", "abc"},
		{"jwt abc", "abc"},
		{"Bearer abc", "abc"},
		{"  Bearer   abc  ", "abc"},
		{"Basic abc", ""},
		{"abc", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ExtractToken(tt.header); got != tt.want {
			t.Errorf("ExtractToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	if !IdentityFromContext(ctx).IsAnonymous() {
		t.Error("未设置身份时应为匿名")
	}

	ctx = WithIdentity(ctx, model.Identity{UserID: 3, Username: "carol"})
	if got := IdentityFromContext(ctx); got.UserID != 3 || got.Username != "carol" {
		t.Errorf("IdentityFromContext() = %+v", got)
	}
}
