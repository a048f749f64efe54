package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsValidWeight(t *testing.T) {
	for _, w := range []int{1, 2, 3, 5, 8, 13, 21} {
		if !IsValidWeight(w) {
			t.Errorf("IsValidWeight(%d) = false, want true", w)
		}
	}
	for _, w := range []int{-1, 0, 4, 6, 7, 20, 34} {
		if IsValidWeight(w) {
			t.Errorf("IsValidWeight(%d) = true, want false", w)
		}
	}
}

func TestIdentityIsAnonymous(t *testing.T) {
	if !(Identity{}).IsAnonymous() {
		t.Error("零值身份应为匿名")
	}
	u := &User{ID: 7, Username: "alice"}
	if u.Identity().IsAnonymous() {
		t.Error("已登录用户不应为匿名")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"未登录", ErrUnauthenticated, KindUnauthenticated},
		{"包装后的已关闭", fmt.Errorf("投票失败: %w", ErrPollClosed), KindPollClosed},
		{"普通错误", errors.New("boom"), KindInternal},
		{"内部错误", Internal("查询失败", errors.New("io")), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorIs(t *testing.T) {
	if !errors.Is(fmt.Errorf("x: %w", ErrPollNotFound), ErrPollNotFound) {
		t.Error("包装后应匹配 ErrPollNotFound")
	}
	if errors.Is(ErrUserNotFound, ErrPollNotFound) {
		t.Error("不同文本的 NOT_FOUND 不应相等")
	}
	if !errors.Is(ErrUserNotFound, &Error{Kind: KindNotFound}) {
		t.Error("未指定文本时应按类别匹配")
	}

	inner := errors.New("connection refused")
	if !errors.Is(Internal("查询失败", inner), inner) {
		t.Error("Internal 应保留原始错误")
	}
}

func TestErrorExtensions(t *testing.T) {
	ext := ErrPollClosed.Extensions()
	if ext["code"] != "POLL_CLOSED" {
		t.Errorf("code = %v, want POLL_CLOSED", ext["code"])
	}
}
