package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := WithUserID(WithRequestID(context.Background(), "req-1"), 42)
	FromContext(ctx, base).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("日志条数 = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" {
		t.Errorf("request_id = %v", fields["request_id"])
	}
	if fields["user_id"] != int64(42) {
		t.Errorf("user_id = %v", fields["user_id"])
	}
}

func TestFromContextWithoutValues(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	FromContext(context.Background(), zap.New(core)).Info("plain")

	if got := len(logs.All()[0].Context); got != 0 {
		t.Errorf("字段数 = %d, want 0", got)
	}
	if RequestID(context.Background()) != "" {
		t.Error("空上下文不应带请求ID")
	}
}
