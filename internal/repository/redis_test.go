package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lvdashuaibi/planningpoker/internal/model"
)

func setupRedis(t *testing.T) *RedisRepository {
	t.Helper()

	addr := os.Getenv("PLANNINGPOKER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("未设置 PLANNINGPOKER_TEST_REDIS_ADDR，跳过Redis集成测试")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("连接Redis失败: %v", err)
	}
	repo := NewRedisRepositoryWithClient(client, time.Minute)
	t.Cleanup(func() {
		repo.InvalidatePolls(context.Background())
		repo.Close()
	})
	return repo
}

func TestRedisPollCache(t *testing.T) {
	repo := setupRedis(t)
	ctx := context.Background()

	if err := repo.InvalidatePolls(ctx); err != nil {
		t.Fatalf("InvalidatePolls() error = %v", err)
	}
	_, version, found, err := repo.GetPolls(ctx)
	if err != nil || found {
		t.Fatalf("GetPolls() found = %v, err = %v, want miss", found, err)
	}

	owner := int64(1)
	polls := []*model.Poll{
		{ID: 1, URL: "u1", Name: "n1", PostedByID: &owner, PostedBy: &model.User{ID: 1, Username: "alice"}, IsOpen: true},
		{ID: 2, URL: "u2", Result: 8},
	}
	if err := repo.SetPolls(ctx, polls, version); err != nil {
		t.Fatalf("SetPolls() error = %v", err)
	}

	cached, _, found, err := repo.GetPolls(ctx)
	if err != nil || !found {
		t.Fatalf("GetPolls() found = %v, err = %v", found, err)
	}
	if len(cached) != 2 || cached[0].PostedBy.Username != "alice" || cached[1].Result != 8 {
		t.Errorf("cached = %+v", cached)
	}

	if err := repo.InvalidatePolls(ctx); err != nil {
		t.Fatalf("InvalidatePolls() error = %v", err)
	}
	if _, _, found, _ := repo.GetPolls(ctx); found {
		t.Error("失效后不应命中缓存")
	}
}

func TestRedisSetPollsSkipsStaleVersion(t *testing.T) {
	repo := setupRedis(t)
	ctx := context.Background()

	_, version, _, err := repo.GetPolls(ctx)
	if err != nil {
		t.Fatalf("GetPolls() error = %v", err)
	}

	// 读取数据库期间有写入使缓存失效
	if err := repo.InvalidatePolls(ctx); err != nil {
		t.Fatalf("InvalidatePolls() error = %v", err)
	}

	stale := []*model.Poll{{ID: 1, URL: "u1", IsOpen: true}}
	if err := repo.SetPolls(ctx, stale, version); err != nil {
		t.Fatalf("SetPolls() error = %v", err)
	}
	if _, _, found, _ := repo.GetPolls(ctx); found {
		t.Error("旧版本的列表不应写入缓存")
	}
}
