package lock

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lvdashuaibi/planningpoker/config"
)

func TestLocalLockAcquireRelease(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	ok, err := l.AcquireLock(ctx, "poll:1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("首次获取 = %v, %v", ok, err)
	}
	if ok, _ := l.AcquireLock(ctx, "poll:1", time.Minute); ok {
		t.Fatal("锁已被持有时不应再次获取成功")
	}
	if ok, _ := l.AcquireLock(ctx, "poll:2", time.Minute); !ok {
		t.Fatal("不同名称的锁应互不影响")
	}

	if err := l.ReleaseLock(ctx, "poll:1"); err != nil {
		t.Fatalf("ReleaseLock() error = %v", err)
	}
	if ok, _ := l.AcquireLock(ctx, "poll:1", time.Minute); !ok {
		t.Fatal("释放后应能重新获取")
	}

	l.ReleaseAllLocks()
	if ok, _ := l.AcquireLock(ctx, "poll:2", time.Minute); !ok {
		t.Fatal("ReleaseAllLocks 后应能重新获取")
	}
}

func TestLocalLockExpires(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	if ok, _ := l.AcquireLock(ctx, "poll:1", 10*time.Millisecond); !ok {
		t.Fatal("首次获取失败")
	}
	time.Sleep(20 * time.Millisecond)
	if ok, _ := l.AcquireLock(ctx, "poll:1", time.Minute); !ok {
		t.Fatal("过期的锁应可被重新获取")
	}
}

func TestWithLockSerializes(t *testing.T) {
	l := NewLocalLock()
	opts := Options{TTL: time.Minute, RetryCount: 1000, RetryInterval: time.Millisecond}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(context.Background(), l, "poll:1", opts, func() error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				time.Sleep(2 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithLock() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("临界区并发数 = %d, want 1", maxSeen)
	}
}

func TestWithLockGivesUp(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()
	l.AcquireLock(ctx, "poll:1", time.Minute)

	called := false
	err := WithLock(ctx, l, "poll:1", Options{TTL: time.Minute, RetryCount: 3, RetryInterval: time.Millisecond}, func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("err = %v, want ErrNotAcquired", err)
	}
	if called {
		t.Error("未获取到锁时不应执行fn")
	}
}

func TestWithLockReturnsFnError(t *testing.T) {
	l := NewLocalLock()
	want := errors.New("boom")

	err := WithLock(context.Background(), l, "poll:1", Options{TTL: time.Minute, RetryCount: 1}, func() error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
	if ok, _ := l.AcquireLock(context.Background(), "poll:1", time.Minute); !ok {
		t.Error("fn返回错误后锁也应被释放")
	}
}

func TestNewByDriver(t *testing.T) {
	cfg := &config.Config{Lock: config.LockConfig{Driver: config.LockLocal}}
	l, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := l.(*LocalLock); !ok {
		t.Errorf("New() = %T, want *LocalLock", l)
	}

	cfg.Lock.Driver = "zookeeper"
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Error("未知驱动应返回错误")
	}
}

func TestRedLockIntegration(t *testing.T) {
	addrs := os.Getenv("PLANNINGPOKER_TEST_REDIS_ADDR")
	if addrs == "" {
		t.Skip("未设置 PLANNINGPOKER_TEST_REDIS_ADDR，跳过Redlock集成测试")
	}

	nodes := strings.Split(addrs, ",")
	clients := make([]*redis.Client, 0, len(nodes))
	for _, addr := range nodes {
		clients = append(clients, redis.NewClient(&redis.Options{Addr: addr, DB: 15}))
	}
	r := NewRedLockWithClients(clients, nodes, nil)
	defer r.Close()

	ctx := context.Background()
	name := "planningpoker:test:redlock"

	ok, err := r.AcquireLock(ctx, name, 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("AcquireLock() = %v, %v", ok, err)
	}
	if ok, _ := r.AcquireLock(ctx, name, 5*time.Second); ok {
		t.Fatal("已持有的锁不应再次获取成功")
	}
	if err := r.ReleaseLock(ctx, name); err != nil {
		t.Fatalf("ReleaseLock() error = %v", err)
	}
	if ok, _ := r.AcquireLock(ctx, name, 5*time.Second); !ok {
		t.Fatal("释放后应能重新获取")
	}
}
