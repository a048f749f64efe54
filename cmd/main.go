package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/planningpoker/config"
	"github.com/lvdashuaibi/planningpoker/internal/api/graph"
	"github.com/lvdashuaibi/planningpoker/internal/auth"
	intkafka "github.com/lvdashuaibi/planningpoker/internal/kafka"
	"github.com/lvdashuaibi/planningpoker/internal/lock"
	"github.com/lvdashuaibi/planningpoker/internal/logger"
	"github.com/lvdashuaibi/planningpoker/internal/repository"
	"github.com/lvdashuaibi/planningpoker/internal/service"
)

const (
	// 多实例同时启动时只允许一个实例执行建表
	MigrateLockName    = "planningpoker:service:migrate:lock"
	MigrateLockTimeout = 30 * time.Second
)

var (
	configPath = flag.String("config", "config/config.yaml", "配置文件路径")
	instanceID = flag.Int("instance", 1, "实例ID，用于区分多个实例")
)

type store interface {
	service.PollStore
	service.UserStore
	Close() error
}

func main() {
	// 解析命令行参数
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	zl, err := logger.New(cfg.App.Mode)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zl.Sync()
	zl = zl.With(zap.Int("instance", *instanceID))
	zl.Info("配置加载成功", zap.String("storage", cfg.Storage.Driver), zap.String("lock", cfg.Lock.Driver))

	if cfg.App.Mode == logger.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, zl); err != nil {
		zl.Fatal("服务异常退出", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx := context.Background()

	// 创建分布式锁
	distributedLock, err := lock.New(ctx, cfg, zl)
	if err != nil {
		return fmt.Errorf("初始化分布式锁失败: %w", err)
	}
	defer distributedLock.Close()
	zl.Info("分布式锁初始化成功", zap.String("driver", cfg.Lock.Driver))

	// 创建存储
	st, err := openStore(ctx, cfg, distributedLock, zl)
	if err != nil {
		return err
	}
	defer st.Close()

	// 创建Redis缓存
	var cache service.PollCache
	if cfg.Redis.Enabled {
		redisRepo, err := repository.NewRedisRepository(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("初始化Redis仓库失败: %w", err)
		}
		defer redisRepo.Close()
		cache = redisRepo
		zl.Info("Redis仓库初始化成功")
	}

	// 创建Kafka生产者
	var publisher service.EventPublisher
	var producer *intkafka.Producer
	if cfg.Kafka.Enabled {
		producer, err = intkafka.NewProducer(ctx, cfg.Kafka, zl)
		if err != nil {
			return fmt.Errorf("初始化Kafka生产者失败: %w", err)
		}
		defer producer.Close()
		publisher = producer
		zl.Info("Kafka生产者初始化成功")
	}

	lockOpts := lock.Options{
		TTL:           cfg.Lock.TTL,
		RetryCount:    cfg.Lock.RetryCount,
		RetryInterval: cfg.Lock.RetryInterval,
	}
	pollService := service.NewPollService(st, cache, distributedLock, publisher, lockOpts, zl)
	userService := service.NewUserService(st, auth.NewTokenService(cfg.Auth), zl)

	// 启动Kafka消费者
	if cfg.Kafka.Enabled {
		consumer, err := intkafka.NewConsumer(ctx, cfg.Kafka, zl)
		if err != nil {
			return fmt.Errorf("初始化Kafka消费者失败: %w", err)
		}
		defer consumer.Stop()
		consumer.StartConsuming(pollService.ProcessPollEvent)
	}

	// 创建GraphQL服务
	graphqlServer := graph.NewGraphQLServer(pollService, userService, cfg.GraphQL, zl)

	// 计算端口，支持多实例
	serverPort := cfg.Server.Port + *instanceID - 1

	// 启动HTTP服务器(异步)
	errCh := make(chan error, 1)
	go func() {
		errCh <- graphqlServer.Start(serverPort)
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("启动GraphQL服务器失败: %w", err)
		}
		return nil
	case sig := <-quit:
		zl.Info("正在关闭服务...", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := graphqlServer.Shutdown(shutdownCtx); err != nil {
		zl.Warn("HTTP服务关闭超时", zap.Error(err))
	}
	return nil
}

// openStore 按驱动创建存储，MySQL在迁移锁内建表
func openStore(ctx context.Context, cfg *config.Config, l lock.Lock, zl *zap.Logger) (store, error) {
	if cfg.Storage.Driver != config.StorageMySQL {
		zl.Warn("使用内存存储，数据不会持久化")
		return repository.NewMemoryRepository(), nil
	}

	mysqlRepo, err := repository.NewMySQLRepository(ctx, cfg.MySQL, zl)
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL仓库失败: %w", err)
	}

	opts := lock.Options{TTL: MigrateLockTimeout, RetryCount: 60, RetryInterval: 500 * time.Millisecond}
	err = lock.WithLock(ctx, l, MigrateLockName, opts, func() error {
		return mysqlRepo.Migrate(ctx)
	})
	if err != nil {
		mysqlRepo.Close()
		return nil, fmt.Errorf("初始化数据表失败: %w", err)
	}

	zl.Info("MySQL仓库初始化成功")
	return mysqlRepo, nil
}
