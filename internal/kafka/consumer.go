package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/planningpoker/config"
	"github.com/lvdashuaibi/planningpoker/internal/model"
)

type Consumer struct {
	readers []*kafka.Reader
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type MessageHandler func(ctx context.Context, event *model.PollEvent) error

func NewConsumer(ctx context.Context, cfg config.KafkaConfig, logger *zap.Logger) (*Consumer, error) {
	partitions, err := topicPartitions(ctx, cfg)
	if err != nil {
		return nil, err
	}

	numWorkers := cfg.Workers
	if numWorkers < 1 {
		numWorkers = 1
	}
	if len(partitions) > 0 && len(partitions) < numWorkers {
		logger.Info("分区数量小于期望的worker数量",
			zap.Int("partitions", len(partitions)), zap.Int("workers", numWorkers))
		numWorkers = len(partitions)
	}

	readers := make([]*kafka.Reader, 0, numWorkers)
	if len(partitions) == 0 {
		// 未检测到分区时使用消费者组模式
		readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6, // 10MB
		}))
		logger.Info("使用消费者组模式", zap.String("group_id", cfg.GroupID))
	} else {
		// 消费者组内多个Reader共享分区分配，同一分区的事件保持顺序
		for i := 0; i < numWorkers; i++ {
			readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
				Brokers:  cfg.Brokers,
				Topic:    cfg.Topic,
				GroupID:  cfg.GroupID,
				MinBytes: 1,
				MaxBytes: 10e6, // 10MB
			}))
		}
	}

	cctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		readers: readers,
		logger:  logger,
		ctx:     cctx,
		cancel:  cancel,
	}, nil
}

// StartConsuming 开始消费消息，每个Reader一个goroutine
func (c *Consumer) StartConsuming(handler MessageHandler) {
	for i, reader := range c.readers {
		c.wg.Add(1)
		go func(workerID int, r *kafka.Reader) {
			defer c.wg.Done()
			c.consumeMessages(workerID, r, handler)
		}(i, reader)
	}

	c.logger.Info("已启动Kafka消费者", zap.Int("workers", len(c.readers)))
}

// consumeMessages 单个消费者goroutine的消费逻辑
func (c *Consumer) consumeMessages(workerID int, reader *kafka.Reader, handler MessageHandler) {
	log := c.logger.With(zap.Int("worker", workerID))
	log.Debug("消费者工作线程已启动")

	for {
		m, err := reader.FetchMessage(c.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || c.ctx.Err() != nil {
				log.Debug("消费者工作线程收到停止信号")
				return
			}
			log.Warn("读取消息失败", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		event, err := decodeEvent(m)
		if err != nil {
			log.Warn("丢弃无法解析的消息", zap.Int64("offset", m.Offset), zap.Error(err))
		} else if err := handler(c.ctx, event); err != nil {
			log.Error("处理议题事件失败",
				zap.String("type", string(event.Type)), zap.Int64("poll_id", event.PollID), zap.Error(err))
		}

		if err := reader.CommitMessages(c.ctx, m); err != nil && c.ctx.Err() == nil {
			log.Warn("提交偏移量失败", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// Stop 停止消费
func (c *Consumer) Stop() error {
	c.logger.Info("正在停止Kafka消费者")
	c.cancel()
	c.wg.Wait()

	var errs []error
	for _, reader := range c.readers {
		if err := reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
