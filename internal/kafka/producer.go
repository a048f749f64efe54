package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/planningpoker/config"
	"github.com/lvdashuaibi/planningpoker/internal/model"
)

type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewProducer(ctx context.Context, cfg config.KafkaConfig, logger *zap.Logger) (*Producer, error) {
	partitions, err := topicPartitions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("生产者检测到Kafka主题分区",
		zap.String("topic", cfg.Topic), zap.Int("partitions", len(partitions)))

	// 使用Hash分区器，同一议题的事件进入同一分区
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}

	return &Producer{writer: writer, logger: logger}, nil
}

// SendPollEvent 发送议题事件到Kafka
func (p *Producer) SendPollEvent(ctx context.Context, event *model.PollEvent) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("发送议题事件失败: %w", err)
	}

	p.logger.Debug("已发送议题事件",
		zap.String("type", string(event.Type)), zap.Int64("poll_id", event.PollID))
	return nil
}

// Close 关闭Kafka生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}

// encodeEvent 以议题ID作为消息Key
func encodeEvent(event *model.PollEvent) (kafka.Message, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("序列化议题事件失败: %w", err)
	}

	return kafka.Message{
		Key:   []byte(strconv.FormatInt(event.PollID, 10)),
		Value: data,
		Time:  event.OccurredAt,
	}, nil
}

func decodeEvent(m kafka.Message) (*model.PollEvent, error) {
	var event model.PollEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return nil, fmt.Errorf("解析议题事件失败: %w", err)
	}
	switch event.Type {
	case model.EventPollCreated, model.EventVoteCast, model.EventPollClosed:
	default:
		return nil, fmt.Errorf("未知的议题事件类型: %q", event.Type)
	}
	return &event, nil
}

// topicPartitions 读取主题的分区ID
func topicPartitions(ctx context.Context, cfg config.KafkaConfig) ([]int, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("未配置Kafka broker")
	}

	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return nil, fmt.Errorf("连接Kafka失败: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(cfg.Topic)
	if err != nil {
		return nil, fmt.Errorf("读取分区信息失败: %w", err)
	}

	ids := make([]int, 0, len(partitions))
	for _, p := range partitions {
		if p.Topic == cfg.Topic {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}
