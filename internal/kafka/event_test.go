package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lvdashuaibi/planningpoker/internal/model"
)

func TestEncodeDecodeEvent(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	event := &model.PollEvent{Type: model.EventPollClosed, PollID: 42, UserID: 7, Result: 8, OccurredAt: at}

	msg, err := encodeEvent(event)
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}
	if string(msg.Key) != "42" {
		t.Errorf("Key = %q, want 42", msg.Key)
	}
	if !msg.Time.Equal(at) {
		t.Errorf("Time = %v, want %v", msg.Time, at)
	}

	decoded, err := decodeEvent(msg)
	if err != nil {
		t.Fatalf("decodeEvent() error = %v", err)
	}
	if decoded.Type != model.EventPollClosed || decoded.PollID != 42 || decoded.Result != 8 || !decoded.OccurredAt.Equal(at) {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestEncodeEventFillsTime(t *testing.T) {
	event := &model.PollEvent{Type: model.EventPollCreated, PollID: 1}
	if _, err := encodeEvent(event); err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}
	if event.OccurredAt.IsZero() {
		t.Error("缺省的发生时间应被填充")
	}
}

func TestDecodeEventRejects(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"非JSON", "not json"},
		{"未知类型", `{"type":"poll_deleted","pollId":1}`},
		{"缺少类型", `{"pollId":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeEvent(kafka.Message{Value: []byte(tt.value)}); err == nil {
				t.Error("decodeEvent() 应返回错误")
			}
		})
	}
}
