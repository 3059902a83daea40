package kafka

import (
	"Crosspost/internal/api/config"
	"context"
	log "log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

// EventPublisher 对外广播帖子生命周期事件
type EventPublisher interface {
	PostUpdated(ctx context.Context, postID uint64, status string)
	Close() error
}

// PostEvent 投递到 Kafka 的事件体
type PostEvent struct {
	Type       string `json:"type"`
	PostID     uint64 `json:"postId"`
	Status     string `json:"status"`
	OccurredAt string `json:"occurredAt"`
}

type saramaPublisher struct {
	producer sarama.AsyncProducer
	topic    string
}

// NewEventPublisher 创建 Kafka 事件发布器，未启用时返回空实现
func NewEventPublisher(cfg config.KafkaConfig) (EventPublisher, error) {
	if !cfg.Enable {
		return &noopPublisher{}, nil
	}

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, newSaramaConfig(cfg))
	if err != nil {
		return nil, err
	}

	p := &saramaPublisher{producer: producer, topic: cfg.Topic}

	// 异步生产失败只记录，不影响调度主流程
	go func() {
		for err := range producer.Errors() {
			log.Error("kafka produce error", "topic", err.Msg.Topic, "err", err.Err)
		}
	}()

	return p, nil
}

func (s *saramaPublisher) PostUpdated(ctx context.Context, postID uint64, status string) {
	event := PostEvent{
		Type:       "post.updated",
		PostID:     postID,
		Status:     status,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.ErrorContext(ctx, "kafka event marshal failed", "postID", postID, "err", err)
		return
	}

	s.producer.Input() <- &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(postID, 10)),
		Value: sarama.ByteEncoder(payload),
	}
}

func (s *saramaPublisher) Close() error {
	return s.producer.Close()
}

type noopPublisher struct{}

func (s *noopPublisher) PostUpdated(ctx context.Context, postID uint64, status string) {}

func (s *noopPublisher) Close() error { return nil }
