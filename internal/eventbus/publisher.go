package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Publisher delivers events to a topic
type Publisher interface {
	Publish(ctx context.Context, topic string, event interface{}) error
	Close() error
}

// RedisPublisher appends events to redis streams as {"payload": <json>}
type RedisPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPublisher publishes through an existing client. Close does not close the client.
func NewRedisPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{
		client: client,
		logger: logger.Named("eventbus"),
	}
}

func (r *RedisPublisher) Publish(ctx context.Context, topic string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{"payload": data},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	r.logger.Debug("Event published", zap.String("topic", topic), zap.String("msg_id", id))
	return nil
}

func (r *RedisPublisher) Close() error {
	return nil
}

// LogPublisher logs events instead of delivering them; used when no broker is configured
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("eventbus")}
}

func (l *LogPublisher) Publish(_ context.Context, topic string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	l.logger.Info("Event not delivered, no broker configured",
		zap.String("topic", topic),
		zap.Int("bytes", len(data)))
	return nil
}

func (l *LogPublisher) Close() error {
	return nil
}

// MemoryPublisher records events per topic
type MemoryPublisher struct {
	mu     sync.RWMutex
	events map[string][]json.RawMessage
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{events: make(map[string][]json.RawMessage)}
}

func (m *MemoryPublisher) Publish(_ context.Context, topic string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[topic] = append(m.events[topic], data)
	return nil
}

// Events returns the payloads published to topic, oldest first
func (m *MemoryPublisher) Events(topic string) []json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]json.RawMessage, len(m.events[topic]))
	copy(out, m.events[topic])
	return out
}

func (m *MemoryPublisher) Close() error {
	return nil
}
