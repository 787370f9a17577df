package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// DecisionEvent 广告决策事件，供下游分析服务消费
type DecisionEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Identity    string    `json:"identity"`
	Variant     string    `json:"variant"`
	PlacementID string    `json:"placement_id"`
	AdCount     int       `json:"ad_count"`
	SignalCount int       `json:"signal_count"`
	TotalCost   float64   `json:"total_cost"`
	LatencyMs   float64   `json:"latency_ms"`
	Fallback    bool      `json:"fallback"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher 决策事件发布器接口
type Publisher interface {
	// PublishDecision 发布决策事件
	PublishDecision(ctx context.Context, event *DecisionEvent) error

	// Close 关闭发布器
	Close() error
}

// PublisherConfig 发布器配置
type PublisherConfig struct {
	Brokers      []string
	Topic        string
	RetryMax     int
	RequiredAcks sarama.RequiredAcks
	Compression  sarama.CompressionCodec
}

// DefaultPublisherConfig 默认配置
func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "ad.decision.events",
		RetryMax:     3,
		RequiredAcks: sarama.WaitForLocal,
		Compression:  sarama.CompressionSnappy,
	}
}

// KafkaPublisher Kafka 决策事件发布器
type KafkaPublisher struct {
	producer sarama.SyncProducer
	config   *PublisherConfig
}

// NewKafkaPublisher 创建 Kafka 发布器
func NewKafkaPublisher(config *PublisherConfig) (*KafkaPublisher, error) {
	if config == nil {
		config = DefaultPublisherConfig()
	}

	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Return.Errors = true
	kafkaConfig.Producer.RequiredAcks = config.RequiredAcks
	kafkaConfig.Producer.Compression = config.Compression
	kafkaConfig.Producer.Retry.Max = config.RetryMax
	kafkaConfig.Version = sarama.V3_6_0_0

	producer, err := sarama.NewSyncProducer(config.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaPublisher{
		producer: producer,
		config:   config,
	}, nil
}

// PublishDecision 发布决策事件
func (p *KafkaPublisher) PublishDecision(ctx context.Context, event *DecisionEvent) error {
	// 填充默认值
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.EventType == "" {
		event.EventType = "ad.decision"
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.config.Topic,
		Key:   sarama.StringEncoder(event.Identity),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.EventType)},
			{Key: []byte("variant"), Value: []byte(event.Variant)},
		},
		Timestamp: time.Now(),
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close 关闭发布器
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// MockPublisher 模拟发布器（用于测试）
type MockPublisher struct {
	Events []*DecisionEvent
}

// NewMockPublisher 创建模拟发布器
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Events: make([]*DecisionEvent, 0)}
}

// PublishDecision 记录事件
func (m *MockPublisher) PublishDecision(ctx context.Context, event *DecisionEvent) error {
	m.Events = append(m.Events, event)
	return nil
}

// Close 关闭
func (m *MockPublisher) Close() error {
	return nil
}

// Clear 清空事件
func (m *MockPublisher) Clear() {
	m.Events = make([]*DecisionEvent, 0)
}
