package domain

import (
	"time"
)

// AudienceSignal 第三方受众信号（每次请求由外部提供商返回，本引擎不持久化）
type AudienceSignal struct {
	ID         string         `json:"id"`
	Provider   string         `json:"provider"`
	Category   string         `json:"category"`
	CPM        float64        `json:"cpm"`        // >= 0
	Reach      int64          `json:"reach"`      // >= 0
	Confidence float64        `json:"confidence"` // [0,1]
	Metadata   SignalMetadata `json:"metadata"`
}

// SignalMetadata 信号元数据
type SignalMetadata struct {
	Topics       []string          `json:"topics"`
	Intents      []string          `json:"intents"`
	Demographics map[string]string `json:"demographics,omitempty"`
	// DataFreshness [0,1]；<=0 视为未知，打分时取 0.5
	DataFreshness float64 `json:"data_freshness"`
}

// 信号类目（提供商侧）
const (
	SignalCategoryBehavioral  = "behavioral"
	SignalCategoryDemographic = "demographic"
	SignalCategoryContextual  = "contextual"
)

// ScoredSignal 打分后的信号，单次打分产生，请求结束即丢弃
type ScoredSignal struct {
	Signal         *AudienceSignal `json:"signal"`
	Relevance      float64         `json:"relevance"`       // [0,1]
	Quality        float64         `json:"quality"`         // [0,1]
	CostEfficiency float64         `json:"cost_efficiency"` // [0,1]
	Reach          float64         `json:"reach"`           // [0,1]
	Total          float64         `json:"total"`           // [0,1]
	Selected       bool            `json:"selected"`
	ActivationID   string          `json:"activation_id,omitempty"`
}

// SignalQuery 信号发现查询
type SignalQuery struct {
	Topics     []string `json:"topics"`
	Categories []string `json:"categories"`
	Intent     string   `json:"intent"`
	MaxResults int      `json:"max_results"`
}

// ActivationConfig 信号激活配置
type ActivationConfig struct {
	PlacementID string `json:"placement_id"`
	TTLSeconds  int    `json:"ttl_seconds"`
}

// Activation 信号激活结果
type Activation struct {
	ID          string    `json:"id"`
	SignalID    string    `json:"signal_id"`
	Status      string    `json:"status"`
	ActivatedAt time.Time `json:"activated_at"`
}

// EnhancementMetadata 增强元数据（仅用于可观测性）
type EnhancementMetadata struct {
	Timestamp        time.Time `json:"timestamp"`
	SessionID        string    `json:"session_id"`
	SignalCount      int       `json:"signal_count"`
	TotalCost        float64   `json:"total_cost"`
	ExpectedLift     float64   `json:"expected_lift"`
	Confidence       float64   `json:"confidence"`
	ProcessingTimeMs float64   `json:"processing_time_ms"`
}

// EnhancedContext 增强后的上下文：原始上下文 + 命中的信号 + 元数据
type EnhancedContext struct {
	Context  *ConversationContext `json:"context"`
	Signals  []*ScoredSignal      `json:"signals,omitempty"`
	Metadata *EnhancementMetadata `json:"metadata,omitempty"`
}

// ProviderStats 信号提供商客户端统计
type ProviderStats struct {
	DiscoverCalls    int64  `json:"discover_calls"`
	ActivateCalls    int64  `json:"activate_calls"`
	DiscoverFailures int64  `json:"discover_failures"`
	ActivateFailures int64  `json:"activate_failures"`
	BreakerState     string `json:"breaker_state"`
}
