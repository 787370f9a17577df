package domain

import (
	"context"
	"time"
)

// SignalProvider 第三方受众信号提供商客户端接口
type SignalProvider interface {
	// DiscoverSignals 按查询条件发现可用信号
	DiscoverSignals(ctx context.Context, query *SignalQuery) ([]*AudienceSignal, error)

	// ActivateSignal 激活单个信号
	ActivateSignal(ctx context.Context, signalID string, config *ActivationConfig) (*Activation, error)

	// GetStats 获取客户端统计
	GetStats() *ProviderStats

	// Destroy 释放客户端资源
	Destroy() error
}

// InventoryService 外部广告库存查询接口（本引擎不实现库存本身）
type InventoryService interface {
	// Query 按广告位、增强上下文与定向条件查询候选广告
	Query(ctx context.Context, placement *Placement, enhanced *EnhancedContext, criteria *TargetingCriteria) ([]*Ad, error)
}

// SignalCache 信号发现结果缓存
type SignalCache interface {
	// Get 按查询指纹取缓存，未命中返回 ErrCacheMiss
	Get(ctx context.Context, query *SignalQuery) ([]*AudienceSignal, error)

	// Set 写入缓存
	Set(ctx context.Context, query *SignalQuery, signals []*AudienceSignal, ttl time.Duration) error
}
