package domain

import (
	"errors"
)

var (
	// ErrEnhancementTimeout 增强管线超时
	ErrEnhancementTimeout = errors.New("enhancement pipeline timed out")
	// ErrEnhancementDisabled 增强路径被配置关闭
	ErrEnhancementDisabled = errors.New("enhancement disabled")
	// ErrCacheMiss 缓存未命中
	ErrCacheMiss = errors.New("signal cache miss")
	// ErrProviderUnavailable 信号提供商不可用（熔断打开）
	ErrProviderUnavailable = errors.New("signal provider unavailable")
	// ErrInventoryUnavailable 库存服务不可用
	ErrInventoryUnavailable = errors.New("inventory service unavailable")
	// ErrNoExperiment 未配置实验
	ErrNoExperiment = errors.New("no experiment configured")
	// ErrInvalidPlacement 广告位非法
	ErrInvalidPlacement = errors.New("invalid placement")
)
