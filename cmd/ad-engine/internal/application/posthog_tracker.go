package application

import (
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/posthog/posthog-go"
)

// PostHogConfig PostHog 配置
type PostHogConfig struct {
	APIKey  string
	Host    string // 默认 https://app.posthog.com，或自托管地址
	Enabled bool
}

// PostHogTracker 实验曝光与结果上报（可选，未启用时所有方法为空操作）
type PostHogTracker struct {
	client  posthog.Client
	enabled bool
	log     *log.Helper
}

// NewPostHogTracker 创建 PostHog 上报器
func NewPostHogTracker(config PostHogConfig, logger log.Logger) (*PostHogTracker, error) {
	helper := log.NewHelper(log.With(logger, "module", "posthog_tracker"))

	if !config.Enabled {
		helper.Info("PostHog tracking is disabled")
		return &PostHogTracker{enabled: false, log: helper}, nil
	}

	if config.Host == "" {
		config.Host = "https://app.posthog.com"
	}

	client, err := posthog.NewWithConfig(config.APIKey, posthog.Config{
		Endpoint:  config.Host,
		BatchSize: 100,
		Interval:  30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create PostHog client: %w", err)
	}

	helper.Infof("PostHog tracking initialized with host: %s", config.Host)
	return &PostHogTracker{client: client, enabled: true, log: helper}, nil
}

// TrackExposure 上报实验曝光
func (t *PostHogTracker) TrackExposure(experimentID, identity, variant string) {
	if t == nil || !t.enabled {
		return
	}

	err := t.client.Enqueue(posthog.Capture{
		DistinctId: identity,
		Event:      "experiment_exposure",
		Properties: map[string]interface{}{
			"experiment_id": experimentID,
			"variant":       variant,
		},
	})
	if err != nil {
		t.log.Errorf("failed to track exposure: %v", err)
	}
}

// TrackOutcome 上报投放结果
func (t *PostHogTracker) TrackOutcome(experimentID, identity string, properties map[string]interface{}) {
	if t == nil || !t.enabled {
		return
	}

	props := map[string]interface{}{"experiment_id": experimentID}
	for k, v := range properties {
		props[k] = v
	}

	err := t.client.Enqueue(posthog.Capture{
		DistinctId: identity,
		Event:      "ad_outcome",
		Properties: props,
	})
	if err != nil {
		t.log.Errorf("failed to track outcome: %v", err)
	}
}

// Close 关闭客户端
func (t *PostHogTracker) Close() error {
	if t == nil || !t.enabled {
		return nil
	}
	return t.client.Close()
}
