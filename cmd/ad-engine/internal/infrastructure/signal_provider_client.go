package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"adengine/cmd/ad-engine/internal/domain"
)

// SignalProviderConfig 信号提供商客户端配置
type SignalProviderConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SignalProviderClient 信号提供商 HTTP 客户端，带熔断与调用统计
type SignalProviderClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	breaker    *gobreaker.CircuitBreaker

	discoverCalls    atomic.Int64
	activateCalls    atomic.Int64
	discoverFailures atomic.Int64
	activateFailures atomic.Int64
}

// NewSignalProviderClient 创建信号提供商客户端
func NewSignalProviderClient(config *SignalProviderConfig) *SignalProviderClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	client := &SignalProviderClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
	}
	client.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "signal-provider",
		MaxRequests: 3,                // 半开状态下最大请求数
		Interval:    10 * time.Second, // 统计周期
		Timeout:     30 * time.Second, // 熔断器开启后等待时间
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 失败率 >= 60% 且请求数 >= 5 时触发熔断
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})

	return client
}

// discoverResponse 发现接口响应
type discoverResponse struct {
	Signals []*domain.AudienceSignal `json:"signals"`
}

// DiscoverSignals 按查询条件发现可用信号
func (c *SignalProviderClient) DiscoverSignals(ctx context.Context, query *domain.SignalQuery) ([]*domain.AudienceSignal, error) {
	c.discoverCalls.Add(1)

	url := fmt.Sprintf("%s/v1/signals/discover", c.baseURL)
	reqBody, err := json.Marshal(query)
	if err != nil {
		c.discoverFailures.Add(1)
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	respBody, err := c.call(ctx, url, reqBody)
	if err != nil {
		c.discoverFailures.Add(1)
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	var result discoverResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		c.discoverFailures.Add(1)
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return result.Signals, nil
}

// ActivateSignal 激活单个信号
func (c *SignalProviderClient) ActivateSignal(ctx context.Context, signalID string, config *domain.ActivationConfig) (*domain.Activation, error) {
	c.activateCalls.Add(1)

	url := fmt.Sprintf("%s/v1/signals/%s/activate", c.baseURL, signalID)
	reqBody, err := json.Marshal(config)
	if err != nil {
		c.activateFailures.Add(1)
		return nil, fmt.Errorf("marshal activation config: %w", err)
	}

	respBody, err := c.call(ctx, url, reqBody)
	if err != nil {
		c.activateFailures.Add(1)
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	var activation domain.Activation
	if err := json.Unmarshal(respBody, &activation); err != nil {
		c.activateFailures.Add(1)
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if activation.SignalID == "" {
		activation.SignalID = signalID
	}
	return &activation, nil
}

// call 通过熔断器执行调用
func (c *SignalProviderClient) call(ctx context.Context, url string, reqBody []byte) ([]byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doHTTPCall(ctx, url, reqBody)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// doHTTPCall 执行实际的HTTP调用
func (c *SignalProviderClient) doHTTPCall(ctx context.Context, url string, reqBody []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// GetStats 获取客户端统计
func (c *SignalProviderClient) GetStats() *domain.ProviderStats {
	return &domain.ProviderStats{
		DiscoverCalls:    c.discoverCalls.Load(),
		ActivateCalls:    c.activateCalls.Load(),
		DiscoverFailures: c.discoverFailures.Load(),
		ActivateFailures: c.activateFailures.Load(),
		BreakerState:     c.breaker.State().String(),
	}
}

// Destroy 释放客户端资源
func (c *SignalProviderClient) Destroy() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
