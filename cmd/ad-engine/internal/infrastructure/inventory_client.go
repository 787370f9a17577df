package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"adengine/cmd/ad-engine/internal/domain"
)

// InventoryConfig 库存服务客户端配置
type InventoryConfig struct {
	BaseURL string
	Timeout time.Duration
}

// InventoryClient 广告库存 HTTP 客户端
type InventoryClient struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
}

// NewInventoryClient 创建库存客户端
func NewInventoryClient(config *InventoryConfig) *InventoryClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}

	client := &InventoryClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: config.BaseURL,
	}
	client.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ad-inventory",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})

	return client
}

// inventoryRequest 库存查询请求
type inventoryRequest struct {
	Placement *domain.Placement         `json:"placement"`
	Enhanced  *domain.EnhancedContext   `json:"enhanced_context,omitempty"`
	Criteria  *domain.TargetingCriteria `json:"criteria,omitempty"`
}

// inventoryResponse 库存查询响应
type inventoryResponse struct {
	Ads []*domain.Ad `json:"ads"`
}

// Query 按广告位、增强上下文与定向条件查询候选广告
func (c *InventoryClient) Query(ctx context.Context, placement *domain.Placement, enhanced *domain.EnhancedContext, criteria *domain.TargetingCriteria) ([]*domain.Ad, error) {
	url := fmt.Sprintf("%s/v1/inventory/query", c.baseURL)

	reqBody, err := json.Marshal(&inventoryRequest{
		Placement: placement,
		Enhanced:  enhanced,
		Criteria:  criteria,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doHTTPCall(ctx, url, reqBody)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInventoryUnavailable, err)
	}

	var resp inventoryResponse
	if err := json.Unmarshal(result.([]byte), &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return resp.Ads, nil
}

// doHTTPCall 执行实际的HTTP调用
func (c *InventoryClient) doHTTPCall(ctx context.Context, url string, reqBody []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

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
