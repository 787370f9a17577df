package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adengine/cmd/ad-engine/internal/application"
	"adengine/cmd/ad-engine/internal/domain"
	"adengine/pkg/health"
)

type stubProvider struct{}

func (p *stubProvider) DiscoverSignals(ctx context.Context, query *domain.SignalQuery) ([]*domain.AudienceSignal, error) {
	return []*domain.AudienceSignal{
		{
			ID:         "sig-1",
			Provider:   "stub",
			Category:   domain.SignalCategoryBehavioral,
			CPM:        2.0,
			Reach:      100000,
			Confidence: 0.9,
			Metadata: domain.SignalMetadata{
				Topics:        []string{"smartphones"},
				DataFreshness: 0.8,
			},
		},
	}, nil
}

func (p *stubProvider) ActivateSignal(ctx context.Context, signalID string, config *domain.ActivationConfig) (*domain.Activation, error) {
	return &domain.Activation{ID: "act_" + signalID, SignalID: signalID, Status: "active", ActivatedAt: time.Now()}, nil
}

func (p *stubProvider) GetStats() *domain.ProviderStats { return &domain.ProviderStats{} }
func (p *stubProvider) Destroy() error                  { return nil }

type stubInventory struct{}

func (i *stubInventory) Query(ctx context.Context, placement *domain.Placement, enhanced *domain.EnhancedContext, criteria *domain.TargetingCriteria) ([]*domain.Ad, error) {
	return []*domain.Ad{
		{
			ID: "ad-001",
			Content: domain.AdContent{
				Title:       "New flagship phone",
				Description: "Great camera and battery",
				Keywords:    []string{"phone", "camera"},
			},
		},
	}, nil
}

func newTestServer(t *testing.T) *HTTPServer {
	t.Helper()

	klogger := log.NewStdLogger(os.Stdout)
	relevance := application.NewRelevanceScorer(klogger)
	targeting := application.NewEnhancedTargeting(
		nil,
		application.NewContextAnalyzer(nil),
		application.NewSignalScorer(nil, klogger),
		relevance,
		nil,
		&stubProvider{},
		&stubInventory{},
		nil,
		nil,
		klogger,
	)

	return NewHTTPServer(targeting, relevance, health.NewHealthChecker(), zap.NewNop())
}

func doRequest(t *testing.T, srv *HTTPServer, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	return w
}

func TestHTTPServer_Health(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "ad-engine", resp["service"])
}

func TestHTTPServer_SelectAds(t *testing.T) {
	srv := newTestServer(t)

	body := map[string]interface{}{
		"placement": map[string]interface{}{"id": "chat_inline", "max_ads": 3},
		"context": map[string]interface{}{
			"topics": []map[string]interface{}{
				{"name": "smartphones", "category": "technology", "confidence": 0.9, "keywords": []string{"phone", "camera"}, "relevance_score": 0.8},
			},
			"intent":     map[string]interface{}{"primary": "buy_phone", "category": "commercial", "confidence": 0.85, "actionable": true},
			"sentiment":  map[string]interface{}{"polarity": 0.5, "magnitude": 0.6, "confidence": 0.9},
			"stage":      map[string]interface{}{"name": "decision_making", "progress": 0.7},
			"engagement": map[string]interface{}{"score": 0.8, "tier": "high", "trend": "stable"},
			"confidence": 0.9,
		},
	}

	w := doRequest(t, srv, http.MethodPost, "/api/v1/ads/select", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Ads   []*domain.Ad `json:"ads"`
		Count int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Ads, 1)
	assert.Equal(t, "ad-001", resp.Ads[0].ID)
}

func TestHTTPServer_SelectAds_BadRequest(t *testing.T) {
	srv := newTestServer(t)

	// 缺少 placement 和 context
	w := doRequest(t, srv, http.MethodPost, "/api/v1/ads/select", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHTTPServer_Track(t *testing.T) {
	srv := newTestServer(t)

	body := map[string]interface{}{
		"identity": "user_1",
		"delta":    map[string]interface{}{"impressions": 10, "clicks": 1},
	}
	w := doRequest(t, srv, http.MethodPost, "/api/v1/ads/track", body)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHTTPServer_ExperimentResults_NotConfigured(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/experiment/results", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, srv, http.MethodPost, "/api/v1/experiment/reset", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHTTPServer_ValidateTargeting(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/targeting/validate", map[string]interface{}{})
	require.Equal(t, http.StatusOK, w.Code)

	var report domain.TargetingValidation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.False(t, report.Valid)
	assert.Contains(t, report.Issues, "No targeting criteria specified")
}

func TestHTTPServer_Stats(t *testing.T) {
	srv := newTestServer(t)

	// 先打一次请求再查统计
	body := map[string]interface{}{
		"placement": map[string]interface{}{"id": "chat_inline", "max_ads": 1},
		"context":   map[string]interface{}{"confidence": 0.5, "intent": map[string]interface{}{"category": "informational", "confidence": 0.5}},
	}
	doRequest(t, srv, http.MethodPost, "/api/v1/ads/select", body)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats application.TargetingStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalRequests)
}
