package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"

	"adengine/cmd/ad-engine/internal/domain"
	"adengine/pkg/events"
	"adengine/pkg/monitoring"
	"adengine/pkg/resilience"
)

// TargetingConfig 增强定向配置
type TargetingConfig struct {
	// EnhancementTimeout 增强管线的竞速时限
	EnhancementTimeout time.Duration
	// FallbackEnabled 增强失败/超时后是否降级到基础路径
	FallbackEnabled bool
	// SlowFallbackThreshold 降级路径耗时告警阈值
	SlowFallbackThreshold time.Duration
	// MaxSignalsPerRequest 单次请求激活的信号数上限
	MaxSignalsPerRequest int
	// MaxBudgetPerRequest 单次请求的 CPM 预算上限
	MaxBudgetPerRequest float64
	// MinSignalScore 信号入选的最低综合分
	MinSignalScore float64
	// ActivationTTLSeconds 信号激活有效期
	ActivationTTLSeconds int
	// ActivationRetries 单个信号激活的重试次数
	ActivationRetries int
	// CacheTTL 发现结果缓存有效期
	CacheTTL time.Duration
}

// DefaultTargetingConfig 默认配置
func DefaultTargetingConfig() *TargetingConfig {
	return &TargetingConfig{
		EnhancementTimeout:    200 * time.Millisecond,
		FallbackEnabled:       true,
		SlowFallbackThreshold: 50 * time.Millisecond,
		MaxSignalsPerRequest:  5,
		MaxBudgetPerRequest:   5.0,
		MinSignalScore:        0.5,
		ActivationTTLSeconds:  300,
		ActivationRetries:     1,
		CacheTTL:              time.Minute,
	}
}

// TargetingStats 引擎运行统计
type TargetingStats struct {
	TotalRequests int64                     `json:"total_requests"`
	FallbackCount int64                     `json:"fallback_count"`
	FallbackRate  float64                   `json:"fallback_rate"`
	Provider      *domain.ProviderStats     `json:"provider,omitempty"`
	Experiment    *domain.ExperimentResults `json:"experiment,omitempty"`
}

// EnhancedTargeting 增强定向引擎：信号增强路径与基础路径的编排、
// 超时竞速与降级、预算约束下的信号选择、实验分流与指标记录
type EnhancedTargeting struct {
	config    *TargetingConfig
	analyzer  *ContextAnalyzer
	signals   *SignalScorer
	relevance *RelevanceScorer

	provider  domain.SignalProvider
	inventory domain.InventoryService
	cache     domain.SignalCache   // 可为 nil
	publisher events.Publisher     // 可为 nil
	exp       *ExperimentFramework // 可为 nil：未配置实验时总是走增强路径

	totalRequests atomic.Int64
	fallbackCount atomic.Int64

	log *log.Helper
}

// enhancedResult 增强管线的结算结果
type enhancedResult struct {
	ads  []*domain.Ad
	meta *domain.EnhancementMetadata
	err  error
}

// NewEnhancedTargeting 创建增强定向引擎
func NewEnhancedTargeting(
	config *TargetingConfig,
	analyzer *ContextAnalyzer,
	signalScorer *SignalScorer,
	relevanceScorer *RelevanceScorer,
	experiment *ExperimentFramework,
	provider domain.SignalProvider,
	inventory domain.InventoryService,
	cache domain.SignalCache,
	publisher events.Publisher,
	logger log.Logger,
) *EnhancedTargeting {
	if config == nil {
		config = DefaultTargetingConfig()
	}
	return &EnhancedTargeting{
		config:    config,
		analyzer:  analyzer,
		signals:   signalScorer,
		relevance: relevanceScorer,
		exp:       experiment,
		provider:  provider,
		inventory: inventory,
		cache:     cache,
		publisher: publisher,
		log:       log.NewHelper(log.With(logger, "module", "enhanced_targeting")),
	}
}

// SelectAds 为一次请求选择并排序广告候选
func (t *EnhancedTargeting) SelectAds(ctx context.Context, placement *domain.Placement, cctx *domain.ConversationContext, profile *domain.UserProfile, criteria *domain.TargetingCriteria) ([]*domain.Ad, error) {
	if placement == nil || placement.ID == "" {
		return nil, domain.ErrInvalidPlacement
	}

	start := time.Now()
	t.totalRequests.Add(1)

	identity := t.requestIdentity(profile)
	variant := domain.VariantTreatment
	if t.exp != nil {
		variant = t.exp.AssignVariant(identity).Variant
	}
	monitoring.SelectionsTotal.WithLabelValues(string(variant)).Inc()

	// 对照组：直接走基础路径，不参与超时竞速
	if variant == domain.VariantControl {
		ads, err := t.selectBaseline(ctx, placement, cctx, profile, criteria)
		elapsed := msSince(start)
		t.recordRequest(identity, elapsed, err != nil)
		if err != nil {
			return nil, err
		}
		t.publishDecision(ctx, identity, variant, placement, len(ads), 0, 0, elapsed, false)
		monitoring.SelectionDuration.WithLabelValues(string(variant)).Observe(time.Since(start).Seconds())
		return ads, nil
	}

	// 实验组/默认路径：增强管线与定时器竞速，先结算者胜。
	// 落败分支不被显式取消——沿用在线行为，依赖提供商客户端自身的
	// 超时兜底；deadline context 仍会下传，支持取消的提供商可提前停止
	raceCtx, cancel := context.WithTimeout(ctx, t.config.EnhancementTimeout)
	defer cancel()

	resultCh := make(chan enhancedResult, 1)
	go func() {
		ads, meta, err := t.runEnhanced(raceCtx, placement, cctx, profile, criteria, identity)
		resultCh <- enhancedResult{ads: ads, meta: meta, err: err}
	}()

	var enhancedErr error
	select {
	case result := <-resultCh:
		if result.err == nil {
			elapsed := msSince(start)
			t.recordRequest(identity, elapsed, false)
			t.publishDecision(ctx, identity, variant, placement, len(result.ads), result.meta.SignalCount, result.meta.TotalCost, elapsed, false)
			monitoring.SelectionDuration.WithLabelValues(string(variant)).Observe(time.Since(start).Seconds())
			return result.ads, nil
		}
		enhancedErr = result.err
	case <-raceCtx.Done():
		if ctx.Err() != nil {
			// 调用方自己取消/超时，不算增强失败
			return nil, ctx.Err()
		}
		enhancedErr = domain.ErrEnhancementTimeout
	}

	// 增强失败或超时
	t.fallbackCount.Add(1)
	monitoring.FallbacksTotal.Inc()
	t.recordRequest(identity, msSince(start), true)
	t.log.Warnf("enhanced path failed, falling back: placement=%s, err=%v", placement.ID, enhancedErr)

	if !t.config.FallbackEnabled {
		return nil, fmt.Errorf("enhanced targeting failed with fallback disabled: %w", enhancedErr)
	}

	fallbackStart := time.Now()
	ads, err := t.selectBaseline(ctx, placement, cctx, profile, criteria)
	if fallbackElapsed := time.Since(fallbackStart); fallbackElapsed > t.config.SlowFallbackThreshold {
		t.log.Warnf("slow fallback: placement=%s, elapsed=%s", placement.ID, fallbackElapsed)
	}
	if err != nil {
		return nil, err
	}

	t.publishDecision(ctx, identity, variant, placement, len(ads), 0, 0, msSince(start), true)
	return ads, nil
}

// runEnhanced 增强管线：查询构建 -> 信号发现 -> 打分 -> 预算约束选择 ->
// 并发激活 -> 合并定向条件 -> 库存查询 -> 相关性排序
func (t *EnhancedTargeting) runEnhanced(ctx context.Context, placement *domain.Placement, cctx *domain.ConversationContext, profile *domain.UserProfile, criteria *domain.TargetingCriteria, identity string) ([]*domain.Ad, *domain.EnhancementMetadata, error) {
	pipelineStart := time.Now()

	query := t.analyzer.CreateQuery(cctx)

	signals, err := t.discoverSignals(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("signal discovery failed: %w", err)
	}

	scored := t.signals.ScoreSignals(signals, cctx)
	selected := t.selectWithinBudget(scored)
	activated := t.activateSignals(ctx, placement, selected)

	merged := t.mergeCriteria(criteria, activated)
	meta := t.buildMetadata(identity, activated, pipelineStart)
	enhanced := &domain.EnhancedContext{
		Context:  cctx,
		Signals:  activated,
		Metadata: meta,
	}

	ads, err := t.inventory.Query(ctx, placement, enhanced, merged)
	if err != nil {
		return nil, nil, fmt.Errorf("inventory query failed: %w", err)
	}

	meta.ProcessingTimeMs = msSince(pipelineStart)
	return t.rankAds(ads, cctx, profile, merged, placement.MaxAds), meta, nil
}

// selectBaseline 基础路径：跳过信号增强，直接查库存并排序
func (t *EnhancedTargeting) selectBaseline(ctx context.Context, placement *domain.Placement, cctx *domain.ConversationContext, profile *domain.UserProfile, criteria *domain.TargetingCriteria) ([]*domain.Ad, error) {
	enhanced := &domain.EnhancedContext{Context: cctx}
	ads, err := t.inventory.Query(ctx, placement, enhanced, criteria)
	if err != nil {
		return nil, fmt.Errorf("inventory query failed: %w", err)
	}
	return t.rankAds(ads, cctx, profile, criteria, placement.MaxAds), nil
}

// discoverSignals 发现信号，优先查缓存；缓存故障只降级不失败
func (t *EnhancedTargeting) discoverSignals(ctx context.Context, query *domain.SignalQuery) ([]*domain.AudienceSignal, error) {
	if t.cache != nil {
		signals, err := t.cache.Get(ctx, query)
		if err == nil {
			monitoring.SignalCacheTotal.WithLabelValues("hit").Inc()
			return signals, nil
		}
		if !errors.Is(err, domain.ErrCacheMiss) {
			t.log.Warnf("signal cache read failed: %v", err)
		}
		monitoring.SignalCacheTotal.WithLabelValues("miss").Inc()
	}

	signals, err := t.provider.DiscoverSignals(ctx, query)
	if err != nil {
		return nil, err
	}

	if t.cache != nil {
		if err := t.cache.Set(ctx, query, signals, t.config.CacheTTL); err != nil {
			t.log.Warnf("signal cache write failed: %v", err)
		}
	}
	return signals, nil
}

// selectWithinBudget 预算约束下的贪心选择。
// 打分已降序；预算不够的跳过继续（不中断），只有数量到顶才停止
func (t *EnhancedTargeting) selectWithinBudget(scored []*domain.ScoredSignal) []*domain.ScoredSignal {
	selected := make([]*domain.ScoredSignal, 0, t.config.MaxSignalsPerRequest)
	cumulativeCPM := 0.0

	for _, signal := range scored {
		if len(selected) >= t.config.MaxSignalsPerRequest {
			break
		}
		if signal.Total < t.config.MinSignalScore {
			continue
		}
		if cumulativeCPM+signal.Signal.CPM > t.config.MaxBudgetPerRequest {
			continue
		}

		signal.Selected = true
		cumulativeCPM += signal.Signal.CPM
		selected = append(selected, signal)
	}

	return selected
}

// activateSignals 并发激活选中信号。单个激活失败只记录并剔除，
// 绝不拖垮整批
func (t *EnhancedTargeting) activateSignals(ctx context.Context, placement *domain.Placement, selected []*domain.ScoredSignal) []*domain.ScoredSignal {
	if len(selected) == 0 {
		return nil
	}

	config := &domain.ActivationConfig{
		PlacementID: placement.ID,
		TTLSeconds:  t.config.ActivationTTLSeconds,
	}

	var wg sync.WaitGroup
	activations := make([]*domain.Activation, len(selected))

	for i, signal := range selected {
		wg.Add(1)
		go func(i int, signal *domain.ScoredSignal) {
			defer wg.Done()

			var activation *domain.Activation
			err := resilience.RetryWithBackoff(ctx, t.config.ActivationRetries, 10*time.Millisecond, 50*time.Millisecond, func() error {
				var aerr error
				activation, aerr = t.provider.ActivateSignal(ctx, signal.Signal.ID, config)
				return aerr
			})
			if err != nil {
				monitoring.SignalActivationsTotal.WithLabelValues("failure").Inc()
				t.log.Warnf("signal activation failed: signal=%s, err=%v", signal.Signal.ID, err)
				return
			}

			monitoring.SignalActivationsTotal.WithLabelValues("success").Inc()
			activations[i] = activation
		}(i, signal)
	}
	wg.Wait()

	activated := make([]*domain.ScoredSignal, 0, len(selected))
	for i, signal := range selected {
		if activations[i] == nil {
			continue
		}
		signal.ActivationID = activations[i].ID
		activated = append(activated, signal)
	}
	return activated
}

// mergeCriteria 把激活信号的主题并入定向条件（在副本上合并）
func (t *EnhancedTargeting) mergeCriteria(criteria *domain.TargetingCriteria, activated []*domain.ScoredSignal) *domain.TargetingCriteria {
	merged := criteria.Clone()

	seen := make(map[string]struct{}, len(merged.Topics))
	for _, topic := range merged.Topics {
		seen[topic] = struct{}{}
	}

	for _, signal := range activated {
		for _, topic := range signal.Signal.Metadata.Topics {
			if _, ok := seen[topic]; ok {
				continue
			}
			seen[topic] = struct{}{}
			merged.Topics = append(merged.Topics, topic)
		}
	}

	return merged
}

// buildMetadata 构建增强元数据
func (t *EnhancedTargeting) buildMetadata(identity string, activated []*domain.ScoredSignal, start time.Time) *domain.EnhancementMetadata {
	meta := &domain.EnhancementMetadata{
		Timestamp:   time.Now(),
		SessionID:   identity,
		SignalCount: len(activated),
	}

	if len(activated) > 0 {
		totalScore := 0.0
		totalConfidence := 0.0
		for _, signal := range activated {
			meta.TotalCost += signal.Signal.CPM
			totalScore += signal.Total
			totalConfidence += signal.Signal.Confidence
		}
		meta.ExpectedLift = totalScore / float64(len(activated))
		meta.Confidence = totalConfidence / float64(len(activated))
	}

	meta.ProcessingTimeMs = msSince(start)
	return meta
}

// rankAds 按相关性降序排序并截断到广告位上限
func (t *EnhancedTargeting) rankAds(ads []*domain.Ad, cctx *domain.ConversationContext, profile *domain.UserProfile, criteria *domain.TargetingCriteria, maxAds int) []*domain.Ad {
	scored := make([]*domain.ScoredAd, 0, len(ads))
	now := time.Now()

	for _, ad := range ads {
		if ad.IsExpired(now) {
			continue
		}
		scored = append(scored, &domain.ScoredAd{
			Ad:    ad,
			Score: t.relevance.Score(ad, cctx, profile, criteria),
		})
	}

	// 稳定排序：同分候选保持库存返回顺序
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if maxAds > 0 && len(scored) > maxAds {
		scored = scored[:maxAds]
	}

	ranked := make([]*domain.Ad, 0, len(scored))
	for _, sa := range scored {
		ranked = append(ranked, sa.Ad)
	}
	return ranked
}

// TrackAdPerformance 记录投放结果指标
func (t *EnhancedTargeting) TrackAdPerformance(identity string, delta *domain.MetricsDelta) {
	if t.exp != nil {
		t.exp.TrackOutcome(identity, delta)
	}
	if delta != nil {
		monitoring.ImpressionsTotal.Add(float64(delta.Impressions))
		monitoring.ClicksTotal.Add(float64(delta.Clicks))
	}
}

// GetExperimentResults 获取实验结果，未配置实验返回 nil
func (t *EnhancedTargeting) GetExperimentResults() *domain.ExperimentResults {
	if t.exp == nil {
		return nil
	}
	return t.exp.GetResults()
}

// ResetExperiment 重置实验状态
func (t *EnhancedTargeting) ResetExperiment() error {
	if t.exp == nil {
		return domain.ErrNoExperiment
	}
	t.exp.Reset()
	return nil
}

// GetStats 运行统计
func (t *EnhancedTargeting) GetStats() *TargetingStats {
	stats := &TargetingStats{
		TotalRequests: t.totalRequests.Load(),
		FallbackCount: t.fallbackCount.Load(),
	}
	if stats.TotalRequests > 0 {
		stats.FallbackRate = float64(stats.FallbackCount) / float64(stats.TotalRequests)
	}
	if t.provider != nil {
		stats.Provider = t.provider.GetStats()
	}
	if t.exp != nil {
		stats.Experiment = t.exp.GetResults()
	}
	return stats
}

// Destroy 释放外部资源
func (t *EnhancedTargeting) Destroy() error {
	if t.provider != nil {
		return t.provider.Destroy()
	}
	return nil
}

// requestIdentity 请求身份：有画像用画像 ID，否则生成会话 ID
func (t *EnhancedTargeting) requestIdentity(profile *domain.UserProfile) string {
	if profile != nil && profile.ID != "" {
		return profile.ID
	}
	return "session_" + uuid.New().String()
}

// recordRequest 向实验框架记录请求结果
func (t *EnhancedTargeting) recordRequest(identity string, elapsedMs float64, isError bool) {
	if t.exp != nil {
		t.exp.RecordRequest(identity, elapsedMs, isError)
	}
}

// publishDecision 发布决策事件，发布失败只记日志
func (t *EnhancedTargeting) publishDecision(ctx context.Context, identity string, variant domain.Variant, placement *domain.Placement, adCount, signalCount int, totalCost, latencyMs float64, fallback bool) {
	if t.publisher == nil {
		return
	}

	event := &events.DecisionEvent{
		Identity:    identity,
		Variant:     string(variant),
		PlacementID: placement.ID,
		AdCount:     adCount,
		SignalCount: signalCount,
		TotalCost:   totalCost,
		LatencyMs:   latencyMs,
		Fallback:    fallback,
	}
	if err := t.publisher.PublishDecision(ctx, event); err != nil {
		t.log.Warnf("failed to publish decision event: %v", err)
	}
}

// msSince 距 start 的毫秒数
func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
