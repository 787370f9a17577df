package application

import (
	"math"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"adengine/cmd/ad-engine/internal/domain"
)

// 每个分组保留的响应时间样本上限，防止长生命周期实例无界增长
const maxResponseTimeSamples = 10000

// ExperimentFramework A/B 实验框架：确定性分组、按组聚合指标、显著性检验。
// 状态归实例所有，通过注入传递，不使用任何进程级单例。
type ExperimentFramework struct {
	config *domain.ExperimentConfig

	mu          sync.RWMutex
	assignments map[string]*domain.ExperimentAssignment
	metrics     map[string]*domain.VariantMetrics // identity -> 累计指标

	posthog *PostHogTracker
	log     *log.Helper
}

// NewExperimentFramework 创建实验框架
func NewExperimentFramework(config *domain.ExperimentConfig, posthog *PostHogTracker, logger log.Logger) *ExperimentFramework {
	if config.SignificanceThreshold <= 0 {
		config.SignificanceThreshold = 0.05
	}
	return &ExperimentFramework{
		config:      config,
		assignments: make(map[string]*domain.ExperimentAssignment),
		metrics:     make(map[string]*domain.VariantMetrics),
		posthog:     posthog,
		log:         log.NewHelper(log.With(logger, "module", "experiment")),
	}
}

// AssignVariant 为请求身份分组。首次计算后缓存，同一身份永远返回同一分组
func (f *ExperimentFramework) AssignVariant(identity string) *domain.ExperimentAssignment {
	f.mu.RLock()
	if assignment, ok := f.assignments[identity]; ok {
		f.mu.RUnlock()
		return assignment
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	// 双检：写锁竞争下可能已被其他请求写入
	if assignment, ok := f.assignments[identity]; ok {
		return assignment
	}

	variant := domain.VariantControl
	if hashPercentile(identity) <= f.config.TreatmentPercentage {
		variant = domain.VariantTreatment
	}

	assignment := &domain.ExperimentAssignment{
		Identity:   identity,
		Variant:    variant,
		AssignedAt: time.Now(),
	}
	f.assignments[identity] = assignment

	if f.posthog != nil {
		f.posthog.TrackExposure(f.config.ID, identity, string(variant))
	}

	f.log.Debugf("variant assigned: identity=%s, variant=%s", identity, variant)
	return assignment
}

// IsInTreatment 身份是否在实验组
func (f *ExperimentFramework) IsInTreatment(identity string) bool {
	return f.AssignVariant(identity).Variant == domain.VariantTreatment
}

// hashPercentile 32 位滚动哈希映射到 1-100 的百分位。
// h = h<<5 - h + code，每步按 int32 二补码回绕——分组的逐位可复现
// 是实验有效性的前提，不是实现细节
func hashPercentile(identity string) int {
	var h int32
	for _, r := range identity {
		h = h<<5 - h + int32(r)
	}

	v := int64(h)
	if v < 0 {
		v = -v
	}
	return int(v%100) + 1
}

// RecordRequest 记录单次请求的响应时间与错误标记
func (f *ExperimentFramework) RecordRequest(identity string, responseTimeMs float64, isError bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := f.metricsFor(identity)
	m.Requests++
	if isError {
		m.Errors++
	}
	if len(m.ResponseTimes) < maxResponseTimeSamples {
		m.ResponseTimes = append(m.ResponseTimes, responseTimeMs)
	}
}

// TrackOutcome 记录投放结果指标增量
func (f *ExperimentFramework) TrackOutcome(identity string, delta *domain.MetricsDelta) {
	if delta == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	m := f.metricsFor(identity)
	m.Impressions += delta.Impressions
	m.Clicks += delta.Clicks
	m.Conversions += delta.Conversions
	m.Revenue += delta.Revenue
}

// metricsFor 取或建身份的指标记录，调用方必须持有写锁
func (f *ExperimentFramework) metricsFor(identity string) *domain.VariantMetrics {
	m, ok := f.metrics[identity]
	if !ok {
		m = &domain.VariantMetrics{}
		f.metrics[identity] = m
	}
	return m
}

// GetResults 聚合当前实验结果并做显著性分析
func (f *ExperimentFramework) GetResults() *domain.ExperimentResults {
	f.mu.RLock()
	defer f.mu.RUnlock()

	control := &domain.VariantMetrics{}
	treatment := &domain.VariantMetrics{}

	for identity, m := range f.metrics {
		assignment, ok := f.assignments[identity]
		if !ok {
			continue
		}
		target := control
		if assignment.Variant == domain.VariantTreatment {
			target = treatment
		}
		target.Impressions += m.Impressions
		target.Clicks += m.Clicks
		target.Conversions += m.Conversions
		target.Revenue += m.Revenue
		target.Requests += m.Requests
		target.Errors += m.Errors
		target.ResponseTimes = append(target.ResponseTimes, m.ResponseTimes...)
	}

	configCopy := *f.config
	return &domain.ExperimentResults{
		Config:      &configCopy,
		Control:     aggregate(control),
		Treatment:   aggregate(treatment),
		Analysis:    f.analyze(control, treatment),
		Status:      f.config.CurrentStatus(time.Now()),
		LastUpdated: time.Now(),
	}
}

// Reset 清空分组缓存与指标，仅用于测试和运维
func (f *ExperimentFramework) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.assignments = make(map[string]*domain.ExperimentAssignment)
	f.metrics = make(map[string]*domain.VariantMetrics)
	f.log.Info("experiment framework reset")
}

// aggregate 累计指标 -> 聚合指标
func aggregate(m *domain.VariantMetrics) *domain.AggregatedMetrics {
	agg := &domain.AggregatedMetrics{
		Impressions: m.Impressions,
		Clicks:      m.Clicks,
		Conversions: m.Conversions,
		Revenue:     m.Revenue,
		Requests:    m.Requests,
	}

	if m.Impressions > 0 {
		agg.CTR = float64(m.Clicks) / float64(m.Impressions) * 100
		agg.CPM = m.Revenue / float64(m.Impressions) * 1000
	}
	if m.Requests > 0 {
		agg.ErrorRate = float64(m.Errors) / float64(m.Requests)
	}
	if len(m.ResponseTimes) > 0 {
		sum := 0.0
		for _, rt := range m.ResponseTimes {
			sum += rt
		}
		agg.AvgResponseTime = sum / float64(len(m.ResponseTimes))
	}

	return agg
}

// analyze 两比例 z 检验 + 提升度计算
func (f *ExperimentFramework) analyze(control, treatment *domain.VariantMetrics) *domain.ExperimentAnalysis {
	analysis := &domain.ExperimentAnalysis{
		ControlSampleSize:   control.Impressions,
		TreatmentSampleSize: treatment.Impressions,
		PValue:              1,
	}

	n1 := float64(control.Impressions)
	n2 := float64(treatment.Impressions)
	if n1 == 0 || n2 == 0 {
		return analysis
	}

	p1 := float64(control.Clicks) / n1
	p2 := float64(treatment.Clicks) / n2

	if p1 > 0 {
		analysis.CTRLiftPercent = (p2 - p1) / p1 * 100
	}

	c1 := float64(control.Conversions) / n1
	c2 := float64(treatment.Conversions) / n2
	if c1 > 0 {
		analysis.ConversionLiftPercent = (c2 - c1) / c1 * 100
	}

	// CPA 以收入作为花费口径的代理；分组无转化时跳过
	if control.Conversions > 0 && treatment.Conversions > 0 {
		cpa1 := control.Revenue / float64(control.Conversions)
		cpa2 := treatment.Revenue / float64(treatment.Conversions)
		if cpa1 > 0 {
			analysis.CPAImprovementPercent = (cpa1 - cpa2) / cpa1 * 100
		}
	}

	analysis.PValue = twoProportionPValue(p1, n1, p2, n2)
	analysis.IsSignificant = analysis.PValue < f.config.SignificanceThreshold

	diff := p2 - p1
	margin := 1.96 * math.Sqrt(p1*(1-p1)/n1+p2*(1-p2)/n2)
	analysis.ConfidenceInterval = [2]float64{diff - margin, diff + margin}

	return analysis
}

// twoProportionPValue 双尾两比例 z 检验
func twoProportionPValue(p1, n1, p2, n2 float64) float64 {
	pooled := (p1*n1 + p2*n2) / (n1 + n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/n1 + 1/n2))
	if se == 0 {
		return 1
	}

	z := (p2 - p1) / se
	return 2 * (1 - normalCDF(math.Abs(z)))
}

// normalCDF 标准正态分布 CDF 的 Abramowitz–Stegun 多项式近似。
// 刻意不用 math.Erf：分组显著性结论必须与历史数据逐位一致
func normalCDF(x float64) float64 {
	t := 1 / (1 + 0.2316419*math.Abs(x))
	d := 0.3989423 * math.Exp(-x*x/2)
	p := d * t * (0.3193815 + t*(-0.3565638+t*(1.781478+t*(-1.821256+t*1.330274))))

	if x > 0 {
		return 1 - p
	}
	return p
}
