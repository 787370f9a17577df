package domain

import (
	"time"
)

// Variant 实验分组
type Variant string

const (
	VariantControl   Variant = "control"
	VariantTreatment Variant = "treatment"
)

// ExperimentStatus 实验状态
type ExperimentStatus string

const (
	ExperimentStatusRunning   ExperimentStatus = "running"
	ExperimentStatusCompleted ExperimentStatus = "completed"
	ExperimentStatusStopped   ExperimentStatus = "stopped"
)

// ExperimentConfig 实验配置
type ExperimentConfig struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	Active                bool      `json:"active"`
	TreatmentPercentage   int       `json:"treatment_percentage"`   // 1-100
	SignificanceThreshold float64   `json:"significance_threshold"` // 默认 0.05
	StartDate             time.Time `json:"start_date"`
	EndDate               time.Time `json:"end_date"`
}

// ExperimentAssignment 分组结果。首次计算后缓存，之后不再变化——
// 稳定性是实验有效性的核心不变量
type ExperimentAssignment struct {
	Identity   string    `json:"identity"`
	Variant    Variant   `json:"variant"`
	AssignedAt time.Time `json:"assigned_at"`
}

// MetricsDelta 单次指标增量（部分字段可为零值）
type MetricsDelta struct {
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	Revenue     float64 `json:"revenue"`
}

// VariantMetrics 单个分组的累计指标
type VariantMetrics struct {
	Impressions   int64     `json:"impressions"`
	Clicks        int64     `json:"clicks"`
	Conversions   int64     `json:"conversions"`
	Revenue       float64   `json:"revenue"`
	Requests      int64     `json:"requests"`
	Errors        int64     `json:"errors"`
	ResponseTimes []float64 `json:"-"`
}

// AggregatedMetrics 按需聚合后的分组指标
type AggregatedMetrics struct {
	Impressions     int64   `json:"impressions"`
	Clicks          int64   `json:"clicks"`
	Conversions     int64   `json:"conversions"`
	Revenue         float64 `json:"revenue"`
	Requests        int64   `json:"requests"`
	CTR             float64 `json:"ctr"` // clicks/impressions*100
	CPM             float64 `json:"cpm"` // revenue/impressions*1000
	AvgResponseTime float64 `json:"avg_response_time"`
	ErrorRate       float64 `json:"error_rate"`
}

// ExperimentAnalysis 显著性分析结果
type ExperimentAnalysis struct {
	ControlSampleSize     int64      `json:"control_sample_size"`
	TreatmentSampleSize   int64      `json:"treatment_sample_size"`
	CTRLiftPercent        float64    `json:"ctr_lift_percent"`
	CPAImprovementPercent float64    `json:"cpa_improvement_percent"`
	ConversionLiftPercent float64    `json:"conversion_lift_percent"`
	PValue                float64    `json:"p_value"`
	IsSignificant         bool       `json:"is_significant"`
	ConfidenceInterval    [2]float64 `json:"confidence_interval"` // 95% CI，比例差
}

// ExperimentResults 实验结果快照
type ExperimentResults struct {
	Config      *ExperimentConfig   `json:"config"`
	Control     *AggregatedMetrics  `json:"control"`
	Treatment   *AggregatedMetrics  `json:"treatment"`
	Analysis    *ExperimentAnalysis `json:"analysis"`
	Status      ExperimentStatus    `json:"status"`
	LastUpdated time.Time           `json:"last_updated"`
}

// CurrentStatus 计算实验当前状态
func (c *ExperimentConfig) CurrentStatus(now time.Time) ExperimentStatus {
	if !c.Active {
		return ExperimentStatusStopped
	}
	if !c.EndDate.IsZero() && now.After(c.EndDate) {
		return ExperimentStatusCompleted
	}
	return ExperimentStatusRunning
}
