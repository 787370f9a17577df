package domain

import (
	"time"
)

// Ad 广告候选（外部库存服务所有，本引擎只读）
type Ad struct {
	ID        string    `json:"id"`
	Content   AdContent `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AdContent 广告素材内容
type AdContent struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	CTA         string   `json:"cta"`
	LandingURL  string   `json:"landing_url"`
	Brand       string   `json:"brand"`
	Keywords    []string `json:"keywords"`
}

// IsExpired 检查广告是否已过期
func (a *Ad) IsExpired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// ScoredAd 打分后的广告候选
type ScoredAd struct {
	Ad    *Ad     `json:"ad"`
	Score float64 `json:"score"` // [0,1]
}

// Placement 广告位
type Placement struct {
	ID     string `json:"id"`
	MaxAds int    `json:"max_ads"`
	Format string `json:"format"`
}

// SentimentRange 情感极性允许区间
type SentimentRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains 检查极性是否落在区间内
func (r *SentimentRange) Contains(polarity float64) bool {
	return polarity >= r.Min && polarity <= r.Max
}

// TargetingCriteria 定向条件（每次请求构建的可变工作值，信号增强时会被合并扩充）
type TargetingCriteria struct {
	Topics          []string          `json:"topics"`
	Intents         []string          `json:"intents"`
	SentimentRange  *SentimentRange   `json:"sentiment_range,omitempty"`
	EngagementTiers []string          `json:"engagement_tiers"`
	Demographics    map[string]string `json:"demographics,omitempty"`
	Interests       []string          `json:"interests,omitempty"`
	Exclusions      []string          `json:"exclusions,omitempty"`
}

// IsEmpty 检查定向条件是否为空
func (c *TargetingCriteria) IsEmpty() bool {
	if c == nil {
		return true
	}
	return len(c.Topics) == 0 && len(c.Intents) == 0 && c.SentimentRange == nil &&
		len(c.EngagementTiers) == 0 && len(c.Demographics) == 0 &&
		len(c.Interests) == 0 && len(c.Exclusions) == 0
}

// Clone 深拷贝定向条件（增强路径在副本上合并，不污染调用方的条件）
func (c *TargetingCriteria) Clone() *TargetingCriteria {
	if c == nil {
		return &TargetingCriteria{}
	}

	clone := &TargetingCriteria{
		Topics:          append([]string(nil), c.Topics...),
		Intents:         append([]string(nil), c.Intents...),
		EngagementTiers: append([]string(nil), c.EngagementTiers...),
		Interests:       append([]string(nil), c.Interests...),
		Exclusions:      append([]string(nil), c.Exclusions...),
	}

	if c.SentimentRange != nil {
		clone.SentimentRange = &SentimentRange{Min: c.SentimentRange.Min, Max: c.SentimentRange.Max}
	}
	if c.Demographics != nil {
		clone.Demographics = make(map[string]string, len(c.Demographics))
		for k, v := range c.Demographics {
			clone.Demographics[k] = v
		}
	}

	return clone
}

// UserProfile 用户画像（可选输入）
type UserProfile struct {
	ID           string            `json:"id"`
	Interests    []*Interest       `json:"interests"`
	Demographics map[string]string `json:"demographics,omitempty"`
}

// Interest 用户兴趣
type Interest struct {
	Category    string    `json:"category"`
	Score       float64   `json:"score"` // [0,1]
	LastUpdated time.Time `json:"last_updated"`
}

// TargetingValidation 定向条件校验报告（校验失败不抛错，返回结构化报告）
type TargetingValidation struct {
	Valid       bool     `json:"valid"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

// PerformanceSnapshot 投放效果快照，用于定向权重调优
type PerformanceSnapshot struct {
	CTR             float64 `json:"ctr"`
	EngagementScore float64 `json:"engagement_score"`
	ConversionRate  float64 `json:"conversion_rate"`
}
