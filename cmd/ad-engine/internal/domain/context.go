package domain

// ConversationContext 对话上下文快照（由上游上下文抽取服务产出，只读）
type ConversationContext struct {
	Topics     []*Topic   `json:"topics"`
	Intent     Intent     `json:"intent"`
	Sentiment  Sentiment  `json:"sentiment"`
	Stage      Stage      `json:"stage"`
	Engagement Engagement `json:"engagement"`
	Confidence float64    `json:"confidence"` // 整体置信度 [0,1]
}

// Topic 对话主题
type Topic struct {
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	Confidence     float64  `json:"confidence"`      // [0,1]
	Keywords       []string `json:"keywords"`
	RelevanceScore float64  `json:"relevance_score"` // [0,1]
}

// Intent 用户意图
type Intent struct {
	Primary    string   `json:"primary"`
	Secondary  []string `json:"secondary"`
	Confidence float64  `json:"confidence"` // [0,1]
	Category   string   `json:"category"`
	Actionable bool     `json:"actionable"`
}

// 意图类目
const (
	IntentCategoryCommercial    = "commercial"
	IntentCategoryTransactional = "transactional"
	IntentCategoryInformational = "informational"
	IntentCategoryNavigational  = "navigational"
	IntentCategoryEntertainment = "entertainment"
	IntentCategorySupport       = "support"
)

// Sentiment 情感分析结果
type Sentiment struct {
	Polarity   float64 `json:"polarity"`   // [-1,1]
	Magnitude  float64 `json:"magnitude"`  // [0,1]
	Confidence float64 `json:"confidence"` // [0,1]
}

// Stage 对话阶段
type Stage struct {
	Name         string  `json:"name"`
	Progress     float64 `json:"progress"` // [0,1]
	MessageCount int     `json:"message_count"`
}

// 对话阶段名称
const (
	StageGreeting       = "greeting"
	StageExploration    = "exploration"
	StageProblemSolving = "problem_solving"
	StageDecisionMaking = "decision_making"
	StageConclusion     = "conclusion"
	StageFollowUp       = "follow_up"
)

// Engagement 参与度
type Engagement struct {
	Score float64 `json:"score"` // [0,1]
	Tier  string  `json:"tier"`
	Trend string  `json:"trend"`
}

// 参与度层级
const (
	EngagementTierVeryHigh = "very_high"
	EngagementTierHigh     = "high"
	EngagementTierMedium   = "medium"
	EngagementTierLow      = "low"
)

// 参与度趋势
const (
	TrendIncreasing = "increasing"
	TrendStable     = "stable"
	TrendDecreasing = "decreasing"
)

// AllKeywords 收集所有主题的关键词（去重，保持顺序）
func (c *ConversationContext) AllKeywords() []string {
	seen := make(map[string]struct{})
	keywords := make([]string, 0)

	for _, topic := range c.Topics {
		for _, kw := range topic.Keywords {
			if _, ok := seen[kw]; ok {
				continue
			}
			seen[kw] = struct{}{}
			keywords = append(keywords, kw)
		}
	}

	return keywords
}

// IntentCategories 收集意图类目集合（主类目 + 次要意图）
func (c *ConversationContext) IntentCategories() []string {
	categories := make([]string, 0, 1+len(c.Intent.Secondary))
	if c.Intent.Category != "" {
		categories = append(categories, c.Intent.Category)
	}
	categories = append(categories, c.Intent.Secondary...)
	return categories
}
