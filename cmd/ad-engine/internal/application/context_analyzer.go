package application

import (
	"sort"
	"strings"

	"adengine/cmd/ad-engine/internal/domain"
)

// intentSignalCategories 意图类目 -> 提供商侧信号类目映射表
var intentSignalCategories = map[string][]string{
	domain.IntentCategoryCommercial:    {domain.SignalCategoryBehavioral, domain.SignalCategoryDemographic},
	domain.IntentCategoryTransactional: {domain.SignalCategoryBehavioral, domain.SignalCategoryDemographic},
	domain.IntentCategoryInformational: {domain.SignalCategoryContextual},
	domain.IntentCategoryEntertainment: {domain.SignalCategoryContextual},
	domain.IntentCategorySupport:       {domain.SignalCategoryContextual},
	domain.IntentCategoryNavigational:  {domain.SignalCategoryBehavioral},
}

// defaultSignalCategories 未知意图类目的兜底映射
var defaultSignalCategories = []string{domain.SignalCategoryContextual}

// ContextAnalyzerConfig 上下文分析器配置
type ContextAnalyzerConfig struct {
	// MinTopicConfidence 主题最低置信度，低于该值的主题不参与查询
	MinTopicConfidence float64
	// MaxTopics 参与查询的主题数上限（按 relevance*confidence 排序取前 K）
	MaxTopics int
	// MaxKeywordsPerTopic 每个主题取的关键词数上限
	MaxKeywordsPerTopic int
	// MaxResults 查询要求的最大信号数
	MaxResults int
}

// DefaultContextAnalyzerConfig 默认配置
func DefaultContextAnalyzerConfig() *ContextAnalyzerConfig {
	return &ContextAnalyzerConfig{
		MinTopicConfidence:  0.3,
		MaxTopics:           5,
		MaxKeywordsPerTopic: 5,
		MaxResults:          20,
	}
}

// ContextAnalyzer 将对话上下文转换为信号发现查询
type ContextAnalyzer struct {
	config *ContextAnalyzerConfig
}

// NewContextAnalyzer 创建上下文分析器
func NewContextAnalyzer(config *ContextAnalyzerConfig) *ContextAnalyzer {
	if config == nil {
		config = DefaultContextAnalyzerConfig()
	}
	return &ContextAnalyzer{config: config}
}

// CreateQuery 由对话上下文构建信号发现查询
func (a *ContextAnalyzer) CreateQuery(cctx *domain.ConversationContext) *domain.SignalQuery {
	topics := a.rankTopics(cctx.Topics)

	topicSet := make([]string, 0)
	seen := make(map[string]struct{})
	add := func(value string) {
		if value == "" {
			return
		}
		if _, ok := seen[value]; ok {
			return
		}
		seen[value] = struct{}{}
		topicSet = append(topicSet, value)
	}

	for _, topic := range topics {
		add(topic.Name)
		add(topic.Category)
		for i, kw := range topic.Keywords {
			if i >= a.config.MaxKeywordsPerTopic {
				break
			}
			add(kw)
		}
	}

	return &domain.SignalQuery{
		Topics:     topicSet,
		Categories: a.signalCategories(cctx.Intent.Category),
		Intent:     a.intentText(&cctx.Intent),
		MaxResults: a.config.MaxResults,
	}
}

// rankTopics 过滤低置信度主题，按 relevance*confidence 降序取前 K 个
func (a *ContextAnalyzer) rankTopics(topics []*domain.Topic) []*domain.Topic {
	filtered := make([]*domain.Topic, 0, len(topics))
	for _, topic := range topics {
		if topic.Confidence >= a.config.MinTopicConfidence {
			filtered = append(filtered, topic)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].RelevanceScore*filtered[i].Confidence >
			filtered[j].RelevanceScore*filtered[j].Confidence
	})

	if len(filtered) > a.config.MaxTopics {
		filtered = filtered[:a.config.MaxTopics]
	}
	return filtered
}

// intentText 拼接意图自由文本：primary + secondary + category
func (a *ContextAnalyzer) intentText(intent *domain.Intent) string {
	parts := make([]string, 0, 2+len(intent.Secondary))
	if intent.Primary != "" {
		parts = append(parts, intent.Primary)
	}
	parts = append(parts, intent.Secondary...)
	if intent.Category != "" {
		parts = append(parts, intent.Category)
	}
	return strings.Join(parts, " ")
}

// signalCategories 意图类目映射到提供商信号类目
func (a *ContextAnalyzer) signalCategories(intentCategory string) []string {
	if categories, ok := intentSignalCategories[intentCategory]; ok {
		return append([]string(nil), categories...)
	}
	return append([]string(nil), defaultSignalCategories...)
}
