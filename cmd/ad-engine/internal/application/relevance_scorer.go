package application

import (
	"math"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"adengine/cmd/ad-engine/internal/domain"
)

// intentCompatibility 意图类目 -> 广告基础兼容度
var intentCompatibility = map[string]float64{
	domain.IntentCategoryCommercial:    0.9,
	domain.IntentCategoryTransactional: 0.8,
	domain.IntentCategoryInformational: 0.6,
	domain.IntentCategoryEntertainment: 0.5,
	domain.IntentCategoryNavigational:  0.4,
	domain.IntentCategorySupport:       0.3,
}

// engagementTierScores 参与度层级基础分
var engagementTierScores = map[string]float64{
	domain.EngagementTierVeryHigh: 1.0,
	domain.EngagementTierHigh:     0.8,
	domain.EngagementTierMedium:   0.6,
	domain.EngagementTierLow:      0.3,
}

// engagementTrendModifiers 参与度趋势修正系数
var engagementTrendModifiers = map[string]float64{
	domain.TrendIncreasing: 1.1,
	domain.TrendStable:     1.0,
	domain.TrendDecreasing: 0.9,
}

// stageScores 对话阶段得分表
var stageScores = map[string]float64{
	domain.StageGreeting:       0.3,
	domain.StageExploration:    0.7,
	domain.StageProblemSolving: 0.8,
	domain.StageDecisionMaking: 0.9,
	domain.StageConclusion:     0.6,
	domain.StageFollowUp:       0.4,
}

// 可执行意图的加成系数
const actionableBoost = 1.2

// ScoringWeights 七因子权重，合计必须为 1
type ScoringWeights struct {
	Topic      float64 `json:"topic"`
	Intent     float64 `json:"intent"`
	Sentiment  float64 `json:"sentiment"`
	Engagement float64 `json:"engagement"`
	Interest   float64 `json:"interest"`
	Contextual float64 `json:"contextual"`
	Semantic   float64 `json:"semantic"`
}

// DefaultScoringWeights 默认权重
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Topic:      0.25,
		Intent:     0.20,
		Sentiment:  0.15,
		Engagement: 0.15,
		Interest:   0.15,
		Contextual: 0.05,
		Semantic:   0.05,
	}
}

// Sum 权重合计
func (w ScoringWeights) Sum() float64 {
	return w.Topic + w.Intent + w.Sentiment + w.Engagement + w.Interest + w.Contextual + w.Semantic
}

// normalize 归一化使权重合计为 1
func (w ScoringWeights) normalize() ScoringWeights {
	sum := w.Sum()
	if sum == 0 {
		return DefaultScoringWeights()
	}
	return ScoringWeights{
		Topic:      w.Topic / sum,
		Intent:     w.Intent / sum,
		Sentiment:  w.Sentiment / sum,
		Engagement: w.Engagement / sum,
		Interest:   w.Interest / sum,
		Contextual: w.Contextual / sum,
		Semantic:   w.Semantic / sum,
	}
}

// TargetingOptimization 定向权重调优结果
type TargetingOptimization struct {
	Weights ScoringWeights `json:"weights"`
	Goal    string         `json:"goal"` // ctr | conversion
}

// RelevanceScorer 定向引擎：单个广告候选对上下文的多因子相关性打分
type RelevanceScorer struct {
	weights ScoringWeights
	log     *log.Helper
}

// NewRelevanceScorer 创建相关性打分器
func NewRelevanceScorer(logger log.Logger) *RelevanceScorer {
	return &RelevanceScorer{
		weights: DefaultScoringWeights(),
		log:     log.NewHelper(log.With(logger, "module", "relevance_scorer")),
	}
}

// Score 对单个候选打分，返回 [0,1]
// 七个独立因子加权求和后乘以上下文整体置信度
func (s *RelevanceScorer) Score(ad *domain.Ad, cctx *domain.ConversationContext, profile *domain.UserProfile, criteria *domain.TargetingCriteria) float64 {
	score := s.weights.Topic*s.topicMatch(ad, cctx, criteria) +
		s.weights.Intent*s.intentAlignment(cctx, criteria) +
		s.weights.Sentiment*s.sentimentCompatibility(cctx, criteria) +
		s.weights.Engagement*s.engagementFit(cctx, criteria) +
		s.weights.Interest*s.interestRelevance(ad, profile) +
		s.weights.Contextual*s.contextualFit(cctx) +
		s.weights.Semantic*s.semanticSimilarity(ad, cctx)

	return clamp01(score * cctx.Confidence)
}

// topicMatch 主题匹配：候选关键词与主题关键词的 Jaccard 重叠，按主题置信度加权平均
func (s *RelevanceScorer) topicMatch(ad *domain.Ad, cctx *domain.ConversationContext, criteria *domain.TargetingCriteria) float64 {
	weightedSum := 0.0
	confidenceSum := 0.0

	for _, topic := range cctx.Topics {
		if criteria != nil && len(criteria.Topics) > 0 && !containsFold(criteria.Topics, topic.Name) {
			continue
		}
		overlap := jaccard(ad.Content.Keywords, topic.Keywords)
		weightedSum += overlap * topic.Confidence
		confidenceSum += topic.Confidence
	}

	if confidenceSum == 0 {
		return 0
	}
	return weightedSum / confidenceSum
}

// intentAlignment 意图对齐：查表基础兼容度 × 意图置信度，可执行意图加成 1.2
func (s *RelevanceScorer) intentAlignment(cctx *domain.ConversationContext, criteria *domain.TargetingCriteria) float64 {
	category := cctx.Intent.Category
	if criteria != nil && len(criteria.Intents) > 0 && !containsFold(criteria.Intents, category) {
		return 0
	}

	base, ok := intentCompatibility[category]
	if !ok {
		base = 0.5
	}

	score := base * cctx.Intent.Confidence
	if cctx.Intent.Actionable {
		score *= actionableBoost
	}
	return clamp01(score)
}

// sentimentCompatibility 情感兼容度
func (s *RelevanceScorer) sentimentCompatibility(cctx *domain.ConversationContext, criteria *domain.TargetingCriteria) float64 {
	sentiment := cctx.Sentiment
	if criteria != nil && criteria.SentimentRange != nil && !criteria.SentimentRange.Contains(sentiment.Polarity) {
		return 0
	}

	positivity := math.Max(0, (sentiment.Polarity+1)/2)
	return (0.7*positivity + 0.3*sentiment.Magnitude) * sentiment.Confidence
}

// engagementFit 参与度契合：层级分 × 参与度得分 × 趋势修正
func (s *RelevanceScorer) engagementFit(cctx *domain.ConversationContext, criteria *domain.TargetingCriteria) float64 {
	engagement := cctx.Engagement
	if criteria != nil && len(criteria.EngagementTiers) > 0 && !containsFold(criteria.EngagementTiers, engagement.Tier) {
		return 0
	}

	tierScore, ok := engagementTierScores[engagement.Tier]
	if !ok {
		tierScore = 0.5
	}
	modifier, ok := engagementTrendModifiers[engagement.Trend]
	if !ok {
		modifier = 1.0
	}

	return clamp01(tierScore * engagement.Score * modifier)
}

// interestRelevance 兴趣相关性：兴趣类目与候选关键词文本重叠，按兴趣分 × 新鲜度加权
// 画像缺失返回中性 0.5，有画像但无匹配返回 0.3
func (s *RelevanceScorer) interestRelevance(ad *domain.Ad, profile *domain.UserProfile) float64 {
	if profile == nil || len(profile.Interests) == 0 {
		return 0.5
	}

	now := time.Now()
	sum := 0.0
	matches := 0

	for _, interest := range profile.Interests {
		if !keywordOverlap(interest.Category, ad.Content.Keywords) {
			continue
		}
		sum += interest.Score * interestRecency(now.Sub(interest.LastUpdated))
		matches++
	}

	if matches == 0 {
		return 0.3
	}
	return sum / float64(matches)
}

// interestRecency 兴趣新鲜度衰减
func interestRecency(age time.Duration) float64 {
	switch {
	case age < 7*24*time.Hour:
		return 1.0
	case age < 30*24*time.Hour:
		return 0.8
	case age < 90*24*time.Hour:
		return 0.6
	default:
		return 0.4
	}
}

// contextualFit 上下文契合：置信度 × (0.5 与阶段分的均值)
func (s *RelevanceScorer) contextualFit(cctx *domain.ConversationContext) float64 {
	stageScore, ok := stageScores[cctx.Stage.Name]
	if !ok {
		stageScore = 0.5
	}
	return cctx.Confidence * (0.5 + stageScore) / 2
}

// semanticSimilarity 语义相似度：上下文关键词在候选标题+描述文本中的命中比例
func (s *RelevanceScorer) semanticSimilarity(ad *domain.Ad, cctx *domain.ConversationContext) float64 {
	keywords := cctx.AllKeywords()
	if len(keywords) == 0 {
		return 0
	}

	text := strings.ToLower(ad.Content.Title + " " + ad.Content.Description)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			hits++
		}
	}

	return float64(hits) / float64(len(keywords))
}

// ValidateTargeting 校验定向条件，返回结构化报告而非错误
func (s *RelevanceScorer) ValidateTargeting(criteria *domain.TargetingCriteria) *domain.TargetingValidation {
	report := &domain.TargetingValidation{
		Valid:       true,
		Issues:      make([]string, 0),
		Suggestions: make([]string, 0),
	}

	if criteria.IsEmpty() {
		report.Valid = false
		report.Issues = append(report.Issues, "No targeting criteria specified")
		report.Suggestions = append(report.Suggestions, "Add at least one topic, intent or engagement tier")
		return report
	}

	if criteria.SentimentRange != nil && criteria.SentimentRange.Min >= criteria.SentimentRange.Max {
		report.Valid = false
		report.Issues = append(report.Issues, "Sentiment range is inverted (min >= max)")
		report.Suggestions = append(report.Suggestions, "Set sentiment range min below max")
	}

	// 启发式冲突：商业意图 + 情感上限为负，几乎不会有候选通过
	if containsFold(criteria.Intents, domain.IntentCategoryCommercial) &&
		criteria.SentimentRange != nil && criteria.SentimentRange.Max < 0 {
		report.Valid = false
		report.Issues = append(report.Issues, "Commercial intent targeting with sentiment range capped below 0")
		report.Suggestions = append(report.Suggestions, "Raise sentiment range max or drop commercial intent")
	}

	return report
}

// OptimizeTargeting 根据投放效果反馈调整权重并归一化
func (s *RelevanceScorer) OptimizeTargeting(performance *domain.PerformanceSnapshot) *TargetingOptimization {
	weights := DefaultScoringWeights()

	if performance.CTR < 0.02 {
		weights.Intent *= 1.2
		weights.Engagement *= 1.2
		weights.Topic *= 0.9
	}
	if performance.EngagementScore < 0.5 {
		weights.Interest *= 1.3
		weights.Sentiment *= 1.1
	}

	goal := "ctr"
	if performance.CTR > 0.03 {
		goal = "conversion"
	}

	optimized := &TargetingOptimization{
		Weights: weights.normalize(),
		Goal:    goal,
	}

	s.log.Debugf("targeting optimized: goal=%s, weights_sum=%.6f", goal, optimized.Weights.Sum())
	return optimized
}

// jaccard 两个集合的 Jaccard 相似度（大小写不敏感）
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, v := range a {
		setA[strings.ToLower(v)] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, v := range b {
		setB[strings.ToLower(v)] = struct{}{}
	}

	intersection := 0
	for v := range setA {
		if _, ok := setB[v]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// keywordOverlap 类目与任一关键词是否存在文本重叠（双向包含）
func keywordOverlap(category string, keywords []string) bool {
	c := strings.ToLower(category)
	if c == "" {
		return false
	}
	for _, kw := range keywords {
		k := strings.ToLower(kw)
		if k == "" {
			continue
		}
		if strings.Contains(k, c) || strings.Contains(c, k) {
			return true
		}
	}
	return false
}

// containsFold 大小写不敏感的包含判断
func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

// clamp01 截断到 [0,1]
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
