package application

import (
	"math"
	"sort"
	"strings"

	"github.com/go-kratos/kratos/v2/log"

	"adengine/cmd/ad-engine/internal/domain"
)

// 人口属性匹配暂为中性占位分，提供商侧画像对齐上线前保持 0.5
const demographicsNeutralScore = 0.5

// SignalWeights 信号综合分权重
type SignalWeights struct {
	Relevance      float64 `json:"relevance"`
	Quality        float64 `json:"quality"`
	CostEfficiency float64 `json:"cost_efficiency"`
	Reach          float64 `json:"reach"`
}

// DefaultSignalWeights 默认权重
func DefaultSignalWeights() SignalWeights {
	return SignalWeights{
		Relevance:      0.4,
		Quality:        0.3,
		CostEfficiency: 0.2,
		Reach:          0.1,
	}
}

// SignalScorer 对外部发现的受众信号按上下文打分排序
type SignalScorer struct {
	weights SignalWeights
	log     *log.Helper
}

// NewSignalScorer 创建信号打分器
func NewSignalScorer(weights *SignalWeights, logger log.Logger) *SignalScorer {
	w := DefaultSignalWeights()
	if weights != nil {
		w = *weights
	}
	return &SignalScorer{
		weights: w,
		log:     log.NewHelper(log.With(logger, "module", "signal_scorer")),
	}
}

// ScoreSignals 打分并按综合分降序排序
func (s *SignalScorer) ScoreSignals(signals []*domain.AudienceSignal, cctx *domain.ConversationContext) []*domain.ScoredSignal {
	if len(signals) == 0 {
		return nil
	}

	avgCPM := 0.0
	var maxReach int64
	for _, sig := range signals {
		avgCPM += sig.CPM
		if sig.Reach > maxReach {
			maxReach = sig.Reach
		}
	}
	avgCPM /= float64(len(signals))

	scored := make([]*domain.ScoredSignal, 0, len(signals))
	for _, sig := range signals {
		ss := &domain.ScoredSignal{
			Signal:         sig,
			Relevance:      s.relevance(sig, cctx),
			Quality:        s.quality(sig),
			CostEfficiency: s.costEfficiency(sig.CPM, avgCPM),
			Reach:          s.reach(sig.Reach, maxReach),
		}
		ss.Total = s.weights.Relevance*ss.Relevance +
			s.weights.Quality*ss.Quality +
			s.weights.CostEfficiency*ss.CostEfficiency +
			s.weights.Reach*ss.Reach
		scored = append(scored, ss)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Total > scored[j].Total
	})

	return scored
}

// relevance 最多三个可用子项的均值：主题 Jaccard、意图重叠、人口属性占位
// 没有任何可用子项时取中性 0.5
func (s *SignalScorer) relevance(sig *domain.AudienceSignal, cctx *domain.ConversationContext) float64 {
	sum := 0.0
	available := 0

	if len(sig.Metadata.Topics) > 0 && len(cctx.Topics) > 0 {
		contextTerms := cctx.AllKeywords()
		for _, topic := range cctx.Topics {
			contextTerms = append(contextTerms, topic.Name, topic.Category)
		}
		sum += jaccard(contextTerms, sig.Metadata.Topics) * meanTopicConfidence(cctx.Topics)
		available++
	}

	if len(sig.Metadata.Intents) > 0 {
		sum += intentOverlap(cctx.IntentCategories(), sig.Metadata.Intents) * cctx.Intent.Confidence
		available++
	}

	if len(sig.Metadata.Demographics) > 0 {
		sum += demographicsNeutralScore
		available++
	}

	if available == 0 {
		return 0.5
	}
	return sum / float64(available)
}

// quality 信号质量：置信度 0.7 + 数据新鲜度 0.3（新鲜度未知取 0.5）
func (s *SignalScorer) quality(sig *domain.AudienceSignal) float64 {
	freshness := sig.Metadata.DataFreshness
	if freshness <= 0 {
		freshness = 0.5
	}
	return 0.7*sig.Confidence + 0.3*freshness
}

// costEfficiency 成本效率：低于均价线性加分，高于均价指数衰减
func (s *SignalScorer) costEfficiency(cpm, avgCPM float64) float64 {
	if avgCPM <= 0 {
		return 0.5
	}
	ratio := cpm / avgCPM
	if ratio <= 1 {
		return 0.5 + 0.5*(1-ratio)
	}
	return 0.5 * math.Exp(-(ratio - 1))
}

// reach 触达分：对数收益递减
func (s *SignalScorer) reach(reach, maxReach int64) float64 {
	if maxReach <= 0 {
		return 0
	}
	normalized := math.Min(float64(reach)/float64(maxReach), 1)
	return math.Log10(1+9*normalized) / math.Log10(10)
}

// meanTopicConfidence 主题平均置信度
func meanTopicConfidence(topics []*domain.Topic) float64 {
	if len(topics) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range topics {
		sum += t.Confidence
	}
	return sum / float64(len(topics))
}

// intentOverlap 意图类目集合重叠比例
func intentOverlap(contextIntents, signalIntents []string) float64 {
	if len(contextIntents) == 0 || len(signalIntents) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(contextIntents))
	for _, v := range contextIntents {
		set[strings.ToLower(v)] = struct{}{}
	}

	matches := 0
	for _, v := range signalIntents {
		if _, ok := set[strings.ToLower(v)]; ok {
			matches++
		}
	}

	return float64(matches) / float64(len(signalIntents))
}
