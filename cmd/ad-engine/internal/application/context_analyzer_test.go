package application

import (
	"testing"

	"adengine/cmd/ad-engine/internal/domain"
)

func TestContextAnalyzer_CreateQuery(t *testing.T) {
	analyzer := NewContextAnalyzer(nil)
	cctx := testConversationContext()

	query := analyzer.CreateQuery(cctx)

	if query.MaxResults != 20 {
		t.Errorf("Expected default max results 20, got %d", query.MaxResults)
	}

	// 主题集合：名称、类目、关键词去重后合并
	expected := map[string]bool{
		"smartphones": false, "technology": false, "phone": false,
		"camera": false, "battery": false, "photography": false,
		"hobby": false, "lens": false,
	}
	for _, topic := range query.Topics {
		if _, ok := expected[topic]; !ok {
			t.Errorf("Unexpected topic term: %s", topic)
			continue
		}
		if expected[topic] {
			t.Errorf("Duplicate topic term: %s", topic)
		}
		expected[topic] = true
	}
	for term, seen := range expected {
		if !seen {
			t.Errorf("Missing topic term: %s", term)
		}
	}

	// 商业意图映射到行为 + 人口属性信号类目
	if len(query.Categories) != 2 ||
		query.Categories[0] != domain.SignalCategoryBehavioral ||
		query.Categories[1] != domain.SignalCategoryDemographic {
		t.Errorf("Unexpected categories for commercial intent: %v", query.Categories)
	}

	if query.Intent != "buy_phone commercial" {
		t.Errorf("Unexpected intent text: %q", query.Intent)
	}
}

func TestContextAnalyzer_TopicFiltering(t *testing.T) {
	analyzer := NewContextAnalyzer(&ContextAnalyzerConfig{
		MinTopicConfidence:  0.5,
		MaxTopics:           1,
		MaxKeywordsPerTopic: 1,
		MaxResults:          10,
	})

	cctx := &domain.ConversationContext{
		Topics: []*domain.Topic{
			{Name: "weak", Confidence: 0.2, RelevanceScore: 0.9, Keywords: []string{"w1"}},
			{Name: "strong", Confidence: 0.9, RelevanceScore: 0.9, Keywords: []string{"s1", "s2"}},
			{Name: "medium", Confidence: 0.6, RelevanceScore: 0.5, Keywords: []string{"m1"}},
		},
		Intent: domain.Intent{Primary: "ask", Category: domain.IntentCategoryInformational},
	}

	query := analyzer.CreateQuery(cctx)

	// 低置信度主题被过滤，MaxTopics=1 只保留排名最高的 strong，
	// 每主题只取 1 个关键词
	expected := []string{"strong", "s1"}
	if len(query.Topics) != len(expected) {
		t.Fatalf("Expected topics %v, got %v", expected, query.Topics)
	}
	for i, term := range expected {
		if query.Topics[i] != term {
			t.Errorf("Topics[%d] = %s, expected %s", i, query.Topics[i], term)
		}
	}
}

func TestContextAnalyzer_UnknownIntentCategory(t *testing.T) {
	analyzer := NewContextAnalyzer(nil)

	cctx := &domain.ConversationContext{
		Intent: domain.Intent{Primary: "mystery", Category: "unknown_category"},
	}

	query := analyzer.CreateQuery(cctx)
	if len(query.Categories) != 1 || query.Categories[0] != domain.SignalCategoryContextual {
		t.Errorf("Expected contextual fallback for unknown intent, got %v", query.Categories)
	}
}

func TestContextAnalyzer_IntentText(t *testing.T) {
	analyzer := NewContextAnalyzer(nil)

	testCases := []struct {
		name     string
		intent   domain.Intent
		expected string
	}{
		{
			name:     "仅主意图",
			intent:   domain.Intent{Primary: "buy"},
			expected: "buy",
		},
		{
			name: "主意图 + 次要意图 + 类目",
			intent: domain.Intent{
				Primary:   "buy_phone",
				Secondary: []string{"compare_prices"},
				Category:  domain.IntentCategoryCommercial,
			},
			expected: "buy_phone compare_prices commercial",
		},
		{
			name:     "全空",
			intent:   domain.Intent{},
			expected: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := analyzer.intentText(&tc.intent); got != tc.expected {
				t.Errorf("intentText = %q, expected %q", got, tc.expected)
			}
		})
	}
}
