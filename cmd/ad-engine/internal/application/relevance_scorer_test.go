package application

import (
	"math"
	"os"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"adengine/cmd/ad-engine/internal/domain"
)

func testConversationContext() *domain.ConversationContext {
	return &domain.ConversationContext{
		Topics: []*domain.Topic{
			{
				Name:           "smartphones",
				Category:       "technology",
				Confidence:     0.9,
				Keywords:       []string{"phone", "camera", "battery"},
				RelevanceScore: 0.8,
			},
			{
				Name:           "photography",
				Category:       "hobby",
				Confidence:     0.7,
				Keywords:       []string{"camera", "lens"},
				RelevanceScore: 0.6,
			},
		},
		Intent: domain.Intent{
			Primary:    "buy_phone",
			Category:   domain.IntentCategoryCommercial,
			Confidence: 0.85,
			Actionable: true,
		},
		Sentiment: domain.Sentiment{
			Polarity:   0.5,
			Magnitude:  0.6,
			Confidence: 0.9,
		},
		Stage: domain.Stage{
			Name:         domain.StageDecisionMaking,
			Progress:     0.7,
			MessageCount: 12,
		},
		Engagement: domain.Engagement{
			Score: 0.8,
			Tier:  domain.EngagementTierHigh,
			Trend: domain.TrendIncreasing,
		},
		Confidence: 0.9,
	}
}

func testAd() *domain.Ad {
	return &domain.Ad{
		ID: "ad-001",
		Content: domain.AdContent{
			Title:       "New flagship phone with pro camera",
			Description: "Long battery life and a stunning camera for photography lovers",
			CTA:         "Shop now",
			Brand:       "PhoneCo",
			Keywords:    []string{"phone", "camera", "battery"},
		},
	}
}

func TestRelevanceScorer_ScoreRange(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)
	scorer := NewRelevanceScorer(logger)

	testCases := []struct {
		name    string
		cctx    *domain.ConversationContext
		profile *domain.UserProfile
	}{
		{
			name: "完整上下文",
			cctx: testConversationContext(),
			profile: &domain.UserProfile{
				ID: "user-1",
				Interests: []*domain.Interest{
					{Category: "camera", Score: 0.9, LastUpdated: time.Now()},
				},
			},
		},
		{
			name:    "无画像",
			cctx:    testConversationContext(),
			profile: nil,
		},
		{
			name: "空主题",
			cctx: &domain.ConversationContext{
				Intent:     domain.Intent{Category: domain.IntentCategorySupport, Confidence: 0.4},
				Confidence: 0.5,
			},
			profile: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			score := scorer.Score(testAd(), tc.cctx, tc.profile, nil)
			if score < 0 || score > 1 {
				t.Errorf("Score out of range: %.4f", score)
			}
			t.Logf("Score: %.4f", score)
		})
	}
}

func TestRelevanceScorer_ZeroContextConfidence(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)
	scorer := NewRelevanceScorer(logger)

	cctx := testConversationContext()
	cctx.Confidence = 0

	score := scorer.Score(testAd(), cctx, nil, nil)
	if score != 0 {
		t.Errorf("Expected score 0 with zero context confidence, got %.4f", score)
	}
}

func TestRelevanceScorer_IntentCategoryOrdering(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)
	scorer := NewRelevanceScorer(logger)

	commercial := testConversationContext()
	commercial.Intent.Category = domain.IntentCategoryCommercial

	support := testConversationContext()
	support.Intent.Category = domain.IntentCategorySupport

	commercialScore := scorer.Score(testAd(), commercial, nil, nil)
	supportScore := scorer.Score(testAd(), support, nil, nil)

	if commercialScore <= supportScore {
		t.Errorf("Commercial intent should outscore support intent: %.4f <= %.4f",
			commercialScore, supportScore)
	}
	t.Logf("commercial=%.4f, support=%.4f", commercialScore, supportScore)
}

func TestRelevanceScorer_CriteriaFilters(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)
	scorer := NewRelevanceScorer(logger)
	cctx := testConversationContext()

	testCases := []struct {
		name     string
		criteria *domain.TargetingCriteria
		factor   func() float64
		expected float64
	}{
		{
			name:     "意图不在白名单",
			criteria: &domain.TargetingCriteria{Intents: []string{domain.IntentCategorySupport}},
			factor: func() float64 {
				return scorer.intentAlignment(cctx, &domain.TargetingCriteria{Intents: []string{domain.IntentCategorySupport}})
			},
			expected: 0,
		},
		{
			name:     "情感超出区间",
			criteria: &domain.TargetingCriteria{SentimentRange: &domain.SentimentRange{Min: -1, Max: 0}},
			factor: func() float64 {
				return scorer.sentimentCompatibility(cctx, &domain.TargetingCriteria{SentimentRange: &domain.SentimentRange{Min: -1, Max: 0}})
			},
			expected: 0,
		},
		{
			name:     "参与度层级不匹配",
			criteria: &domain.TargetingCriteria{EngagementTiers: []string{domain.EngagementTierLow}},
			factor: func() float64 {
				return scorer.engagementFit(cctx, &domain.TargetingCriteria{EngagementTiers: []string{domain.EngagementTierLow}})
			},
			expected: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.factor(); got != tc.expected {
				t.Errorf("Expected factor %.2f, got %.4f", tc.expected, got)
			}
		})
	}
}

func TestRelevanceScorer_InterestRelevance(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)
	scorer := NewRelevanceScorer(logger)
	ad := testAd()

	t.Run("画像缺失返回中性分", func(t *testing.T) {
		if got := scorer.interestRelevance(ad, nil); got != 0.5 {
			t.Errorf("Expected 0.5, got %.4f", got)
		}
	})

	t.Run("有画像但无匹配", func(t *testing.T) {
		profile := &domain.UserProfile{
			ID: "user-2",
			Interests: []*domain.Interest{
				{Category: "gardening", Score: 0.9, LastUpdated: time.Now()},
			},
		}
		if got := scorer.interestRelevance(ad, profile); got != 0.3 {
			t.Errorf("Expected 0.3, got %.4f", got)
		}
	})

	t.Run("新鲜兴趣不衰减", func(t *testing.T) {
		profile := &domain.UserProfile{
			ID: "user-3",
			Interests: []*domain.Interest{
				{Category: "camera", Score: 0.8, LastUpdated: time.Now().Add(-24 * time.Hour)},
			},
		}
		got := scorer.interestRelevance(ad, profile)
		if math.Abs(got-0.8) > 1e-9 {
			t.Errorf("Expected 0.8, got %.4f", got)
		}
	})

	t.Run("陈旧兴趣按档衰减", func(t *testing.T) {
		profile := &domain.UserProfile{
			ID: "user-4",
			Interests: []*domain.Interest{
				{Category: "camera", Score: 1.0, LastUpdated: time.Now().Add(-40 * 24 * time.Hour)},
			},
		}
		got := scorer.interestRelevance(ad, profile)
		if math.Abs(got-0.6) > 1e-9 {
			t.Errorf("Expected 0.6 for 40-day-old interest, got %.4f", got)
		}
	})
}

func TestRelevanceScorer_ValidateTargeting(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)
	scorer := NewRelevanceScorer(logger)

	testCases := []struct {
		name          string
		criteria      *domain.TargetingCriteria
		expectValid   bool
		expectedIssue string
	}{
		{
			name:          "空条件",
			criteria:      &domain.TargetingCriteria{},
			expectValid:   false,
			expectedIssue: "No targeting criteria specified",
		},
		{
			name: "区间倒置",
			criteria: &domain.TargetingCriteria{
				Topics:         []string{"tech"},
				SentimentRange: &domain.SentimentRange{Min: 0.5, Max: -0.5},
			},
			expectValid:   false,
			expectedIssue: "Sentiment range is inverted (min >= max)",
		},
		{
			name: "商业意图与负面情感冲突",
			criteria: &domain.TargetingCriteria{
				Intents:        []string{domain.IntentCategoryCommercial},
				SentimentRange: &domain.SentimentRange{Min: -1, Max: -0.2},
			},
			expectValid: false,
		},
		{
			name: "合法条件",
			criteria: &domain.TargetingCriteria{
				Topics:  []string{"tech"},
				Intents: []string{domain.IntentCategoryCommercial},
			},
			expectValid: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			report := scorer.ValidateTargeting(tc.criteria)
			if report.Valid != tc.expectValid {
				t.Errorf("Expected valid=%v, got %v (issues: %v)", tc.expectValid, report.Valid, report.Issues)
			}
			if tc.expectedIssue != "" {
				found := false
				for _, issue := range report.Issues {
					if issue == tc.expectedIssue {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("Expected issue %q, got %v", tc.expectedIssue, report.Issues)
				}
			}
		})
	}
}

func TestRelevanceScorer_OptimizeTargeting(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)
	scorer := NewRelevanceScorer(logger)

	testCases := []struct {
		name         string
		performance  *domain.PerformanceSnapshot
		expectedGoal string
	}{
		{
			name:         "低 CTR 低参与",
			performance:  &domain.PerformanceSnapshot{CTR: 0.01, EngagementScore: 0.3},
			expectedGoal: "ctr",
		},
		{
			name:         "高 CTR 转向转化目标",
			performance:  &domain.PerformanceSnapshot{CTR: 0.04, EngagementScore: 0.7},
			expectedGoal: "conversion",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			optimized := scorer.OptimizeTargeting(tc.performance)
			if optimized.Goal != tc.expectedGoal {
				t.Errorf("Expected goal %s, got %s", tc.expectedGoal, optimized.Goal)
			}
			if sum := optimized.Weights.Sum(); math.Abs(sum-1.0) > 1e-9 {
				t.Errorf("Normalized weights must sum to 1, got %.9f", sum)
			}
			t.Logf("goal=%s, weights=%+v", optimized.Goal, optimized.Weights)
		})
	}
}

func TestJaccard(t *testing.T) {
	testCases := []struct {
		name     string
		a, b     []string
		expected float64
	}{
		{"完全相同", []string{"a", "b"}, []string{"A", "B"}, 1.0},
		{"完全不同", []string{"a"}, []string{"b"}, 0.0},
		{"部分重叠", []string{"a", "b"}, []string{"b", "c"}, 1.0 / 3.0},
		{"双空集合", nil, nil, 0.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := jaccard(tc.a, tc.b); math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("jaccard(%v, %v) = %.4f, expected %.4f", tc.a, tc.b, got, tc.expected)
			}
		})
	}
}
