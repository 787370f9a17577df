package application

import (
	"fmt"
	"os"
	"testing"

	"github.com/go-kratos/kratos/v2/log"

	"adengine/cmd/ad-engine/internal/domain"
)

func newTestFramework(treatmentPercentage int) *ExperimentFramework {
	logger := log.NewStdLogger(os.Stdout)
	return NewExperimentFramework(&domain.ExperimentConfig{
		ID:                  "exp-test",
		Name:                "test experiment",
		Active:              true,
		TreatmentPercentage: treatmentPercentage,
	}, nil, logger)
}

func TestHashPercentile_Range(t *testing.T) {
	for i := 0; i < 10000; i++ {
		p := hashPercentile(fmt.Sprintf("user_%d", i))
		if p < 1 || p > 100 {
			t.Fatalf("Percentile out of range for user_%d: %d", i, p)
		}
	}

	// 空字符串也必须落在合法区间
	if p := hashPercentile(""); p < 1 || p > 100 {
		t.Errorf("Percentile out of range for empty identity: %d", p)
	}
}

func TestHashPercentile_Deterministic(t *testing.T) {
	identities := []string{"user_42", "session_abc", "张三", ""}
	for _, id := range identities {
		first := hashPercentile(id)
		for i := 0; i < 100; i++ {
			if got := hashPercentile(id); got != first {
				t.Fatalf("hashPercentile(%q) not deterministic: %d != %d", id, got, first)
			}
		}
	}
}

func TestExperimentFramework_StableAssignment(t *testing.T) {
	f := newTestFramework(50)

	first := f.AssignVariant("user_1").Variant
	for i := 0; i < 100; i++ {
		if got := f.AssignVariant("user_1").Variant; got != first {
			t.Fatalf("Assignment changed on call %d: %s != %s", i, got, first)
		}
	}

	// 相同配置的另一个实例必须得到相同分组
	other := newTestFramework(50)
	if got := other.AssignVariant("user_1").Variant; got != first {
		t.Errorf("Assignment differs across instances: %s != %s", got, first)
	}
}

func TestExperimentFramework_TreatmentFraction(t *testing.T) {
	f := newTestFramework(50)

	treatment := 0
	total := 10000
	for i := 0; i < total; i++ {
		if f.IsInTreatment(fmt.Sprintf("user_%d", i)) {
			treatment++
		}
	}

	fraction := float64(treatment) / float64(total)
	if fraction < 0.35 || fraction > 0.65 {
		t.Errorf("Treatment fraction far from 50%%: %.3f", fraction)
	}
	t.Logf("Treatment fraction: %.3f", fraction)
}

func TestExperimentFramework_BoundaryPercentages(t *testing.T) {
	t.Run("百分比为 0 时全部对照", func(t *testing.T) {
		f := newTestFramework(0)
		for i := 0; i < 1000; i++ {
			if f.IsInTreatment(fmt.Sprintf("user_%d", i)) {
				t.Fatalf("user_%d assigned to treatment with 0%%", i)
			}
		}
	})

	t.Run("百分比为 100 时全部实验", func(t *testing.T) {
		f := newTestFramework(100)
		for i := 0; i < 1000; i++ {
			if !f.IsInTreatment(fmt.Sprintf("user_%d", i)) {
				t.Fatalf("user_%d assigned to control with 100%%", i)
			}
		}
	})
}

func TestExperimentFramework_ZeroSampleAnalysis(t *testing.T) {
	f := newTestFramework(50)

	results := f.GetResults()
	if results.Analysis.PValue != 1 {
		t.Errorf("Expected p-value 1 with no samples, got %.4f", results.Analysis.PValue)
	}
	if results.Analysis.ConfidenceInterval != [2]float64{0, 0} {
		t.Errorf("Expected CI [0,0] with no samples, got %v", results.Analysis.ConfidenceInterval)
	}
	if results.Analysis.IsSignificant {
		t.Error("No samples must never be significant")
	}
	if results.Status != domain.ExperimentStatusRunning {
		t.Errorf("Expected running status, got %s", results.Status)
	}
}

// findIdentities 找出一个对照组身份和一个实验组身份
func findIdentities(f *ExperimentFramework) (control, treatment string) {
	for i := 0; control == "" || treatment == ""; i++ {
		id := fmt.Sprintf("probe_%d", i)
		if f.IsInTreatment(id) {
			if treatment == "" {
				treatment = id
			}
		} else if control == "" {
			control = id
		}
	}
	return control, treatment
}

func TestExperimentFramework_SignificantCTRLift(t *testing.T) {
	f := newTestFramework(50)
	controlID, treatmentID := findIdentities(f)

	// 对照组 2% CTR，实验组 2.5% CTR，各一万次展示
	f.TrackOutcome(controlID, &domain.MetricsDelta{Impressions: 10000, Clicks: 200, Conversions: 20, Revenue: 100})
	f.TrackOutcome(treatmentID, &domain.MetricsDelta{Impressions: 10000, Clicks: 250, Conversions: 30, Revenue: 120})

	results := f.GetResults()
	analysis := results.Analysis

	if analysis.ControlSampleSize != 10000 || analysis.TreatmentSampleSize != 10000 {
		t.Fatalf("Unexpected sample sizes: %d / %d", analysis.ControlSampleSize, analysis.TreatmentSampleSize)
	}
	if lift := analysis.CTRLiftPercent; lift < 24.9 || lift > 25.1 {
		t.Errorf("Expected CTR lift ~25%%, got %.2f%%", lift)
	}
	if lift := analysis.ConversionLiftPercent; lift < 49.9 || lift > 50.1 {
		t.Errorf("Expected conversion lift ~50%%, got %.2f%%", lift)
	}
	if analysis.PValue >= 0.05 {
		t.Errorf("Expected significant result, p-value = %.4f", analysis.PValue)
	}
	if !analysis.IsSignificant {
		t.Error("Expected IsSignificant = true")
	}
	if analysis.ConfidenceInterval[0] >= analysis.ConfidenceInterval[1] {
		t.Errorf("Degenerate confidence interval: %v", analysis.ConfidenceInterval)
	}

	if ctr := results.Control.CTR; ctr < 1.99 || ctr > 2.01 {
		t.Errorf("Expected control CTR ~2%%, got %.3f", ctr)
	}
	if ctr := results.Treatment.CTR; ctr < 2.49 || ctr > 2.51 {
		t.Errorf("Expected treatment CTR ~2.5%%, got %.3f", ctr)
	}

	t.Logf("p=%.5f, ctr_lift=%.2f%%, ci=%v", analysis.PValue, analysis.CTRLiftPercent, analysis.ConfidenceInterval)
}

func TestExperimentFramework_RequestMetrics(t *testing.T) {
	f := newTestFramework(50)
	controlID, _ := findIdentities(f)

	f.RecordRequest(controlID, 100, false)
	f.RecordRequest(controlID, 200, true)

	results := f.GetResults()
	if results.Control.Requests != 2 {
		t.Errorf("Expected 2 requests, got %d", results.Control.Requests)
	}
	if results.Control.ErrorRate != 0.5 {
		t.Errorf("Expected error rate 0.5, got %.4f", results.Control.ErrorRate)
	}
	if results.Control.AvgResponseTime != 150 {
		t.Errorf("Expected avg response time 150ms, got %.2f", results.Control.AvgResponseTime)
	}
}

func TestExperimentFramework_Reset(t *testing.T) {
	f := newTestFramework(50)
	controlID, treatmentID := findIdentities(f)

	f.TrackOutcome(controlID, &domain.MetricsDelta{Impressions: 100, Clicks: 10})
	f.TrackOutcome(treatmentID, &domain.MetricsDelta{Impressions: 100, Clicks: 20})
	f.Reset()

	results := f.GetResults()
	if results.Control.Impressions != 0 || results.Treatment.Impressions != 0 {
		t.Errorf("Expected empty metrics after reset, got control=%d treatment=%d",
			results.Control.Impressions, results.Treatment.Impressions)
	}
	if results.Analysis.PValue != 1 {
		t.Errorf("Expected p-value 1 after reset, got %.4f", results.Analysis.PValue)
	}
}

func TestNormalCDF(t *testing.T) {
	testCases := []struct {
		x         float64
		expected  float64
		tolerance float64
	}{
		{0, 0.5, 1e-4},
		{1.96, 0.975, 1e-3},
		{-1.96, 0.025, 1e-3},
		{3, 0.99865, 1e-3},
	}

	for _, tc := range testCases {
		if got := normalCDF(tc.x); got < tc.expected-tc.tolerance || got > tc.expected+tc.tolerance {
			t.Errorf("normalCDF(%.2f) = %.5f, expected ~%.5f", tc.x, got, tc.expected)
		}
	}
}
