package risk

import (
	"testing"

	"github.com/poweranger/trade-optimizer/internal/domain"
	"github.com/poweranger/trade-optimizer/internal/features"
)

func testVector(qualityIdx, reliabilityIdx, txCount, tariffBurden float64) features.Vector {
	v := make(features.Vector, features.Count())
	for i, name := range features.Names() {
		switch name {
		case "dealer_quality_index":
			v[i] = qualityIdx
		case "dealer_reliability_index":
			v[i] = reliabilityIdx
		case "dealer_transaction_count":
			v[i] = txCount
		case "tariff_burden":
			v[i] = tariffBurden
		}
	}
	return v
}

func TestDeliveryRiskPriorWithoutHistory(t *testing.T) {
	tests := []struct {
		name string
		days []float64
	}{
		{"no observations", nil},
		{"single observation", []float64{30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Assess(testVector(80, 80, 20, 0), History{DeliveryDays: tt.days})
			if p.DeliveryRisk != DeliveryRiskPrior {
				t.Errorf("DeliveryRisk = %v, want prior %v", p.DeliveryRisk, DeliveryRiskPrior)
			}
		})
	}
}

func TestDeliveryRiskScalesWithVariance(t *testing.T) {
	steady := Assess(testVector(80, 80, 20, 0), History{DeliveryDays: []float64{30, 30, 31, 29}})
	volatile := Assess(testVector(80, 80, 20, 0), History{DeliveryDays: []float64{10, 60, 15, 55}})

	if steady.DeliveryRisk >= volatile.DeliveryRisk {
		t.Errorf("steady history risk %v should be below volatile %v", steady.DeliveryRisk, volatile.DeliveryRisk)
	}
}

func TestFactorsStayInUnitRange(t *testing.T) {
	vectors := []features.Vector{
		testVector(0, 0, 0, 0),
		testVector(100, 100, 1000, 1e9),
		testVector(50, 50, 5, 25000),
	}
	for _, fv := range vectors {
		p := Assess(fv, History{DeliveryDays: []float64{5, 90, 12, 70}})
		for name, v := range map[string]float64{
			"delivery": p.DeliveryRisk, "quality": p.QualityRisk,
			"cost": p.CostRisk, "reliability": p.ReliabilityRisk,
		} {
			if v < 0 || v > 1 {
				t.Errorf("%s risk %v outside [0,1]", name, v)
			}
		}
	}
}

func TestReliabilityRiskRewardsHistory(t *testing.T) {
	rookie := Assess(testVector(80, 80, 0, 0), History{})
	veteran := Assess(testVector(80, 80, 100, 0), History{})

	if veteran.ReliabilityRisk >= rookie.ReliabilityRisk {
		t.Errorf("veteran risk %v should be below rookie %v", veteran.ReliabilityRisk, rookie.ReliabilityRisk)
	}
}

func uniformProfile(v float64) domain.RiskProfile {
	return domain.RiskProfile{DeliveryRisk: v, QualityRisk: v, CostRisk: v, ReliabilityRisk: v}
}

func TestTierOf(t *testing.T) {
	tests := []struct {
		name     string
		profile  domain.RiskProfile
		expected domain.RiskTier
	}{
		{"all low", uniformProfile(0.1), domain.RiskTierLow},
		{"boundary below low ceiling", uniformProfile(0.34), domain.RiskTierLow},
		{"medium", uniformProfile(0.5), domain.RiskTierMedium},
		{"high", uniformProfile(0.75), domain.RiskTierHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TierOf(tt.profile); got != tt.expected {
				t.Errorf("TierOf(%v) = %v, want %v", tt.profile, got, tt.expected)
			}
		})
	}
}
