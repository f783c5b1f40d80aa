// Package risk derives per-scenario risk factors from feature vectors and
// historical delivery variance, and classifies them into coarse tiers.
package risk

import (
	"gonum.org/v1/gonum/stat"

	"github.com/poweranger/trade-optimizer/internal/domain"
	"github.com/poweranger/trade-optimizer/internal/features"
)

const (
	// DeliveryRiskPrior is reported when a (country, transport mode) pair
	// has no delivery history. Absence of data is not evidence of zero risk.
	DeliveryRiskPrior = 0.5

	// deliveryVarianceScale saturates the normalized delivery variance.
	// Variance equal to the scale maps to risk 0.5 (units: days squared).
	deliveryVarianceScale = 100.0

	// tariffBurdenScale saturates the normalized tariff burden into [0,1).
	tariffBurdenScale = 50000.0

	// reliabilitySupportHalfLife is the transaction count at which the
	// low-history penalty halves.
	reliabilitySupportHalfLife = 10.0

	reliabilityIndexWeight   = 0.7
	reliabilitySupportWeight = 0.3
)

// Tier thresholds over the mean risk factor.
const (
	lowTierCeiling    = 0.35
	mediumTierCeiling = 0.60
)

// History carries the per-scenario statistics the assessor consumes: the
// observed delivery days for the scenario's (country, transport mode) pair.
type History struct {
	DeliveryDays []float64
}

// Assess computes the four risk factors for one feature vector.
func Assess(fv features.Vector, hist History) domain.RiskProfile {
	return domain.RiskProfile{
		DeliveryRisk:    deliveryRisk(hist.DeliveryDays),
		QualityRisk:     clamp01(1 - fv.MustGet("dealer_quality_index")/100),
		CostRisk:        normalize(fv.MustGet("tariff_burden"), tariffBurdenScale),
		ReliabilityRisk: reliabilityRisk(fv),
	}
}

func deliveryRisk(days []float64) float64 {
	if len(days) == 0 {
		return DeliveryRiskPrior
	}
	if len(days) == 1 {
		// A single observation carries no variance signal; stay on the prior.
		return DeliveryRiskPrior
	}
	variance := stat.Variance(days, nil)
	return normalize(variance, deliveryVarianceScale)
}

func reliabilityRisk(fv features.Vector) float64 {
	indexRisk := 1 - fv.MustGet("dealer_reliability_index")/100
	txCount := fv.MustGet("dealer_transaction_count")
	supportPenalty := 1 / (1 + txCount/reliabilitySupportHalfLife)
	return clamp01(reliabilityIndexWeight*indexRisk + reliabilitySupportWeight*supportPenalty)
}

// TierOf classifies a profile by its mean factor.
func TierOf(p domain.RiskProfile) domain.RiskTier {
	m := p.Mean()
	switch {
	case m < lowTierCeiling:
		return domain.RiskTierLow
	case m < mediumTierCeiling:
		return domain.RiskTierMedium
	default:
		return domain.RiskTierHigh
	}
}

// normalize maps a non-negative value into [0,1) with saturation at scale.
func normalize(v, scale float64) float64 {
	if v <= 0 {
		return 0
	}
	return v / (v + scale)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
