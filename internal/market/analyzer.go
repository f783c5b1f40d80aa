// Package market aggregates historical trade outcomes per destination
// country into risk-adjusted opportunity scores.
package market

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/poweranger/trade-optimizer/internal/domain"
	"github.com/poweranger/trade-optimizer/internal/risk"
	"github.com/poweranger/trade-optimizer/internal/traderr"
)

// OnTimeThresholdDays is the delivery-days ceiling under which a transaction
// counts as on time.
const OnTimeThresholdDays = 45.0

// Component saturation points for scaling sub-metrics into [0,100].
const (
	profitSaturation  = 30.0 // profit margin (%) treated as a full score
	tariffSaturation  = 40.0 // tariff rate (%) at which the tariff score hits 0
	weightSumEpsilon  = 1e-6
	supportHalfLifeTx = 10.0
)

// Penalty subtracted from the composite per risk tier.
const (
	penaltyLow    = 0.0
	penaltyMedium = 7.5
	penaltyHigh   = 15.0
)

// Weights combine the four contributing metrics. They must sum to 1.
type Weights struct {
	Profit      float64 `json:"profit"`
	Consistency float64 `json:"consistency"`
	OnTime      float64 `json:"on_time"`
	Tariff      float64 `json:"tariff"`
}

// DefaultWeights is the documented baseline.
func DefaultWeights() Weights {
	return Weights{Profit: 0.40, Consistency: 0.30, OnTime: 0.20, Tariff: 0.10}
}

// Validate enforces the same weight-sum invariant as dealer ranking.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"profit": w.Profit, "consistency": w.Consistency,
		"on_time": w.OnTime, "tariff": w.Tariff,
	} {
		if v < 0 {
			return traderr.InvalidConfiguration(fmt.Sprintf("opportunity weight %s is negative", name))
		}
	}
	sum := w.Profit + w.Consistency + w.OnTime + w.Tariff
	if math.Abs(sum-1) > weightSumEpsilon {
		return traderr.InvalidConfiguration(fmt.Sprintf("opportunity weights sum to %.4f, expected 1.0", sum))
	}
	return nil
}

// Analyze scores every country, descending by composite opportunity score.
// Countries with no usable history score 0 with tier Unknown rather than
// being dropped, so "no data" stays distinguishable from "poor opportunity".
func Analyze(countries []domain.Country, txs []domain.Transaction, w Weights) ([]domain.OpportunityScore, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	byCountry := make(map[int64][]domain.Transaction)
	for _, tx := range txs {
		if tx.Usable() {
			byCountry[tx.DestinationCountryID] = append(byCountry[tx.DestinationCountryID], tx)
		}
	}

	out := make([]domain.OpportunityScore, 0, len(countries))
	for _, c := range countries {
		out = append(out, scoreCountry(c, byCountry[c.ID], w))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CompositeScore != out[j].CompositeScore {
			return out[i].CompositeScore > out[j].CompositeScore
		}
		return out[i].CountryID < out[j].CountryID
	})
	return out, nil
}

func scoreCountry(c domain.Country, txs []domain.Transaction, w Weights) domain.OpportunityScore {
	if len(txs) == 0 {
		return domain.OpportunityScore{
			CountryID:   c.ID,
			CountryName: c.Name,
			TariffRate:  c.TariffRate,
			RiskTier:    domain.RiskTierUnknown,
		}
	}

	margins := make([]float64, len(txs))
	days := make([]float64, len(txs))
	onTime := 0
	for i, tx := range txs {
		margins[i] = *tx.ProfitMargin
		days[i] = *tx.DeliveryDays
		if days[i] <= OnTimeThresholdDays {
			onTime++
		}
	}

	meanProfit, profitStd := stat.MeanStdDev(margins, nil)
	if len(margins) == 1 {
		profitStd = 0
	}
	consistency := profitConsistency(meanProfit, profitStd)
	onTimeRate := float64(onTime) / float64(len(txs))

	profitScore := clamp01(meanProfit/profitSaturation) * 100
	consistencyScore := consistency * 100
	onTimeScore := onTimeRate * 100
	tariffScore := clamp01(1-c.TariffRate/tariffSaturation) * 100

	profile := countryRiskProfile(c, days, consistency, len(txs))
	tier := risk.TierOf(profile)

	composite := w.Profit*profitScore +
		w.Consistency*consistencyScore +
		w.OnTime*onTimeScore +
		w.Tariff*tariffScore -
		tierPenalty(tier)
	if composite < 0 {
		composite = 0
	}

	return domain.OpportunityScore{
		CountryID:         c.ID,
		CountryName:       c.Name,
		CompositeScore:    composite,
		MeanProfitMargin:  meanProfit,
		ProfitConsistency: consistency,
		OnTimeRate:        onTimeRate,
		TariffRate:        c.TariffRate,
		TransactionCount:  len(txs),
		RiskTier:          tier,
	}
}

// profitConsistency is 1 minus the coefficient of variation, clamped to
// [0,1]. Non-positive mean margins carry no consistency signal.
func profitConsistency(mean, std float64) float64 {
	if mean <= 0 {
		return 0
	}
	return clamp01(1 - std/mean)
}

// countryRiskProfile maps market-level aggregates onto the risk factor
// layout so the tier classification shares one definition with predictions.
func countryRiskProfile(c domain.Country, deliveryDays []float64, consistency float64, txCount int) domain.RiskProfile {
	deliveryRisk := risk.DeliveryRiskPrior
	if len(deliveryDays) > 1 {
		variance := stat.Variance(deliveryDays, nil)
		deliveryRisk = variance / (variance + 100)
	}
	return domain.RiskProfile{
		DeliveryRisk:    deliveryRisk,
		QualityRisk:     clamp01(1 - consistency),
		CostRisk:        clamp01(c.TariffRate / tariffSaturation),
		ReliabilityRisk: clamp01(1 / (1 + float64(txCount)/supportHalfLifeTx)),
	}
}

func tierPenalty(t domain.RiskTier) float64 {
	switch t {
	case domain.RiskTierLow:
		return penaltyLow
	case domain.RiskTierMedium:
		return penaltyMedium
	default:
		return penaltyHigh
	}
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
