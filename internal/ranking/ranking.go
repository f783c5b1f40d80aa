// Package ranking scores suppliers with a weighted multi-criteria composite,
// independent of the prediction model.
package ranking

import (
	"fmt"
	"math"
	"sort"

	"github.com/poweranger/trade-optimizer/internal/domain"
	"github.com/poweranger/trade-optimizer/internal/traderr"
)

// WeightSumEpsilon is the tolerance on the weight-sum invariant.
const WeightSumEpsilon = 1e-6

// Weights are the per-criterion coefficients. They must sum to 1.
type Weights struct {
	Cost        float64 `json:"cost"`
	Quality     float64 `json:"quality"`
	Delivery    float64 `json:"delivery"`
	Reliability float64 `json:"reliability"`
	Capacity    float64 `json:"capacity"`
}

// DefaultWeights is the documented baseline.
func DefaultWeights() Weights {
	return Weights{Cost: 0.25, Quality: 0.25, Delivery: 0.25, Reliability: 0.15, Capacity: 0.10}
}

// Validate enforces the weight-sum invariant and non-negativity.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"cost": w.Cost, "quality": w.Quality, "delivery": w.Delivery,
		"reliability": w.Reliability, "capacity": w.Capacity,
	} {
		if v < 0 {
			return traderr.InvalidConfiguration(fmt.Sprintf("ranking weight %s is negative", name))
		}
	}
	sum := w.Cost + w.Quality + w.Delivery + w.Reliability + w.Capacity
	if math.Abs(sum-1) > WeightSumEpsilon {
		return traderr.InvalidConfiguration(fmt.Sprintf("ranking weights sum to %.4f, expected 1.0", sum))
	}
	return nil
}

// Filters narrow the candidate set before scoring. Zero values disable a
// filter. An empty result after filtering is a valid outcome, not an error.
type Filters struct {
	ProductCategoryID    int64 `json:"product_category_id,omitempty"`
	DestinationCountryID int64 `json:"destination_country_id,omitempty"`
}

func (f Filters) match(d domain.Dealer) bool {
	if f.ProductCategoryID != 0 && d.ProductCategoryID != f.ProductCategoryID {
		return false
	}
	if f.DestinationCountryID != 0 && !d.ServesMarket(f.DestinationCountryID) {
		return false
	}
	return true
}

// Rank scores the filtered dealers and returns at most maxResults entries,
// descending by composite score with deterministic tie-breaks: transaction
// count descending, then identifier ascending.
func Rank(dealers []domain.Dealer, filters Filters, weights Weights, maxResults int) ([]domain.RankingScore, error) {
	if maxResults <= 0 {
		return nil, traderr.InvalidInput("max_results", "must be positive")
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	scored := make([]domain.RankingScore, 0, len(dealers))
	for _, d := range dealers {
		if !filters.match(d) {
			continue
		}
		if err := d.Validate(); err != nil {
			return nil, traderr.InvalidInput("dealer", err.Error())
		}
		scored = append(scored, score(d, weights))
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].CompositeScore != scored[j].CompositeScore {
			return scored[i].CompositeScore > scored[j].CompositeScore
		}
		if scored[i].TransactionCount != scored[j].TransactionCount {
			return scored[i].TransactionCount > scored[j].TransactionCount
		}
		return scored[i].DealerID < scored[j].DealerID
	})

	if len(scored) > maxResults {
		scored = scored[:maxResults]
	}
	for i := range scored {
		scored[i].Rank = i + 1
	}
	return scored, nil
}

// score computes the weighted composite over the five indices. The cost
// index is inverted first: a cheaper dealer contributes more.
func score(d domain.Dealer, w Weights) domain.RankingScore {
	invertedCost := 100 - d.CostIndex

	sub := map[string]float64{
		"cost":        w.Cost * invertedCost,
		"quality":     w.Quality * d.QualityIndex,
		"delivery":    w.Delivery * d.DeliveryIndex,
		"reliability": w.Reliability * d.ReliabilityIndex,
		"capacity":    w.Capacity * d.CapacityIndex,
	}

	composite := 0.0
	for _, v := range sub {
		composite += v
	}

	return domain.RankingScore{
		DealerID:         d.ID,
		DealerName:       d.Name,
		CompositeScore:   composite,
		SubScores:        sub,
		TransactionCount: d.TransactionCount,
	}
}
