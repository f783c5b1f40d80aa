// Package features turns resolved trade scenarios into fixed-width numeric
// vectors. The transform is pure: identical scenarios always produce
// identical vectors, and the layout is shared between training and inference.
package features

import (
	"sort"

	"github.com/poweranger/trade-optimizer/internal/domain"
	"github.com/poweranger/trade-optimizer/internal/traderr"
)

// Weights of the composite dealer-quality feature. Declared here so the
// blend is auditable rather than ad hoc.
const (
	compositeQualityWeight     = 0.4
	compositeReliabilityWeight = 0.3
	compositeDeliveryWeight    = 0.2
	compositeCapacityWeight    = 0.1
)

// NeutralOrderMonth substitutes for the seasonal feature when a scenario has
// no order date. Mid-year keeps the model from leaning either direction.
const NeutralOrderMonth = 6.5

// UnknownCategoryCode encodes categorical values absent from the frozen
// encoding tables. Kept distinct from every valid code (which start at 0).
const UnknownCategoryCode = -1.0

// Pipeline holds the frozen categorical encoding tables for one model
// version and derives feature vectors from scenarios.
type Pipeline struct {
	countryEnc  map[int64]float64
	categoryEnc map[int64]float64
}

// NewPipeline freezes encoding tables from the known reference identifiers.
// IDs are sorted so the encoding is stable regardless of input order.
func NewPipeline(countryIDs, categoryIDs []int64) *Pipeline {
	return &Pipeline{
		countryEnc:  encodeSorted(countryIDs),
		categoryEnc: encodeSorted(categoryIDs),
	}
}

// NewPipelineFromEncodings rebuilds a pipeline from persisted tables, so a
// loaded model state reproduces the exact training-time encoding.
func NewPipelineFromEncodings(country, category map[int64]float64) *Pipeline {
	return &Pipeline{
		countryEnc:  copyEnc(country),
		categoryEnc: copyEnc(category),
	}
}

func encodeSorted(ids []int64) map[int64]float64 {
	uniq := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		uniq[id] = struct{}{}
	}
	sorted := make([]int64, 0, len(uniq))
	for id := range uniq {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	enc := make(map[int64]float64, len(sorted))
	for i, id := range sorted {
		enc[id] = float64(i)
	}
	return enc
}

func copyEnc(m map[int64]float64) map[int64]float64 {
	out := make(map[int64]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CountryEncodings exposes the frozen country table for persistence.
func (p *Pipeline) CountryEncodings() map[int64]float64 { return copyEnc(p.countryEnc) }

// CategoryEncodings exposes the frozen category table for persistence.
func (p *Pipeline) CategoryEncodings() map[int64]float64 { return copyEnc(p.categoryEnc) }

// Build derives the feature vector for one scenario.
func (p *Pipeline) Build(s domain.Scenario) (Vector, error) {
	if s.Quantity <= 0 {
		return nil, traderr.InvalidInput("quantity", "must be a positive integer")
	}
	if !s.Mode.Valid() {
		return nil, traderr.InvalidInput("transport_mode", "must be one of sea, air, road, rail")
	}
	if err := s.Dealer.Validate(); err != nil {
		return nil, traderr.InvalidInput("dealer", err.Error())
	}
	if err := s.Country.Validate(); err != nil {
		return nil, traderr.InvalidInput("country", err.Error())
	}

	qty := float64(s.Quantity)

	// Tariff burden: duty rate applied to the full product value.
	tariffBurden := s.Tariff.ImportDutyRate / 100 * s.Product.BaseUnitCost * qty

	// Logistics cost (transport-mode base cost applied per unit weight)
	// relative to the unit cost of the good.
	logisticsRatio := 0.0
	if s.Product.BaseUnitCost > 0 {
		logisticsRatio = s.Route.BaseCostPerKg * s.Product.WeightKg / s.Product.BaseUnitCost
	}

	composite := compositeQualityWeight*s.Dealer.QualityIndex +
		compositeReliabilityWeight*s.Dealer.ReliabilityIndex +
		compositeDeliveryWeight*s.Dealer.DeliveryIndex +
		compositeCapacityWeight*s.Dealer.CapacityIndex

	deliverySpeed := 1 / (1 + s.Route.TransitDays/30)

	month := NeutralOrderMonth
	if !s.OrderDate.IsZero() {
		month = float64(s.OrderDate.Month())
	}

	v := make(Vector, len(featureNames))
	v[featureIndex["quantity"]] = qty
	v[featureIndex["base_unit_cost"]] = s.Product.BaseUnitCost
	v[featureIndex["weight_kg"]] = s.Product.WeightKg
	v[featureIndex["logistics_cost_per_kg"]] = s.Route.BaseCostPerKg
	v[featureIndex["import_duty_rate"]] = s.Tariff.ImportDutyRate
	v[featureIndex["export_duty_rate"]] = s.Tariff.ExportDutyRate
	v[featureIndex["currency_factor"]] = s.Country.CurrencyFactor
	v[featureIndex["dealer_cost_index"]] = s.Dealer.CostIndex
	v[featureIndex["dealer_quality_index"]] = s.Dealer.QualityIndex
	v[featureIndex["dealer_delivery_index"]] = s.Dealer.DeliveryIndex
	v[featureIndex["dealer_reliability_index"]] = s.Dealer.ReliabilityIndex
	v[featureIndex["dealer_capacity_index"]] = s.Dealer.CapacityIndex
	v[featureIndex["dealer_transaction_count"]] = float64(s.Dealer.TransactionCount)
	v[featureIndex["tariff_burden"]] = tariffBurden
	v[featureIndex["logistics_cost_ratio"]] = logisticsRatio
	v[featureIndex["dealer_composite_quality"]] = composite
	v[featureIndex["delivery_speed_score"]] = deliverySpeed
	v[featureIndex["transit_days"]] = s.Route.TransitDays
	v[featureIndex["delay_probability"]] = s.Route.DelayProbability
	v[featureIndex["order_month"]] = month
	v[featureIndex["destination_country_encoded"]] = p.encode(p.countryEnc, s.Country.ID)
	v[featureIndex["product_category_encoded"]] = p.encode(p.categoryEnc, s.Product.CategoryID)
	v[featureIndex["transport_mode_encoded"]] = encodeMode(s.Mode)

	return v, nil
}

func (p *Pipeline) encode(table map[int64]float64, id int64) float64 {
	if code, ok := table[id]; ok {
		return code
	}
	return UnknownCategoryCode
}

func encodeMode(m domain.TransportMode) float64 {
	for i, known := range domain.TransportModes {
		if m == known {
			return float64(i)
		}
	}
	return UnknownCategoryCode
}
