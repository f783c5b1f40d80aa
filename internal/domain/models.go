package domain

import (
	"fmt"
	"time"
)

// TransportMode is the fixed set of shipping modes the engine understands.
type TransportMode string

const (
	TransportSea  TransportMode = "sea"
	TransportAir  TransportMode = "air"
	TransportRoad TransportMode = "road"
	TransportRail TransportMode = "rail"
)

// TransportModes lists all valid modes in encoding order. The order is part
// of the feature encoding contract and must not change within a model version.
var TransportModes = []TransportMode{TransportSea, TransportAir, TransportRoad, TransportRail}

// ParseTransportMode validates a raw mode string.
func ParseTransportMode(s string) (TransportMode, bool) {
	m := TransportMode(s)
	return m, m.Valid()
}

func (m TransportMode) Valid() bool {
	switch m {
	case TransportSea, TransportAir, TransportRoad, TransportRail:
		return true
	}
	return false
}

// Dealer is a supplier with normalized performance indices in [0,100].
type Dealer struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	CountryID         int64   `json:"country_id"`
	ProductCategoryID int64   `json:"product_category_id"`
	CostIndex         float64 `json:"cost_index"`
	QualityIndex      float64 `json:"quality_index"`
	DeliveryIndex     float64 `json:"delivery_index"`
	ReliabilityIndex  float64 `json:"reliability_index"`
	CapacityIndex     float64 `json:"capacity_index"`
	TransactionCount  int     `json:"transaction_count"`
	// Markets lists destination country IDs the dealer has shipped to.
	Markets []int64 `json:"markets,omitempty"`
}

// Validate checks the index invariants.
func (d Dealer) Validate() error {
	indices := map[string]float64{
		"cost_index":        d.CostIndex,
		"quality_index":     d.QualityIndex,
		"delivery_index":    d.DeliveryIndex,
		"reliability_index": d.ReliabilityIndex,
		"capacity_index":    d.CapacityIndex,
	}
	for name, v := range indices {
		if v < 0 || v > 100 {
			return fmt.Errorf("dealer %d: %s %.2f outside [0,100]", d.ID, name, v)
		}
	}
	return nil
}

// ServesMarket reports whether the dealer has history with a destination.
func (d Dealer) ServesMarket(countryID int64) bool {
	for _, id := range d.Markets {
		if id == countryID {
			return true
		}
	}
	return false
}

// Country is a destination market.
type Country struct {
	ID             int64                     `json:"id"`
	Name           string                    `json:"name"`
	Code           string                    `json:"code"`
	TariffRate     float64                   `json:"tariff_rate"`
	TaxRate        float64                   `json:"tax_rate"`
	TransitDays    map[TransportMode]float64 `json:"transit_days"`
	CurrencyFactor float64                   `json:"currency_factor"`
}

func (c Country) Validate() error {
	if c.TariffRate < 0 {
		return fmt.Errorf("country %d: negative tariff rate %.2f", c.ID, c.TariffRate)
	}
	if c.TaxRate < 0 {
		return fmt.Errorf("country %d: negative tax rate %.2f", c.ID, c.TaxRate)
	}
	return nil
}

// Product is a tradeable good.
type Product struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	CategoryID   int64   `json:"category_id"`
	BaseUnitCost float64 `json:"base_unit_cost"`
	WeightKg     float64 `json:"weight_kg"`
}

// ProductCategory summarizes one catalog category.
type ProductCategory struct {
	ID           int64 `json:"id"`
	ProductCount int   `json:"product_count"`
}

// Tariff holds duty rates for a (country, product category) pair.
type Tariff struct {
	CountryID         int64   `json:"country_id"`
	ProductCategoryID int64   `json:"product_category_id"`
	ImportDutyRate    float64 `json:"import_duty_rate"`
	ExportDutyRate    float64 `json:"export_duty_rate"`
	GSTRate           float64 `json:"gst_rate"`
}

// Default tariff rates applied when no tariff row exists for the pair.
const (
	DefaultImportDutyRate = 5.0
	DefaultExportDutyRate = 0.0
)

// DefaultTariff returns the documented fallback for an unpriced pair.
func DefaultTariff(countryID, categoryID int64) Tariff {
	return Tariff{
		CountryID:         countryID,
		ProductCategoryID: categoryID,
		ImportDutyRate:    DefaultImportDutyRate,
		ExportDutyRate:    DefaultExportDutyRate,
	}
}

// TradeRoute describes logistics for a (destination, transport mode) pair.
type TradeRoute struct {
	DestinationCountryID int64         `json:"destination_country_id"`
	Mode                 TransportMode `json:"transport_mode"`
	BaseCostPerKg        float64       `json:"base_cost_per_kg"`
	TransitDays          float64       `json:"transit_days"`
	DelayProbability     float64       `json:"delay_probability"`
}

// Default route values used when no route row exists.
const (
	DefaultRouteCostPerKg   = 2.0
	DefaultRouteTransitDays = 30.0
	DefaultRouteDelayProb   = 0.1
)

// DefaultRoute returns the documented fallback route.
func DefaultRoute(countryID int64, mode TransportMode) TradeRoute {
	return TradeRoute{
		DestinationCountryID: countryID,
		Mode:                 mode,
		BaseCostPerKg:        DefaultRouteCostPerKg,
		TransitDays:          DefaultRouteTransitDays,
		DelayProbability:     DefaultRouteDelayProb,
	}
}

// Transaction is a historical trade outcome. ProfitMargin and DeliveryDays
// are nullable: records missing either are excluded from training, never
// imputed with zero.
type Transaction struct {
	ID                   int64         `json:"id"`
	DealerID             int64         `json:"dealer_id"`
	ProductID            int64         `json:"product_id"`
	DestinationCountryID int64         `json:"destination_country_id"`
	Quantity             int           `json:"quantity"`
	Mode                 TransportMode `json:"transport_mode"`
	ProfitMargin         *float64      `json:"profit_margin,omitempty"`
	DeliveryDays         *float64      `json:"delivery_days,omitempty"`
	OrderDate            time.Time     `json:"order_date"`
	Status               string        `json:"status"`
}

// Usable reports whether the record carries both training targets.
func (t Transaction) Usable() bool {
	return t.ProfitMargin != nil && t.DeliveryDays != nil
}

// Scenario is one (dealer, product, country, quantity, mode) scoring request
// with its resolved reference data. OrderDate may be zero for ad hoc
// scenarios; feature engineering substitutes a neutral seasonal value.
type Scenario struct {
	Dealer    Dealer
	Product   Product
	Country   Country
	Tariff    Tariff
	Route     TradeRoute
	Quantity  int
	Mode      TransportMode
	OrderDate time.Time
}

// RiskTier is the coarse classification derived from a RiskProfile.
type RiskTier string

const (
	RiskTierLow     RiskTier = "Low"
	RiskTierMedium  RiskTier = "Medium"
	RiskTierHigh    RiskTier = "High"
	RiskTierUnknown RiskTier = "Unknown"
)

// RiskProfile holds per-scenario risk factors, each in [0,1].
type RiskProfile struct {
	DeliveryRisk    float64 `json:"delivery_risk"`
	QualityRisk     float64 `json:"quality_risk"`
	CostRisk        float64 `json:"cost_risk"`
	ReliabilityRisk float64 `json:"reliability_risk"`
}

// Mean is the unweighted average of the four factors.
func (r RiskProfile) Mean() float64 {
	return (r.DeliveryRisk + r.QualityRisk + r.CostRisk + r.ReliabilityRisk) / 4
}

// PredictionResult is the response of a trade scoring request.
type PredictionResult struct {
	PredictedProfitMargin float64     `json:"predicted_profit_margin"`
	PredictedDeliveryDays int         `json:"predicted_delivery_days"`
	ConfidenceScore       float64     `json:"confidence_score"`
	Recommendation        string      `json:"recommendation"`
	TotalCostEstimate     float64     `json:"total_cost_estimate"`
	RiskFactors           RiskProfile `json:"risk_factors"`
	RiskTier              RiskTier    `json:"risk_tier"`
}

// RankingScore is one ranked dealer with its per-criterion contributions.
type RankingScore struct {
	DealerID         int64              `json:"dealer_id"`
	DealerName       string             `json:"dealer_name"`
	CompositeScore   float64            `json:"composite_score"`
	SubScores        map[string]float64 `json:"sub_scores"`
	TransactionCount int                `json:"transaction_count"`
	Rank             int                `json:"rank"`
}

// OpportunityScore is the risk-adjusted assessment of one destination market.
type OpportunityScore struct {
	CountryID         int64    `json:"country_id"`
	CountryName       string   `json:"country_name"`
	CompositeScore    float64  `json:"opportunity_score"`
	MeanProfitMargin  float64  `json:"avg_profit_margin"`
	ProfitConsistency float64  `json:"profit_consistency"`
	OnTimeRate        float64  `json:"on_time_delivery_rate"`
	TariffRate        float64  `json:"tariff_rate"`
	TransactionCount  int      `json:"transaction_count"`
	RiskTier          RiskTier `json:"risk_tier"`
}

// ModelDiagnostics describes the currently cached model state.
type ModelDiagnostics struct {
	ModelVersion        string                        `json:"model_version"`
	FeatureNames        []string                      `json:"feature_names"`
	FeatureImportances  map[string]map[string]float64 `json:"feature_importances"`
	TrainingSampleCount int                           `json:"training_sample_count"`
	LastTrainedAt       time.Time                     `json:"last_trained_at"`
}
