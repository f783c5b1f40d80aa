package features

// EncodingVersion tags the feature layout. The name list, its order, and the
// categorical encoding tables are frozen per version; training and inference
// must agree on it.
const EncodingVersion = "v1"

// featureNames is the fixed, ordered feature layout. Appending is a version
// bump; reordering is forbidden.
var featureNames = []string{
	"quantity",
	"base_unit_cost",
	"weight_kg",
	"logistics_cost_per_kg",
	"import_duty_rate",
	"export_duty_rate",
	"currency_factor",
	"dealer_cost_index",
	"dealer_quality_index",
	"dealer_delivery_index",
	"dealer_reliability_index",
	"dealer_capacity_index",
	"dealer_transaction_count",
	"tariff_burden",
	"logistics_cost_ratio",
	"dealer_composite_quality",
	"delivery_speed_score",
	"transit_days",
	"delay_probability",
	"order_month",
	"destination_country_encoded",
	"product_category_encoded",
	"transport_mode_encoded",
}

var featureIndex = func() map[string]int {
	idx := make(map[string]int, len(featureNames))
	for i, n := range featureNames {
		idx[n] = i
	}
	return idx
}()

// Names returns a copy of the ordered feature name list.
func Names() []string {
	out := make([]string, len(featureNames))
	copy(out, featureNames)
	return out
}

// Count is the fixed vector width.
func Count() int { return len(featureNames) }

// Vector is one scenario's feature values, aligned with Names().
type Vector []float64

// Get looks a feature up by name.
func (v Vector) Get(name string) (float64, bool) {
	i, ok := featureIndex[name]
	if !ok || i >= len(v) {
		return 0, false
	}
	return v[i], true
}

// MustGet is Get for features known to exist in the layout.
func (v Vector) MustGet(name string) float64 {
	val, ok := v.Get(name)
	if !ok {
		panic("features: unknown feature " + name)
	}
	return val
}

// Clone returns an independent copy.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}
