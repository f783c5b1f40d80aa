// Package model trains and serves the two regression targets of the scoring
// engine: profit margin and delivery days. A State bundles everything
// inference needs to reproduce the training-time transform exactly.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/poweranger/trade-optimizer/internal/features"
	"github.com/poweranger/trade-optimizer/internal/traderr"
)

// MinTrainingSamples is the default floor of usable records below which
// training fails with InsufficientData.
const MinTrainingSamples = 30

// Confidence heuristic constants. Support and residual quality contribute
// equally; the extrapolation penalty decays exponentially with how far the
// scenario sits outside observed feature ranges.
const (
	confidenceSupportWeight  = 0.5
	confidenceResidualWeight = 0.5
	extrapolationDecay       = 2.0
	neighborhoodSize         = 5
)

// Sample is one training example: a feature vector plus observed outcomes.
type Sample struct {
	Features     features.Vector
	ProfitMargin float64
	DeliveryDays float64
}

// Config controls a training run.
type Config struct {
	MinTrainingSamples int
	Profit             BoostConfig
	Delivery           BoostConfig
}

// DefaultConfig returns the baseline training configuration.
func DefaultConfig() Config {
	return Config{
		MinTrainingSamples: MinTrainingSamples,
		Profit:             DefaultProfitConfig(),
		Delivery:           DefaultDeliveryConfig(),
	}
}

// State is a trained model: regressors, scaling parameters, frozen encoding
// tables, observed feature ranges, and training metadata.
type State struct {
	Version         string    `json:"model_version"`
	EncodingVersion string    `json:"encoding_version"`
	TrainedAt       time.Time `json:"last_trained_at"`

	FeatureNames []string `json:"feature_names"`
	Scaler       *Scaler  `json:"scaler"`

	Profit   *BoostedModel `json:"profit_model"`
	Delivery *BoostedModel `json:"delivery_model"`

	// Observed raw feature ranges, for the extrapolation penalty.
	FeatureMin []float64 `json:"feature_min"`
	FeatureMax []float64 `json:"feature_max"`

	// Standardized training matrix, for neighborhood support.
	TrainX [][]float64 `json:"train_x"`

	// Training residual spread relative to target spread, per target.
	ProfitResidualRatio   float64 `json:"profit_residual_ratio"`
	DeliveryResidualRatio float64 `json:"delivery_residual_ratio"`

	TrainingSampleCount int `json:"training_sample_count"`

	// Frozen categorical encodings, persisted so a reloaded state rebuilds
	// the exact pipeline it was trained with.
	CountryEncoding  map[int64]float64 `json:"country_encoding"`
	CategoryEncoding map[int64]float64 `json:"category_encoding"`
}

// Train fits both regressors on the usable samples.
func Train(samples []Sample, cfg Config) (*State, error) {
	minSamples := cfg.MinTrainingSamples
	if minSamples <= 0 {
		minSamples = MinTrainingSamples
	}
	if len(samples) < minSamples {
		return nil, traderr.InsufficientData(len(samples), minSamples)
	}

	width := features.Count()
	raw := make([][]float64, len(samples))
	profit := make([]float64, len(samples))
	delivery := make([]float64, len(samples))
	for i, s := range samples {
		if len(s.Features) != width {
			return nil, traderr.InvalidInput("features", fmt.Sprintf("vector width %d, expected %d", len(s.Features), width))
		}
		raw[i] = s.Features
		profit[i] = s.ProfitMargin
		delivery[i] = s.DeliveryDays
	}

	scaler := FitScaler(raw)
	scaled := scaler.TransformAll(raw)

	st := &State{
		Version:             uuid.NewString(),
		EncodingVersion:     features.EncodingVersion,
		TrainedAt:           time.Now().UTC(),
		FeatureNames:        features.Names(),
		Scaler:              scaler,
		FeatureMin:          columnMin(raw),
		FeatureMax:          columnMax(raw),
		TrainX:              scaled,
		TrainingSampleCount: len(samples),
	}

	st.Profit = FitBoosted(scaled, profit, cfg.Profit)
	st.Delivery = FitBoosted(scaled, delivery, cfg.Delivery)
	st.ProfitResidualRatio = residualRatio(st.Profit, scaled, profit)
	st.DeliveryResidualRatio = residualRatio(st.Delivery, scaled, delivery)

	return st, nil
}

func residualRatio(m *BoostedModel, rows [][]float64, targets []float64) float64 {
	residStd := stat.StdDev(m.Residuals(rows, targets), nil)
	targetStd := stat.StdDev(targets, nil)
	if targetStd == 0 {
		return 0
	}
	return residStd / targetStd
}

func columnMin(rows [][]float64) []float64 {
	return columnFold(rows, math.Inf(1), math.Min)
}

func columnMax(rows [][]float64) []float64 {
	return columnFold(rows, math.Inf(-1), math.Max)
}

func columnFold(rows [][]float64, init float64, fold func(a, b float64) float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	out := make([]float64, len(rows[0]))
	for j := range out {
		out[j] = init
	}
	for _, row := range rows {
		for j, v := range row {
			out[j] = fold(out[j], v)
		}
	}
	return out
}

// Predict returns point estimates for both targets. The vector must match
// the trained layout exactly; a width mismatch is a feature-alignment bug
// surfaced as an error rather than a silent misprediction.
func (st *State) Predict(fv features.Vector) (profitMargin, deliveryDays float64, err error) {
	if len(fv) != len(st.FeatureNames) {
		return 0, 0, traderr.InvalidInput("features", fmt.Sprintf("vector width %d, model expects %d", len(fv), len(st.FeatureNames)))
	}
	row := st.Scaler.Transform(fv)
	deliveryDays = st.Delivery.Predict(row)
	if deliveryDays < 1 {
		deliveryDays = 1
	}
	return st.Profit.Predict(row), deliveryDays, nil
}

// Confidence estimates how much to trust a prediction for fv, in [0,1].
// It combines neighborhood support in the training set with training
// residual quality, then applies an extrapolation penalty that strictly
// shrinks as the scenario leaves observed feature ranges.
func (st *State) Confidence(fv features.Vector) float64 {
	if len(fv) != len(st.FeatureNames) || len(st.TrainX) == 0 {
		return 0
	}

	row := st.Scaler.Transform(fv)
	support := st.neighborhoodSupport(row)
	residTerm := clamp01(1 - (st.ProfitResidualRatio+st.DeliveryResidualRatio)/2)

	base := confidenceSupportWeight*support + confidenceResidualWeight*residTerm
	return clamp01(base * st.extrapolationPenalty(fv))
}

func (st *State) neighborhoodSupport(row []float64) float64 {
	dists := make([]float64, len(st.TrainX))
	for i, tr := range st.TrainX {
		dists[i] = euclidean(row, tr)
	}
	sort.Float64s(dists)

	k := neighborhoodSize
	if k > len(dists) {
		k = len(dists)
	}
	sum := 0.0
	for i := 0; i < k; i++ {
		sum += dists[i]
	}
	meanDist := sum / float64(k)
	// Normalize by vector width so support is comparable across layouts.
	return 1 / (1 + meanDist/math.Sqrt(float64(len(row))))
}

func (st *State) extrapolationPenalty(fv features.Vector) float64 {
	excess := 0.0
	for j, v := range fv {
		span := st.FeatureMax[j] - st.FeatureMin[j]
		if span <= 0 {
			span = 1
		}
		switch {
		case v > st.FeatureMax[j]:
			excess += (v - st.FeatureMax[j]) / span
		case v < st.FeatureMin[j]:
			excess += (st.FeatureMin[j] - v) / span
		}
	}
	return math.Exp(-extrapolationDecay * excess)
}

// Importances maps feature names to normalized gain per target.
func (st *State) Importances() map[string]map[string]float64 {
	out := map[string]map[string]float64{
		"profit_model":   gainsByName(st.FeatureNames, st.Profit),
		"delivery_model": gainsByName(st.FeatureNames, st.Delivery),
	}
	return out
}

func gainsByName(names []string, m *BoostedModel) map[string]float64 {
	out := make(map[string]float64, len(names))
	for i, name := range names {
		if i < len(m.Gains) {
			out[name] = m.Gains[i]
		}
	}
	return out
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
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

const stateFileName = "model_state.json"

// Save writes the state to dataDir as indented JSON.
func (st *State) Save(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	file, err := os.Create(filepath.Join(dataDir, stateFileName))
	if err != nil {
		return fmt.Errorf("failed to create model state file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		return fmt.Errorf("failed to encode model state: %w", err)
	}
	return nil
}

// Load reads a previously saved state. A missing file returns (nil, nil) so
// callers fall back to lazy training.
func Load(dataDir string) (*State, error) {
	path := filepath.Join(dataDir, stateFileName)
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open model state file: %w", err)
	}
	defer file.Close()

	var st State
	if err := json.NewDecoder(file).Decode(&st); err != nil {
		return nil, fmt.Errorf("failed to decode model state: %w", err)
	}
	if st.EncodingVersion != features.EncodingVersion {
		// Stale layout; force retraining instead of misaligned inference.
		return nil, nil
	}
	return &st, nil
}
