package model

import "gonum.org/v1/gonum/floats"

// BoostConfig sizes one gradient-boosted regressor. Defaults are scaled for
// the hundreds-to-low-thousands row datasets the engine trains on.
type BoostConfig struct {
	Trees        int     `json:"trees"`
	MaxDepth     int     `json:"max_depth"`
	LearningRate float64 `json:"learning_rate"`
	MinLeaf      int     `json:"min_leaf"`
}

// DefaultProfitConfig sizes the profit-margin regressor.
func DefaultProfitConfig() BoostConfig {
	return BoostConfig{Trees: 60, MaxDepth: 3, LearningRate: 0.1, MinLeaf: 3}
}

// DefaultDeliveryConfig sizes the delivery-days regressor.
func DefaultDeliveryConfig() BoostConfig {
	return BoostConfig{Trees: 40, MaxDepth: 3, LearningRate: 0.1, MinLeaf: 3}
}

// BoostedModel is an additive ensemble of shallow regression trees fitted on
// successive residuals with squared loss.
type BoostedModel struct {
	Base         float64     `json:"base"`
	LearningRate float64     `json:"learning_rate"`
	Trees        []*TreeNode `json:"trees"`
	// Gains is the accumulated squared-error reduction per feature across
	// all trees, normalized to sum to 1.
	Gains []float64 `json:"gains"`
}

// FitBoosted trains the ensemble. rows must be standardized upstream.
func FitBoosted(rows [][]float64, targets []float64, cfg BoostConfig) *BoostedModel {
	n := len(rows)
	width := 0
	if n > 0 {
		width = len(rows[0])
	}

	m := &BoostedModel{
		Base:         mean(targets),
		LearningRate: cfg.LearningRate,
		Gains:        make([]float64, width),
	}

	idx := make([]int, n)
	residuals := make([]float64, n)
	for i := range rows {
		idx[i] = i
		residuals[i] = targets[i] - m.Base
	}

	tcfg := treeConfig{maxDepth: cfg.MaxDepth, minLeaf: cfg.MinLeaf}
	for t := 0; t < cfg.Trees; t++ {
		tree := fitTree(rows, residuals, idx, tcfg, 0, m.Gains)
		m.Trees = append(m.Trees, tree)
		for i, row := range rows {
			residuals[i] -= cfg.LearningRate * tree.Predict(row)
		}
	}

	if total := floats.Sum(m.Gains); total > 0 {
		floats.Scale(1/total, m.Gains)
	}
	return m
}

// Predict evaluates the ensemble for one standardized row.
func (m *BoostedModel) Predict(row []float64) float64 {
	out := m.Base
	for _, tree := range m.Trees {
		out += m.LearningRate * tree.Predict(row)
	}
	return out
}

// Residuals returns target minus prediction for each training row.
func (m *BoostedModel) Residuals(rows [][]float64, targets []float64) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = targets[i] - m.Predict(row)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return floats.Sum(xs) / float64(len(xs))
}
