package monitoring

import (
	"sync/atomic"
	"time"
)

// Metrics holds application counters. All increments are atomic; the
// snapshot is advisory and not a consistent point-in-time view.
type Metrics struct {
	RequestCount     int64
	ErrorCount       int64
	PredictionCount  int64
	RankingCount     int64
	AnalysisCount    int64
	TrainingRuns     int64
	TrainingFailures int64
	ModelCacheHits   int64
	ModelCacheMisses int64
	StartTime        time.Time
}

// NewMetrics creates a metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

func (m *Metrics) IncrementRequest()         { atomic.AddInt64(&m.RequestCount, 1) }
func (m *Metrics) IncrementError()           { atomic.AddInt64(&m.ErrorCount, 1) }
func (m *Metrics) IncrementPrediction()      { atomic.AddInt64(&m.PredictionCount, 1) }
func (m *Metrics) IncrementRanking()         { atomic.AddInt64(&m.RankingCount, 1) }
func (m *Metrics) IncrementAnalysis()        { atomic.AddInt64(&m.AnalysisCount, 1) }
func (m *Metrics) IncrementTrainingRun()     { atomic.AddInt64(&m.TrainingRuns, 1) }
func (m *Metrics) IncrementTrainingFailure() { atomic.AddInt64(&m.TrainingFailures, 1) }
func (m *Metrics) IncrementModelCacheHit()   { atomic.AddInt64(&m.ModelCacheHits, 1) }
func (m *Metrics) IncrementModelCacheMiss()  { atomic.AddInt64(&m.ModelCacheMisses, 1) }

// Snapshot returns the current counter values for the metrics endpoint.
func (m *Metrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"request_count":      atomic.LoadInt64(&m.RequestCount),
		"error_count":        atomic.LoadInt64(&m.ErrorCount),
		"prediction_count":   atomic.LoadInt64(&m.PredictionCount),
		"ranking_count":      atomic.LoadInt64(&m.RankingCount),
		"analysis_count":     atomic.LoadInt64(&m.AnalysisCount),
		"training_runs":      atomic.LoadInt64(&m.TrainingRuns),
		"training_failures":  atomic.LoadInt64(&m.TrainingFailures),
		"model_cache_hits":   atomic.LoadInt64(&m.ModelCacheHits),
		"model_cache_misses": atomic.LoadInt64(&m.ModelCacheMisses),
		"uptime_seconds":     time.Since(m.StartTime).Seconds(),
	}
}
