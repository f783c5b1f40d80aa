// Package engine orchestrates the scoring pipeline: feature engineering,
// lazy model training behind a single-writer cache, risk assessment, and the
// ranking and market analyses.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/poweranger/trade-optimizer/internal/domain"
	"github.com/poweranger/trade-optimizer/internal/features"
	"github.com/poweranger/trade-optimizer/internal/market"
	"github.com/poweranger/trade-optimizer/internal/model"
	"github.com/poweranger/trade-optimizer/internal/monitoring"
	"github.com/poweranger/trade-optimizer/internal/ranking"
	"github.com/poweranger/trade-optimizer/internal/risk"
	"github.com/poweranger/trade-optimizer/internal/traderr"
)

// Store is the read contract the engine requires from the data layer. The
// engine never mutates reference data and never validates business rules on
// behalf of the store.
type Store interface {
	Dealer(id int64) (domain.Dealer, error)
	Product(id int64) (domain.Product, error)
	Country(id int64) (domain.Country, error)
	Tariff(countryID, categoryID int64) (domain.Tariff, bool, error)
	Route(countryID int64, mode domain.TransportMode) (domain.TradeRoute, bool, error)

	Dealers() ([]domain.Dealer, error)
	Countries() ([]domain.Country, error)
	Transactions(limit int) ([]domain.Transaction, error)
	DeliveryDays(countryID int64, mode domain.TransportMode) ([]float64, error)
	CountryIDs() ([]int64, error)
	CategoryIDs() ([]int64, error)
}

// Cost estimate constants. The estimate is deterministic arithmetic, not a
// model output.
const (
	// HandlingCharge is the flat per-shipment charge added to every
	// cost estimate.
	HandlingCharge = 1000.0
)

// Recommendation tags and their named thresholds.
const (
	TagRecommended    = "Recommended"
	TagConditional    = "Conditional"
	TagNotRecommended = "Not Recommended"

	RecommendedMarginThreshold    = 15.0
	NotRecommendedMarginThreshold = 5.0
)

// riskConfidenceDamping scales how much the mean risk factor discounts the
// model confidence.
const riskConfidenceDamping = 0.25

// Config controls the engine's shared-state behavior.
type Config struct {
	// TrainingTimeout bounds how long a request waits on an in-flight
	// training run before failing with ModelTrainingTimeout.
	TrainingTimeout time.Duration
	// TransactionLimit bounds the bulk historical read per training pass.
	TransactionLimit int
	// ModelDir persists trained state between restarts when non-empty.
	ModelDir string
	Model    model.Config
}

// DefaultConfig returns the baseline engine configuration.
func DefaultConfig() Config {
	return Config{
		TrainingTimeout:  30 * time.Second,
		TransactionLimit: 5000,
		Model:            model.DefaultConfig(),
	}
}

// PredictionRequest is one trade scoring request.
type PredictionRequest struct {
	DealerID             int64  `json:"dealer_id"`
	ProductID            int64  `json:"product_id"`
	DestinationCountryID int64  `json:"destination_country_id"`
	Quantity             int    `json:"quantity"`
	TransportMode        string `json:"transport_mode"`
}

// cached pairs a trained state with the pipeline that produced its feature
// layout. They are cached and invalidated together.
type cached struct {
	state    *model.State
	pipeline *features.Pipeline
}

// Engine serves predictions, rankings, and market analyses. The model cache
// is the only shared mutable state; it follows a single-writer discipline
// with at most one in-flight training run.
type Engine struct {
	store   Store
	cfg     Config
	log     *monitoring.Logger
	metrics *monitoring.Metrics

	mu       sync.Mutex
	cur      *cached
	gen      uint64
	inflight chan struct{}
	trainErr error
}

// New creates an engine. If cfg.ModelDir holds a persisted state with the
// current encoding version, it is loaded so the first request skips training.
func New(store Store, cfg Config, log *monitoring.Logger, metrics *monitoring.Metrics) *Engine {
	e := &Engine{store: store, cfg: cfg, log: log, metrics: metrics}

	if cfg.ModelDir != "" {
		if st, err := model.Load(cfg.ModelDir); err != nil {
			log.Warn("ignoring unreadable model state", "error", err.Error())
		} else if st != nil {
			e.cur = &cached{
				state:    st,
				pipeline: features.NewPipelineFromEncodings(st.CountryEncoding, st.CategoryEncoding),
			}
			log.Info("loaded persisted model state",
				"model_version", st.Version,
				"training_sample_count", st.TrainingSampleCount)
		}
	}
	return e
}

// Predict scores one trade scenario.
func (e *Engine) Predict(ctx context.Context, req PredictionRequest) (*domain.PredictionResult, error) {
	start := time.Now()

	mode, ok := domain.ParseTransportMode(req.TransportMode)
	if !ok {
		return nil, traderr.InvalidInput("transport_mode", "must be one of sea, air, road, rail")
	}
	if req.Quantity <= 0 {
		return nil, traderr.InvalidInput("quantity", "must be a positive integer")
	}

	scenario, err := e.resolveScenario(req, mode)
	if err != nil {
		return nil, err
	}

	cur, err := e.currentModel(ctx)
	if err != nil {
		return nil, err
	}

	fv, err := cur.pipeline.Build(scenario)
	if err != nil {
		return nil, err
	}

	margin, days, err := cur.state.Predict(fv)
	if err != nil {
		return nil, err
	}

	deliveryHistory, err := e.store.DeliveryDays(scenario.Country.ID, mode)
	if err != nil {
		return nil, err
	}
	profile := risk.Assess(fv, risk.History{DeliveryDays: deliveryHistory})
	tier := risk.TierOf(profile)

	confidence := cur.state.Confidence(fv) * (1 - riskConfidenceDamping*profile.Mean())
	if confidence < 0 {
		confidence = 0
	}

	result := &domain.PredictionResult{
		PredictedProfitMargin: margin,
		PredictedDeliveryDays: int(days + 0.5),
		ConfidenceScore:       confidence,
		Recommendation:        recommend(margin, tier),
		TotalCostEstimate:     costEstimate(scenario),
		RiskFactors:           profile,
		RiskTier:              tier,
	}

	e.metrics.IncrementPrediction()
	e.log.PredictionLogger(req.DealerID, req.ProductID, req.DestinationCountryID,
		margin, confidence, time.Since(start))
	return result, nil
}

// RankDealers scores the dealer set with the multi-criteria composite.
func (e *Engine) RankDealers(filters ranking.Filters, weights ranking.Weights, maxResults int) ([]domain.RankingScore, error) {
	dealers, err := e.store.Dealers()
	if err != nil {
		return nil, err
	}
	scores, err := ranking.Rank(dealers, filters, weights, maxResults)
	if err != nil {
		return nil, err
	}
	e.metrics.IncrementRanking()
	return scores, nil
}

// AnalyzeCountries aggregates historical outcomes per destination market.
func (e *Engine) AnalyzeCountries() ([]domain.OpportunityScore, error) {
	countries, err := e.store.Countries()
	if err != nil {
		return nil, err
	}
	txs, err := e.store.Transactions(e.cfg.TransactionLimit)
	if err != nil {
		return nil, err
	}
	scores, err := market.Analyze(countries, txs, market.DefaultWeights())
	if err != nil {
		return nil, err
	}
	e.metrics.IncrementAnalysis()
	return scores, nil
}

// Diagnostics reports the cached model state. It never triggers training.
func (e *Engine) Diagnostics() (*domain.ModelDiagnostics, error) {
	e.mu.Lock()
	cur := e.cur
	e.mu.Unlock()

	if cur == nil {
		return nil, traderr.ModelNotTrained(nil)
	}
	st := cur.state
	return &domain.ModelDiagnostics{
		ModelVersion:        st.Version,
		FeatureNames:        st.FeatureNames,
		FeatureImportances:  st.Importances(),
		TrainingSampleCount: st.TrainingSampleCount,
		LastTrainedAt:       st.TrainedAt,
	}, nil
}

// Retrain synchronously replaces the cached model state. It participates in
// the same single-flight discipline as lazy training.
func (e *Engine) Retrain(ctx context.Context) (*domain.ModelDiagnostics, error) {
	e.Invalidate()
	if _, err := e.currentModel(ctx); err != nil {
		return nil, err
	}
	return e.Diagnostics()
}

// Invalidate drops the cached model state and advances the cache generation
// so a training run already in flight cannot publish a state that excludes
// the newly ingested data. Wired to the store's ingestion signal.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.cur = nil
	e.gen++
	e.mu.Unlock()
}

// currentModel returns the cached model, triggering at most one lazy
// training run. Concurrent callers wait on the in-flight run bounded by the
// training timeout. A run whose generation went stale mid-flight is
// discarded, and the waiters train again over the fresh data.
func (e *Engine) currentModel(ctx context.Context) (*cached, error) {
	timeout := e.cfg.TrainingTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		e.mu.Lock()
		if e.cur != nil {
			cur := e.cur
			e.mu.Unlock()
			e.metrics.IncrementModelCacheHit()
			return cur, nil
		}
		e.metrics.IncrementModelCacheMiss()

		if e.inflight == nil {
			done := make(chan struct{})
			e.inflight = done
			e.trainErr = nil
			go e.runTraining(e.gen, done)
		}
		done := e.inflight
		e.mu.Unlock()

		select {
		case <-done:
		case <-timer.C:
			return nil, traderr.ModelTrainingTimeout(timeout)
		case <-ctx.Done():
			return nil, traderr.ModelTrainingTimeout(timeout)
		}

		e.mu.Lock()
		if e.trainErr != nil {
			err := e.trainErr
			e.mu.Unlock()
			return nil, traderr.ModelNotTrained(err)
		}
		e.mu.Unlock()
		// cur stays nil when the run was discarded after an ingestion
		// signal; loop and retrain, still bounded by the timer.
	}
}

// runTraining performs one training pass and publishes the result unless the
// cache generation moved while it ran. Always closes done so waiters are
// released even on failure.
func (e *Engine) runTraining(gen uint64, done chan struct{}) {
	start := time.Now()
	e.metrics.IncrementTrainingRun()

	cur, err := e.train()

	e.mu.Lock()
	stale := e.gen != gen
	e.mu.Unlock()

	// Persist before publishing so a restart after a served request always
	// finds the state on disk.
	if err == nil && !stale && e.cfg.ModelDir != "" {
		if saveErr := cur.state.Save(e.cfg.ModelDir); saveErr != nil {
			e.log.Warn("failed to persist model state", "error", saveErr.Error())
		}
	}

	e.mu.Lock()
	switch {
	case err != nil:
		e.trainErr = err
		e.metrics.IncrementTrainingFailure()
	case e.gen != gen:
		// An ingestion signal landed mid-run; discard so the next pass
		// trains over the new data.
	default:
		e.cur = cur
		e.trainErr = nil
	}
	e.inflight = nil
	e.mu.Unlock()
	close(done)

	if err != nil {
		e.log.TrainingLogger("", 0, time.Since(start), err)
		return
	}
	e.log.TrainingLogger(cur.state.Version, cur.state.TrainingSampleCount, time.Since(start), nil)
}

// train assembles the training set from historical transactions and fits a
// fresh model state with a pipeline frozen over the current reference data.
func (e *Engine) train() (*cached, error) {
	countryIDs, err := e.store.CountryIDs()
	if err != nil {
		return nil, err
	}
	categoryIDs, err := e.store.CategoryIDs()
	if err != nil {
		return nil, err
	}
	pipeline := features.NewPipeline(countryIDs, categoryIDs)

	txs, err := e.store.Transactions(e.cfg.TransactionLimit)
	if err != nil {
		return nil, err
	}

	dealers, err := e.dealerIndex()
	if err != nil {
		return nil, err
	}
	countries, err := e.countryIndex()
	if err != nil {
		return nil, err
	}

	samples := make([]model.Sample, 0, len(txs))
	for _, tx := range txs {
		if !tx.Usable() {
			continue
		}
		dealer, ok := dealers[tx.DealerID]
		if !ok {
			continue
		}
		country, ok := countries[tx.DestinationCountryID]
		if !ok {
			continue
		}
		product, err := e.store.Product(tx.ProductID)
		if err != nil {
			if traderr.IsCode(err, traderr.CodeNotFound) {
				continue
			}
			return nil, err
		}

		scenario, err := e.buildScenario(dealer, product, country, tx.Quantity, tx.Mode, tx.OrderDate)
		if err != nil {
			continue
		}
		fv, err := pipeline.Build(scenario)
		if err != nil {
			continue
		}
		samples = append(samples, model.Sample{
			Features:     fv,
			ProfitMargin: *tx.ProfitMargin,
			DeliveryDays: *tx.DeliveryDays,
		})
	}

	st, err := model.Train(samples, e.cfg.Model)
	if err != nil {
		return nil, err
	}
	st.CountryEncoding = pipeline.CountryEncodings()
	st.CategoryEncoding = pipeline.CategoryEncodings()

	return &cached{state: st, pipeline: pipeline}, nil
}

func (e *Engine) dealerIndex() (map[int64]domain.Dealer, error) {
	dealers, err := e.store.Dealers()
	if err != nil {
		return nil, err
	}
	idx := make(map[int64]domain.Dealer, len(dealers))
	for _, d := range dealers {
		idx[d.ID] = d
	}
	return idx, nil
}

func (e *Engine) countryIndex() (map[int64]domain.Country, error) {
	countries, err := e.store.Countries()
	if err != nil {
		return nil, err
	}
	idx := make(map[int64]domain.Country, len(countries))
	for _, c := range countries {
		idx[c.ID] = c
	}
	return idx, nil
}

func (e *Engine) resolveScenario(req PredictionRequest, mode domain.TransportMode) (domain.Scenario, error) {
	dealer, err := e.store.Dealer(req.DealerID)
	if err != nil {
		return domain.Scenario{}, err
	}
	product, err := e.store.Product(req.ProductID)
	if err != nil {
		return domain.Scenario{}, err
	}
	country, err := e.store.Country(req.DestinationCountryID)
	if err != nil {
		return domain.Scenario{}, err
	}
	return e.buildScenario(dealer, product, country, req.Quantity, mode, time.Time{})
}

func (e *Engine) buildScenario(dealer domain.Dealer, product domain.Product, country domain.Country,
	quantity int, mode domain.TransportMode, orderDate time.Time) (domain.Scenario, error) {

	tariff, found, err := e.store.Tariff(country.ID, product.CategoryID)
	if err != nil {
		return domain.Scenario{}, err
	}
	if !found {
		tariff = domain.DefaultTariff(country.ID, product.CategoryID)
	}

	route, found, err := e.store.Route(country.ID, mode)
	if err != nil {
		return domain.Scenario{}, err
	}
	if !found {
		route = domain.DefaultRoute(country.ID, mode)
	}

	return domain.Scenario{
		Dealer:    dealer,
		Product:   product,
		Country:   country,
		Tariff:    tariff,
		Route:     route,
		Quantity:  quantity,
		Mode:      mode,
		OrderDate: orderDate,
	}, nil
}

// costEstimate is deterministic arithmetic over product value, logistics,
// and tariffs, plus the flat handling charge.
func costEstimate(s domain.Scenario) float64 {
	qty := float64(s.Quantity)
	productCost := s.Product.BaseUnitCost * qty
	logisticsCost := s.Route.BaseCostPerKg * s.Product.WeightKg * qty
	tariffCost := productCost * s.Tariff.ImportDutyRate / 100
	return productCost + logisticsCost + tariffCost + HandlingCharge
}

// recommend applies the named margin thresholds and the risk tier.
func recommend(margin float64, tier domain.RiskTier) string {
	switch {
	case margin < NotRecommendedMarginThreshold || tier == domain.RiskTierHigh:
		return TagNotRecommended
	case margin > RecommendedMarginThreshold && tier == domain.RiskTierLow:
		return TagRecommended
	default:
		return TagConditional
	}
}
