package engine

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poweranger/trade-optimizer/internal/domain"
	"github.com/poweranger/trade-optimizer/internal/monitoring"
	"github.com/poweranger/trade-optimizer/internal/ranking"
	"github.com/poweranger/trade-optimizer/internal/traderr"
)

// fakeStore serves in-memory reference data and counts training reads.
type fakeStore struct {
	dealers      map[int64]domain.Dealer
	products     map[int64]domain.Product
	countries    map[int64]domain.Country
	transactions []domain.Transaction

	trainReads int64         // CountryIDs calls, one per training pass
	readDelay  time.Duration // slows Transactions to simulate long training
}

func (f *fakeStore) Dealer(id int64) (domain.Dealer, error) {
	d, ok := f.dealers[id]
	if !ok {
		return domain.Dealer{}, traderr.NotFound("dealer", id)
	}
	return d, nil
}

func (f *fakeStore) Product(id int64) (domain.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return domain.Product{}, traderr.NotFound("product", id)
	}
	return p, nil
}

func (f *fakeStore) Country(id int64) (domain.Country, error) {
	c, ok := f.countries[id]
	if !ok {
		return domain.Country{}, traderr.NotFound("country", id)
	}
	return c, nil
}

func (f *fakeStore) Tariff(countryID, categoryID int64) (domain.Tariff, bool, error) {
	return domain.Tariff{}, false, nil
}

func (f *fakeStore) Route(countryID int64, mode domain.TransportMode) (domain.TradeRoute, bool, error) {
	return domain.TradeRoute{}, false, nil
}

func (f *fakeStore) Dealers() ([]domain.Dealer, error) {
	out := make([]domain.Dealer, 0, len(f.dealers))
	for _, d := range f.dealers {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeStore) Countries() ([]domain.Country, error) {
	out := make([]domain.Country, 0, len(f.countries))
	for _, c := range f.countries {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) Transactions(limit int) ([]domain.Transaction, error) {
	if f.readDelay > 0 {
		time.Sleep(f.readDelay)
	}
	return f.transactions, nil
}

func (f *fakeStore) DeliveryDays(countryID int64, mode domain.TransportMode) ([]float64, error) {
	var days []float64
	for _, tx := range f.transactions {
		if tx.DestinationCountryID == countryID && tx.Mode == mode && tx.DeliveryDays != nil {
			days = append(days, *tx.DeliveryDays)
		}
	}
	return days, nil
}

func (f *fakeStore) CountryIDs() ([]int64, error) {
	atomic.AddInt64(&f.trainReads, 1)
	ids := make([]int64, 0, len(f.countries))
	for id := range f.countries {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) CategoryIDs() ([]int64, error) {
	return []int64{1}, nil
}

func newFakeStore(txCount int) *fakeStore {
	rng := rand.New(rand.NewSource(7))
	f := &fakeStore{
		dealers: map[int64]domain.Dealer{
			1: {
				ID: 1, Name: "Alpha Trading", CountryID: 1, ProductCategoryID: 1,
				CostIndex: 35, QualityIndex: 82, DeliveryIndex: 75,
				ReliabilityIndex: 88, CapacityIndex: 60, TransactionCount: txCount,
				Markets: []int64{1},
			},
		},
		products: map[int64]domain.Product{
			1: {ID: 1, Name: "Steel coil", CategoryID: 1, BaseUnitCost: 100, WeightKg: 2},
		},
		countries: map[int64]domain.Country{
			1: {ID: 1, Name: "Germany", Code: "DE", TariffRate: 5, CurrencyFactor: 1.1},
		},
	}

	for i := 0; i < txCount; i++ {
		margin := 10 + rng.Float64()*15
		days := 20 + rng.Float64()*20
		f.transactions = append(f.transactions, domain.Transaction{
			ID: int64(i + 1), DealerID: 1, ProductID: 1, DestinationCountryID: 1,
			Quantity: 5 + rng.Intn(50), Mode: domain.TransportSea,
			ProfitMargin: &margin, DeliveryDays: &days,
			OrderDate: time.Date(2025, time.Month(1+i%12), 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return f
}

func newTestEngine(store Store, cfg Config) *Engine {
	return New(store, cfg, monitoring.NewLogger(), monitoring.NewMetrics())
}

func predictRequest() PredictionRequest {
	return PredictionRequest{
		DealerID: 1, ProductID: 1, DestinationCountryID: 1,
		Quantity: 10, TransportMode: "sea",
	}
}

func TestPredictEndToEnd(t *testing.T) {
	eng := newTestEngine(newFakeStore(60), DefaultConfig())

	result, err := eng.Predict(context.Background(), predictRequest())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.PredictedDeliveryDays, 1)
	assert.GreaterOrEqual(t, result.ConfidenceScore, 0.0)
	assert.LessOrEqual(t, result.ConfidenceScore, 1.0)
	assert.Contains(t, []string{TagRecommended, TagConditional, TagNotRecommended}, result.Recommendation)
	assert.Greater(t, result.TotalCostEstimate, 0.0)
	assert.NotEqual(t, domain.RiskTierUnknown, result.RiskTier)
}

func TestPredictValidation(t *testing.T) {
	eng := newTestEngine(newFakeStore(60), DefaultConfig())

	tests := []struct {
		name   string
		mutate func(*PredictionRequest)
		code   traderr.Code
	}{
		{"bad mode", func(r *PredictionRequest) { r.TransportMode = "pigeon" }, traderr.CodeInvalidInput},
		{"zero quantity", func(r *PredictionRequest) { r.Quantity = 0 }, traderr.CodeInvalidInput},
		{"unknown dealer", func(r *PredictionRequest) { r.DealerID = 99 }, traderr.CodeNotFound},
		{"unknown product", func(r *PredictionRequest) { r.ProductID = 99 }, traderr.CodeNotFound},
		{"unknown country", func(r *PredictionRequest) { r.DestinationCountryID = 99 }, traderr.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := predictRequest()
			tt.mutate(&req)
			_, err := eng.Predict(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, tt.code, traderr.CodeOf(err))
		})
	}
}

func TestPredictInsufficientData(t *testing.T) {
	eng := newTestEngine(newFakeStore(10), DefaultConfig())

	_, err := eng.Predict(context.Background(), predictRequest())
	require.Error(t, err)
	assert.Equal(t, traderr.CodeModelNotTrained, traderr.CodeOf(err))
}

func TestTrainingIsSingleFlight(t *testing.T) {
	store := newFakeStore(60)
	store.readDelay = 50 * time.Millisecond
	eng := newTestEngine(store, DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Predict(context.Background(), predictRequest())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&store.trainReads), "concurrent requests must share one training run")
}

func TestTrainingTimeout(t *testing.T) {
	store := newFakeStore(60)
	store.readDelay = 500 * time.Millisecond
	cfg := DefaultConfig()
	cfg.TrainingTimeout = 50 * time.Millisecond
	eng := newTestEngine(store, cfg)

	_, err := eng.Predict(context.Background(), predictRequest())
	require.Error(t, err)
	assert.Equal(t, traderr.CodeModelTrainingTimeout, traderr.CodeOf(err))
}

func TestInvalidateForcesRetrain(t *testing.T) {
	store := newFakeStore(60)
	eng := newTestEngine(store, DefaultConfig())

	_, err := eng.Predict(context.Background(), predictRequest())
	require.NoError(t, err)
	require.Equal(t, int64(1), atomic.LoadInt64(&store.trainReads))

	// Cached state serves without retraining.
	_, err = eng.Predict(context.Background(), predictRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&store.trainReads))

	eng.Invalidate()
	_, err = eng.Predict(context.Background(), predictRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&store.trainReads))
}

func TestIngestionDuringTrainingDiscardsRun(t *testing.T) {
	store := newFakeStore(60)
	store.readDelay = 200 * time.Millisecond
	eng := newTestEngine(store, DefaultConfig())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := eng.Predict(context.Background(), predictRequest())
		assert.NoError(t, err)
	}()

	// Signal new data while the first training pass is still reading.
	time.Sleep(50 * time.Millisecond)
	eng.Invalidate()
	wg.Wait()

	// The in-flight run must have been discarded and rerun over the fresh
	// data, and the next request must not see the pre-ingest state.
	require.Equal(t, int64(2), atomic.LoadInt64(&store.trainReads))
	_, err := eng.Predict(context.Background(), predictRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&store.trainReads))
}

func TestDiagnosticsNeverTrains(t *testing.T) {
	store := newFakeStore(60)
	eng := newTestEngine(store, DefaultConfig())

	_, err := eng.Diagnostics()
	require.Error(t, err)
	assert.Equal(t, traderr.CodeModelNotTrained, traderr.CodeOf(err))
	assert.Equal(t, int64(0), atomic.LoadInt64(&store.trainReads))

	_, err = eng.Predict(context.Background(), predictRequest())
	require.NoError(t, err)

	diag, err := eng.Diagnostics()
	require.NoError(t, err)
	assert.Equal(t, 60, diag.TrainingSampleCount)
	assert.NotEmpty(t, diag.ModelVersion)
	assert.Contains(t, diag.FeatureImportances, "profit_model")
	assert.Contains(t, diag.FeatureImportances, "delivery_model")
}

func TestRetrainReplacesVersion(t *testing.T) {
	eng := newTestEngine(newFakeStore(60), DefaultConfig())

	first, err := eng.Retrain(context.Background())
	require.NoError(t, err)
	second, err := eng.Retrain(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.ModelVersion, second.ModelVersion)
}

func TestModelStatePersistence(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ModelDir = dir

	store := newFakeStore(60)
	eng := newTestEngine(store, cfg)
	_, err := eng.Predict(context.Background(), predictRequest())
	require.NoError(t, err)

	// A fresh engine over the same directory must reuse the persisted state.
	eng2 := newTestEngine(store, cfg)
	diag, err := eng2.Diagnostics()
	require.NoError(t, err)
	assert.Equal(t, 60, diag.TrainingSampleCount)
	assert.Equal(t, int64(1), atomic.LoadInt64(&store.trainReads), "second engine must not retrain")
}

func TestRankDealersDelegates(t *testing.T) {
	eng := newTestEngine(newFakeStore(60), DefaultConfig())

	scores, err := eng.RankDealers(ranking.Filters{}, ranking.DefaultWeights(), 10)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, int64(1), scores[0].DealerID)
}

func TestAnalyzeCountriesDelegates(t *testing.T) {
	eng := newTestEngine(newFakeStore(60), DefaultConfig())

	scores, err := eng.AnalyzeCountries()
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, 60, scores[0].TransactionCount)
}

func TestCostEstimateArithmetic(t *testing.T) {
	s := domain.Scenario{
		Product:  domain.Product{BaseUnitCost: 100, WeightKg: 2},
		Tariff:   domain.Tariff{ImportDutyRate: 5},
		Route:    domain.TradeRoute{BaseCostPerKg: 2},
		Quantity: 10,
	}

	// 1000 product + 40 logistics + 50 duty + 1000 handling
	assert.InDelta(t, 2090.0, costEstimate(s), 1e-9)
}

func TestRecommendThresholds(t *testing.T) {
	tests := []struct {
		name     string
		margin   float64
		tier     domain.RiskTier
		expected string
	}{
		{"high margin low risk", 20, domain.RiskTierLow, TagRecommended},
		{"high margin medium risk", 20, domain.RiskTierMedium, TagConditional},
		{"thin margin", 3, domain.RiskTierLow, TagNotRecommended},
		{"high risk overrides margin", 25, domain.RiskTierHigh, TagNotRecommended},
		{"boundary margin", 15, domain.RiskTierLow, TagConditional},
		{"middle band", 10, domain.RiskTierMedium, TagConditional},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, recommend(tt.margin, tt.tier))
		})
	}
}
