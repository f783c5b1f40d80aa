package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poweranger/trade-optimizer/internal/features"
	"github.com/poweranger/trade-optimizer/internal/traderr"
)

// syntheticSamples builds n samples whose targets are deterministic
// functions of a few features, so the regressors have real structure to fit.
func syntheticSamples(n int) []Sample {
	rng := rand.New(rand.NewSource(42))
	width := features.Count()

	samples := make([]Sample, n)
	for i := range samples {
		fv := make(features.Vector, width)
		for j := range fv {
			fv[j] = rng.Float64() * 100
		}
		samples[i] = Sample{
			Features:     fv,
			ProfitMargin: 5 + 0.2*fv[0] - 0.1*fv[1] + rng.NormFloat64(),
			DeliveryDays: 10 + 0.3*fv[2] + rng.NormFloat64(),
		}
	}
	return samples
}

func TestTrainRejectsInsufficientData(t *testing.T) {
	_, err := Train(syntheticSamples(20), DefaultConfig())
	require.Error(t, err)
	assert.Equal(t, traderr.CodeInsufficientData, traderr.CodeOf(err))
}

func TestTrainSucceedsAtMinimum(t *testing.T) {
	st, err := Train(syntheticSamples(31), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 31, st.TrainingSampleCount)
	assert.Equal(t, features.EncodingVersion, st.EncodingVersion)
	assert.Equal(t, features.Names(), st.FeatureNames)
	assert.NotEmpty(t, st.Version)
	assert.False(t, st.TrainedAt.IsZero())
}

func TestPredictLearnsSignal(t *testing.T) {
	samples := syntheticSamples(200)
	st, err := Train(samples, DefaultConfig())
	require.NoError(t, err)

	// In-sample error should be well below the target spread.
	var sumErr float64
	for _, s := range samples {
		margin, _, err := st.Predict(s.Features)
		require.NoError(t, err)
		sumErr += math.Abs(margin - s.ProfitMargin)
	}
	meanErr := sumErr / float64(len(samples))
	assert.Less(t, meanErr, 4.0, "mean absolute error too large for in-sample predictions")
}

func TestPredictWidthMismatch(t *testing.T) {
	st, err := Train(syntheticSamples(40), DefaultConfig())
	require.NoError(t, err)

	_, _, err = st.Predict(make(features.Vector, 3))
	require.Error(t, err)
	assert.Equal(t, traderr.CodeInvalidInput, traderr.CodeOf(err))
}

func TestPredictDeliveryFloor(t *testing.T) {
	// All targets near zero so the regressor predicts below the floor.
	samples := syntheticSamples(40)
	for i := range samples {
		samples[i].DeliveryDays = 0.01
	}
	st, err := Train(samples, DefaultConfig())
	require.NoError(t, err)

	_, days, err := st.Predict(samples[0].Features)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, days, 1.0)
}

func TestConfidenceRange(t *testing.T) {
	samples := syntheticSamples(60)
	st, err := Train(samples, DefaultConfig())
	require.NoError(t, err)

	for _, s := range samples[:10] {
		c := st.Confidence(s.Features)
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 1.0)
	}
}

func TestConfidenceDropsWithExtrapolation(t *testing.T) {
	samples := syntheticSamples(60)
	st, err := Train(samples, DefaultConfig())
	require.NoError(t, err)

	base := samples[0].Features.Clone()
	prev := st.Confidence(base)
	for _, factor := range []float64{2, 5, 10, 50} {
		fv := base.Clone()
		fv[0] *= factor // push quantity far past the observed range
		c := st.Confidence(fv)
		assert.LessOrEqual(t, c, prev, "confidence must not increase as extrapolation grows (factor %v)", factor)
		prev = c
	}
}

func TestImportancesSumToOne(t *testing.T) {
	st, err := Train(syntheticSamples(100), DefaultConfig())
	require.NoError(t, err)

	for target, gains := range st.Importances() {
		sum := 0.0
		for _, v := range gains {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-6, "importances for %s should sum to 1", target)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	st, err := Train(syntheticSamples(40), DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, st.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, st.Version, loaded.Version)
	assert.Equal(t, st.TrainingSampleCount, loaded.TrainingSampleCount)
	assert.Equal(t, st.FeatureNames, loaded.FeatureNames)

	// Predictions must be identical through the round trip.
	fv := syntheticSamples(1)[0].Features
	m1, d1, err := st.Predict(fv)
	require.NoError(t, err)
	m2, d2, err := loaded.Predict(fv)
	require.NoError(t, err)
	assert.Equal(t, m1, m2)
	assert.Equal(t, d1, d2)
}

func TestLoadMissingFile(t *testing.T) {
	st, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestLoadStaleEncodingVersion(t *testing.T) {
	dir := t.TempDir()

	st, err := Train(syntheticSamples(40), DefaultConfig())
	require.NoError(t, err)
	st.EncodingVersion = "v0"
	require.NoError(t, st.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Nil(t, loaded, "stale encoding version must force retraining")
}
