package monitoring

import (
	"log/slog"
	"os"
	"time"
)

// Logger provides structured JSON logging with domain helpers.
type Logger struct {
	*slog.Logger
}

// NewLogger creates the engine's structured logger.
func NewLogger() *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})
	return &Logger{Logger: slog.New(handler)}
}

// RequestLogger logs HTTP request details.
func (l *Logger) RequestLogger(method, path, ip string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// PredictionLogger logs a completed trade prediction.
func (l *Logger) PredictionLogger(dealerID, productID, countryID int64, margin, confidence float64, duration time.Duration) {
	l.Info("Prediction Completed",
		"dealer_id", dealerID,
		"product_id", productID,
		"destination_country_id", countryID,
		"predicted_profit_margin", margin,
		"confidence", confidence,
		"duration_ms", duration.Milliseconds(),
	)
}

// TrainingLogger logs a finished model training run.
func (l *Logger) TrainingLogger(version string, sampleCount int, duration time.Duration, err error) {
	if err != nil {
		l.Error("Model Training Failed",
			"error", err.Error(),
			"duration_ms", duration.Milliseconds(),
		)
		return
	}
	l.Info("Model Training Completed",
		"model_version", version,
		"training_sample_count", sampleCount,
		"duration_ms", duration.Milliseconds(),
	)
}

// APIErrorLogger logs API errors with request context.
func (l *Logger) APIErrorLogger(err error, method, path string, statusCode int) {
	l.Error("API Error",
		"error", err.Error(),
		"method", method,
		"path", path,
		"status_code", statusCode,
	)
}
