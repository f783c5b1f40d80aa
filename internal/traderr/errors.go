// Package traderr defines the recoverable error taxonomy of the scoring
// engine and its mapping onto HTTP statuses at the API boundary.
package traderr

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// Code identifies one of the engine's recoverable error conditions.
type Code string

const (
	CodeNotFound             Code = "not_found"
	CodeInvalidInput         Code = "invalid_input"
	CodeInvalidConfiguration Code = "invalid_configuration"
	CodeInsufficientData     Code = "insufficient_data"
	CodeModelNotTrained      Code = "model_not_trained"
	CodeModelTrainingTimeout Code = "model_training_timeout"
)

// Error wraps an errbuilder error with the engine taxonomy code and the
// HTTP status the API layer should report.
type Error struct {
	*errbuilder.ErrBuilder
	Code       Code      `json:"code"`
	HTTPStatus int       `json:"http_status"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.ErrBuilder.Msg)
}

func (e *Error) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

func newError(builder *errbuilder.ErrBuilder, code Code, status int) *Error {
	return &Error{
		ErrBuilder: builder,
		Code:       code,
		HTTPStatus: status,
		Timestamp:  time.Now(),
	}
}

// NotFound reports an unknown entity identifier.
func NotFound(kind string, id int64) *Error {
	details := errbuilder.ErrorMap{}
	details.Set("entity", errors.New(kind))
	details.Set("id", fmt.Errorf("%d", id))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("%s %d not found", kind, id)).
		WithDetails(errbuilder.NewErrDetails(details))

	return newError(builder, CodeNotFound, http.StatusNotFound)
}

// InvalidInput reports a malformed or out-of-range request field.
func InvalidInput(field, reason string) *Error {
	details := errbuilder.ErrorMap{}
	details.Set("field", errors.New(field))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("invalid %s: %s", field, reason)).
		WithDetails(errbuilder.NewErrDetails(details))

	return newError(builder, CodeInvalidInput, http.StatusBadRequest)
}

// InvalidConfiguration reports weights or enum values rejected at the
// boundary, such as criterion weights not summing to 1.
func InvalidConfiguration(reason string) *Error {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(reason)

	return newError(builder, CodeInvalidConfiguration, http.StatusBadRequest)
}

// InsufficientData reports a training attempt with too few usable records.
func InsufficientData(usable, minimum int) *Error {
	details := errbuilder.ErrorMap{}
	details.Set("usable_records", fmt.Errorf("%d", usable))
	details.Set("minimum_records", fmt.Errorf("%d", minimum))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(fmt.Sprintf("training requires %d usable records, have %d", minimum, usable)).
		WithDetails(errbuilder.NewErrDetails(details))

	return newError(builder, CodeInsufficientData, http.StatusUnprocessableEntity)
}

// ModelNotTrained reports inference attempted with no model state available
// after lazy training also failed.
func ModelNotTrained(cause error) *Error {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg("no trained model state available")

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return newError(builder, CodeModelNotTrained, http.StatusServiceUnavailable)
}

// ModelTrainingTimeout reports a request that waited on an in-flight
// training run past the configured deadline. Never retried by the engine.
func ModelTrainingTimeout(waited time.Duration) *Error {
	details := errbuilder.ErrorMap{}
	details.Set("waited", errors.New(waited.String()))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeDeadlineExceeded).
		WithMsg(fmt.Sprintf("model training did not finish within %s", waited)).
		WithDetails(errbuilder.NewErrDetails(details))

	return newError(builder, CodeModelTrainingTimeout, http.StatusGatewayTimeout)
}

// CodeOf extracts the taxonomy code from an error chain. Unrecognized
// errors report an empty code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// StatusOf returns the HTTP status for an error chain, falling back to 500
// for anything outside the taxonomy.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}
