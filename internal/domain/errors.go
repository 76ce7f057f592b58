package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrNoLocation = errors.New("no location could be resolved from the query")
	ErrNoCounty   = errors.New("location is not within a known county")
	ErrNotFound   = errors.New("not found")
	ErrEmptyQuery = errors.New("query is empty")
)

// ErrorKind classifies a request-level failure for callers.
type ErrorKind string

// KindPartialData and KindMalformedModelOutput complete the taxonomy for
// callers; the pipeline itself never returns them. Partial data is reported as
// data_gaps on a successful result, and malformed model output is recovered by
// the stage fallbacks.
const (
	KindInputAmbiguous       ErrorKind = "input_ambiguous"
	KindPartialData          ErrorKind = "partial_data"
	KindUpstreamUnavailable  ErrorKind = "upstream_unavailable"
	KindMalformedModelOutput ErrorKind = "malformed_model_output"
)

// QueryError is a classified failure of one pipeline operation.
type QueryError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Ambiguous wraps err as an input-ambiguous failure of op.
func Ambiguous(op string, err error) error {
	return &QueryError{Kind: KindInputAmbiguous, Op: op, Err: err}
}

// Unavailable wraps err as an upstream-unavailable failure of op.
func Unavailable(op string, err error) error {
	return &QueryError{Kind: KindUpstreamUnavailable, Op: op, Err: err}
}

// Malformed wraps err as a malformed-model-output failure of op. Model
// adapters that cannot recover a response may return it.
func Malformed(op string, err error) error {
	return &QueryError{Kind: KindMalformedModelOutput, Op: op, Err: err}
}

// KindOf returns the kind of the first QueryError in err's chain. Errors that
// carry no kind are treated as upstream failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Kind
	}
	if errors.Is(err, ErrNoLocation) || errors.Is(err, ErrEmptyQuery) {
		return KindInputAmbiguous
	}
	return KindUpstreamUnavailable
}

// UserMessage is the caller-facing text for a failure. Upstream causes are
// not echoed.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindInputAmbiguous:
		if errors.Is(err, ErrEmptyQuery) {
			return "Please ask a question about flood risk for a specific place."
		}
		return "Please specify a location (for example a city and state) so flood data can be looked up."
	case KindMalformedModelOutput:
		return "The language model returned an unexpected response. Please try again."
	case KindPartialData:
		return "Some data could not be retrieved."
	default:
		return "A required data service is temporarily unavailable. Please try again later."
	}
}
