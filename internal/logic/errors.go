package logic

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can branch without string matching.
type Kind int

const (
	KindOther Kind = iota
	// KindSensorAmbiguous is an Unknown water-state reading.
	KindSensorAmbiguous
	// KindNetworkUnavailable means no link, no address, a failed liveness probe,
	// or sends gated by an open breaker.
	KindNetworkUnavailable
	// KindRemoteRejected is a non-2xx response from the server.
	KindRemoteRejected
	// KindTransportException is a failure raised during a request attempt.
	KindTransportException
	// KindRetriesExhausted means the attempt bound was reached on a call.
	KindRetriesExhausted
)

func (k Kind) String() string {
	switch k {
	case KindSensorAmbiguous:
		return "sensor ambiguous"
	case KindNetworkUnavailable:
		return "network unavailable"
	case KindRemoteRejected:
		return "remote rejected"
	case KindTransportException:
		return "transport exception"
	case KindRetriesExhausted:
		return "retries exhausted"
	default:
		return "other"
	}
}

// Error carries a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	// StatusCode is the last HTTP status, when the server answered.
	StatusCode int
	Err        error
}

// NewError wraps err with a kind and operation name.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the outermost *Error in err's chain,
// KindOther for unclassified errors, and KindOther for nil.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
