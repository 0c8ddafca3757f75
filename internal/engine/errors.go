// Package engine defines the error taxonomy shared by the allocation engine
// and its callers.
package engine

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures.
type Kind string

const (
	KindDataInsufficiency  Kind = "data_insufficiency"
	KindInvalidDateRange   Kind = "invalid_date_range"
	KindNumericInstability Kind = "numeric_instability"
	KindInvalidRequest     Kind = "invalid_request"
)

// Error is returned across the engine boundary.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error with the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrDataInsufficient   = &Error{Kind: KindDataInsufficiency, Message: "not enough data"}
	ErrInvalidDateRange   = &Error{Kind: KindInvalidDateRange, Message: "invalid date range"}
	ErrNumericInstability = &Error{Kind: KindNumericInstability, Message: "numeric instability"}
	ErrInvalidRequest     = &Error{Kind: KindInvalidRequest, Message: "invalid request"}
)

// DataInsufficient builds a data_insufficiency error.
func DataInsufficient(format string, args ...any) *Error {
	return &Error{Kind: KindDataInsufficiency, Message: fmt.Sprintf(format, args...)}
}

// InvalidDateRange builds an invalid_date_range error.
func InvalidDateRange(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidDateRange, Message: fmt.Sprintf(format, args...)}
}

// NumericInstability builds a numeric_instability error.
func NumericInstability(format string, args ...any) *Error {
	return &Error{Kind: KindNumericInstability, Message: fmt.Sprintf(format, args...)}
}

// InvalidRequest builds an invalid_request error.
func InvalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of an engine error anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
