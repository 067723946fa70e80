package api

import (
	"errors"
	"fmt"

	"github.com/better95159-hub/pricegate/internal/localize"
	"github.com/better95159-hub/pricegate/internal/pricesource"
)

const (
	CodeValidation  = "VALIDATION"
	CodeNotFound    = "NOT_FOUND"
	CodeUnavailable = "UNAVAILABLE"
	CodeInternal    = "INTERNAL"
)

type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newErr(code, message string, cause error) *CodedError {
	return &CodedError{Code: code, Message: message, Cause: cause}
}

// classify turns service sentinels into coded errors.
func classify(err error) *CodedError {
	var coded *CodedError
	switch {
	case errors.As(err, &coded):
		return coded
	case errors.Is(err, localize.ErrUnknownEvent):
		return newErr(CodeNotFound, err.Error(), err)
	case errors.Is(err, pricesource.ErrUnavailable):
		return newErr(CodeUnavailable, "prices unavailable", err)
	default:
		return newErr(CodeInternal, err.Error(), err)
	}
}
