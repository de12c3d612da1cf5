package api

import (
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/phx_devtools/internal/aggregator"
	"github.com/dgnsrekt/phx_devtools/internal/types"
)

const (
	CodeValidation  = "VALIDATION"
	CodeNotFound    = "NOT_FOUND"
	CodeUnavailable = "UNAVAILABLE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// codeOf classifies service errors that are not already coded.
func codeOf(err error) error {
	var coded *CodedError
	if errors.As(err, &coded) {
		return err
	}
	switch {
	case errors.Is(err, aggregator.ErrInvalidTab),
		errors.Is(err, aggregator.ErrInvalidTarget),
		errors.Is(err, types.ErrUnknownRequest):
		return newError(CodeValidation, err.Error(), err)
	default:
		return err
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *CodedError
	if errors.As(codeOf(err), &coded) {
		switch coded.Code {
		case CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case CodeUnavailable:
			return huma.Error503ServiceUnavailable(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
