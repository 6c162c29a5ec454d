package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/pairank/internal/adapters/repository"
	service "github.com/okian/pairank/internal/app"
	"github.com/okian/pairank/internal/domain/engine"
	"github.com/okian/pairank/internal/domain/ledger"
	"github.com/okian/pairank/internal/domain/rating"
	"github.com/okian/pairank/internal/domain/selection"
	"github.com/okian/pairank/internal/validation"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrLimitExceeded = errors.New("limit exceeded")
)

// kindError tags err with the operation that failed and an API kind.
type kindError struct {
	op   string
	kind error
	err  error
}

func (e *kindError) Error() string {
	switch {
	case e.err == nil:
		return fmt.Sprintf("%s: %v", e.op, e.kind)
	case e.kind == nil:
		return fmt.Sprintf("%s: %v", e.op, e.err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.op, e.kind, e.err)
	}
}

func (e *kindError) Unwrap() []error {
	var out []error
	for _, err := range []error{e.kind, e.err} {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error {
	return &kindError{op: op, kind: kind}
}

// WrapKind tags err with kind and op.
func WrapKind(op string, kind, err error) error {
	return &kindError{op: op, kind: kind, err: err}
}

// Wrap tags err with op only; its status comes from err itself.
func Wrap(op string, err error) error {
	return &kindError{op: op, err: err}
}

// statusOf maps an error to an HTTP status and a stable error code.
func statusOf(err error) (int, string) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, ErrLimitExceeded):
		return http.StatusBadRequest, "limit_exceeded"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, engine.ErrSelfComparison),
		errors.Is(err, service.ErrInvalidItem),
		errors.Is(err, repository.ErrInvalidLimit),
		errors.Is(err, repository.ErrInvalidOffset):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, engine.ErrUnknownItem),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, selection.ErrInsufficientItems):
		return http.StatusConflict, "insufficient_items"
	case errors.Is(err, service.ErrNothingToUndo):
		return http.StatusConflict, "nothing_to_undo"
	case errors.Is(err, service.ErrDuplicateItem):
		return http.StatusConflict, "duplicate_item"
	case errors.Is(err, rating.ErrNonFinite):
		return http.StatusUnprocessableEntity, "non_finite"
	case errors.Is(err, service.ErrNotStarted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func asValidation(err error) (*validation.Error, bool) {
	var verr *validation.Error
	ok := errors.As(err, &verr)
	return verr, ok
}
