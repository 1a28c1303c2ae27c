package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/recycle-market/internal/domain/auth"
	"github.com/xenking/recycle-market/internal/domain/cart"
	"github.com/xenking/recycle-market/internal/domain/fulfillment"
	"github.com/xenking/recycle-market/internal/domain/ledger"
	"github.com/xenking/recycle-market/internal/domain/measure"
	"github.com/xenking/recycle-market/internal/domain/notification"
	"github.com/xenking/recycle-market/internal/domain/order"
	"github.com/xenking/recycle-market/internal/domain/rewards"
	"github.com/xenking/recycle-market/internal/domain/stock"
	"github.com/xenking/recycle-market/internal/storage"
	"github.com/xenking/recycle-market/pkg/httpmiddleware"
)

// requestError is a malformed request: bad JSON, a missing field or an
// unparsable parameter.
type requestError struct {
	err error
}

func (e *requestError) Error() string {
	return "invalid request: " + e.err.Error()
}

func (e *requestError) Unwrap() error {
	return e.err
}

func badRequest(format string, args ...any) error {
	return &requestError{err: errors.Errorf(format, args...)}
}

// unprocessable lists the errors raised for well-formed requests that break a
// business rule.
var unprocessable = []error{
	order.ErrEmptyCart,
	order.ErrInvalidAddress,
	order.ErrInvalidPayment,
	order.ErrReasonRequired,
	order.ErrCourierRequired,
	order.ErrProofRequired,
	order.ErrUnknownLine,
	ledger.ErrInvalidAmount,
	ledger.ErrInsufficientBalance,
	rewards.ErrWholePoints,
	rewards.ErrGatewayRequired,
	fulfillment.ErrCourierUnavailable,
	stock.ErrItemNotFound,
}

var conflicts = []error{
	order.ErrInvalidTransition,
	order.ErrConflict,
	order.ErrActiveOrder,
	stock.ErrInsufficientStock,
}

var notFound = []error{
	order.ErrNotFound,
	notification.ErrNotFound,
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// statusOf maps a domain error to its HTTP status.
func statusOf(err error) int {
	var (
		reqErr  *requestError
		lineErr *cart.LineError
		qtyErr  *order.InvalidQuantityError
		unitErr *measure.QuantityError
	)
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, ledger.ErrUnknownBook):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, order.ErrForbidden):
		return http.StatusForbidden
	case isAny(err, notFound):
		return http.StatusNotFound
	case isAny(err, conflicts):
		return http.StatusConflict
	case errors.As(err, &lineErr), errors.As(err, &qtyErr), errors.As(err, &unitErr),
		isAny(err, unprocessable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err with the status statusOf picks. Unexpected errors are
// logged and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	switch status {
	case http.StatusInternalServerError:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeMessage(w, status, "internal error")
	case http.StatusServiceUnavailable:
		zctx.From(r.Context()).Warn("Storage unavailable", zap.Error(err))
		w.Header().Set("Retry-After", "1")
		writeMessage(w, status, "service temporarily unavailable, retry later")
	default:
		writeMessage(w, status, err.Error())
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	httpmiddleware.WriteError(w, status, msg)
}
