package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	cartapp "github.com/dwikikusuma/bullion-store/internal/cart/app"
	catalogapp "github.com/dwikikusuma/bullion-store/internal/catalog/app"
	checkoutapp "github.com/dwikikusuma/bullion-store/internal/checkout/app"
	"github.com/dwikikusuma/bullion-store/internal/checkout/domain"
	orderapp "github.com/dwikikusuma/bullion-store/internal/order/app"
	"github.com/dwikikusuma/bullion-store/internal/session"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errBadRequest = errors.New("malformed request body")

// toStatus classifies a domain error as a gRPC status so that every
// transport shares one error contract.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}

	var code codes.Code
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, catalogapp.ErrInvalidInput),
		errors.Is(err, cartapp.ErrInvalidInput),
		errors.Is(err, orderapp.ErrInvalidInput),
		errors.Is(err, domain.ErrUnknownMethod),
		errors.Is(err, domain.ErrUnknownCurrency):
		code = codes.InvalidArgument
	case errors.Is(err, catalogapp.ErrNotFound),
		errors.Is(err, orderapp.ErrNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrNoCheckout):
		code = codes.NotFound
	case errors.Is(err, checkoutapp.ErrStepFailed):
		code = codes.Aborted
	case errors.Is(err, cartapp.ErrCartLocked),
		errors.Is(err, cartapp.ErrSessionClosed),
		errors.Is(err, checkoutapp.ErrInvalidTransition),
		errors.Is(err, checkoutapp.ErrSessionClosed),
		errors.Is(err, checkoutapp.ErrEmptyCart),
		errors.Is(err, checkoutapp.ErrInvalidTotal),
		errors.Is(err, orderapp.ErrInvalidTotal),
		errors.Is(err, session.ErrCheckoutActive):
		code = codes.FailedPrecondition
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// httpStatusFromGRPC returns the HTTP status, a stable error code and the
// message to show for err.
func httpStatusFromGRPC(err error) (int, string, string) {
	st, ok := status.FromError(err)
	if !ok {
		return http.StatusInternalServerError, "INTERNAL", "internal error"
	}

	switch st.Code() {
	case codes.InvalidArgument:
		return http.StatusBadRequest, "INVALID_ARGUMENT", st.Message()
	case codes.NotFound:
		return http.StatusNotFound, "NOT_FOUND", st.Message()
	case codes.FailedPrecondition:
		return http.StatusConflict, "FAILED_PRECONDITION", st.Message()
	case codes.Aborted:
		return http.StatusConflict, "ABORTED", st.Message()
	case codes.Unavailable, codes.DeadlineExceeded:
		return http.StatusServiceUnavailable, "UNAVAILABLE", st.Message()
	default:
		return http.StatusInternalServerError, "INTERNAL", "internal error"
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	code, name, msg := httpStatusFromGRPC(toStatus(err))
	writeJSON(w, code, errorResponse{Error: name, Message: msg})
}
