package httpapi

import (
	"context"
	"errors"
	"net/http"

	"clothstore-be/internal/catalog"
	"clothstore-be/internal/inventory"
	"clothstore-be/internal/logger"
	"clothstore-be/internal/order"
	"clothstore-be/internal/payment"
	"clothstore-be/internal/utils"

	"go.uber.org/zap"
)

type errorBody struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	Field     string         `json:"field,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// writeError maps domain errors onto HTTP statuses. Anything unrecognised is
// logged and reported as a 500 without leaking the cause.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, body := classify(err)
	body.RequestID = logger.RequestIDFrom(ctx)

	if status >= http.StatusInternalServerError {
		logger.FromCtx(ctx).Error("request failed", zap.Error(err))
	}
	utils.WriteJSON(w, status, body)
}

func classify(err error) (int, errorBody) {
	var (
		validation *order.ValidationError
		transition *order.InvalidTransitionError
		stock      *inventory.InsufficientStockError
	)

	switch {
	case errors.As(err, &validation):
		body := errorBody{Error: "validation_failed", Message: validation.Error(), Field: validation.Field}
		if errors.As(err, &stock) {
			body.Details = stockDetails(stock)
		}
		return http.StatusBadRequest, body

	case errors.As(err, &stock):
		return http.StatusConflict, errorBody{Error: "insufficient_stock", Message: stock.Error(), Details: stockDetails(stock)}

	case errors.As(err, &transition):
		allowed := make([]string, len(transition.Allowed))
		for i, s := range transition.Allowed {
			allowed[i] = string(s)
		}
		return http.StatusConflict, errorBody{
			Error:   "invalid_transition",
			Message: transition.Error(),
			Details: map[string]any{"from": transition.From, "to": transition.To, "allowed": allowed},
		}

	case errors.Is(err, order.ErrConflict), errors.Is(err, payment.ErrPaymentConflict):
		return http.StatusConflict, errorBody{Error: "conflict", Message: "resource was modified concurrently, retry"}
	case errors.Is(err, order.ErrForbidden):
		return http.StatusForbidden, errorBody{Error: "forbidden", Message: "not allowed"}
	case errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound, errorBody{Error: "not_found", Message: "order not found"}
	case errors.Is(err, payment.ErrPaymentNotFound):
		return http.StatusNotFound, errorBody{Error: "not_found", Message: "payment not found"}
	case errors.Is(err, payment.ErrOrderNotPayable), errors.Is(err, payment.ErrAlreadyPaid):
		return http.StatusConflict, errorBody{Error: "not_payable", Message: err.Error()}
	case errors.Is(err, payment.ErrAmountMismatch), errors.Is(err, payment.ErrInvalidPayload),
		errors.Is(err, inventory.ErrInvalidQuantity), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, errorBody{Error: "invalid_request", Message: err.Error()}
	case errors.Is(err, catalog.ErrProductNotFound), errors.Is(err, catalog.ErrVariantNotFound):
		return http.StatusNotFound, errorBody{Error: "not_found", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal server error"}
	}
}

func stockDetails(e *inventory.InsufficientStockError) map[string]any {
	return map[string]any{
		"product_id":   e.ProductID,
		"product_name": e.ProductName,
		"color":        e.Color,
		"size":         e.Size,
		"requested":    e.Requested,
		"available":    e.Available,
	}
}

var errBadRequest = errors.New("bad request")
