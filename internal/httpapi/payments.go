package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"clothstore-be/internal/payment"
	"clothstore-be/internal/utils"

	"github.com/google/uuid"
)

type PaymentHandlers struct {
	payments payment.Reconciler
}

func NewPaymentHandlers(payments payment.Reconciler) *PaymentHandlers {
	return &PaymentHandlers{payments: payments}
}

type createPaymentRequest struct {
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
}

type paymentResponse struct {
	ID             uuid.UUID      `json:"id"`
	OrderID        uuid.UUID      `json:"order_id"`
	Amount         int64          `json:"amount"`
	Gateway        string         `json:"gateway"`
	Status         payment.Status `json:"status"`
	TransactionRef string         `json:"transaction_ref"`
	PaymentDate    *time.Time     `json:"payment_date,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (h *PaymentHandlers) createPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid order id", errBadRequest))
		return
	}

	intent, err := h.payments.CreatePaymentIntent(ctx, orderID, req.Amount, actorFrom(r), utils.ClientIP(r))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, intent)
}

func (h *PaymentHandlers) paymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := orderIDParam(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	p, err := h.payments.PaymentStatus(ctx, orderID, actorFrom(r))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, paymentResponse{
		ID:             p.ID,
		OrderID:        p.OrderID,
		Amount:         p.Amount,
		Gateway:        p.Gateway,
		Status:         p.Status,
		TransactionRef: p.TransactionRef,
		PaymentDate:    p.PaymentDate,
		CreatedAt:      p.CreatedAt,
	})
}
