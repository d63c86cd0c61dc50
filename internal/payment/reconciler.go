package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"clothstore-be/internal/db"
	"clothstore-be/internal/logger"
	"clothstore-be/internal/metrics"
	"clothstore-be/internal/order"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("payment/reconciler")

type Reconciler interface {
	CreatePaymentIntent(ctx context.Context, orderID uuid.UUID, amount int64, buyer order.Actor, clientIP string) (*Intent, error)
	// Reconcile never fails: every outcome is expressed as an acknowledgement
	// code the gateway understands.
	Reconcile(ctx context.Context, params url.Values, source Source) ReconcileResult
	PaymentStatus(ctx context.Context, orderID uuid.UUID, actor order.Actor) (*Payment, error)
}

// Orders is the part of the order service payments drive.
type Orders interface {
	GetOrder(ctx context.Context, orderID uuid.UUID, actor order.Actor) (*order.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, info order.PaymentInfo) (*order.Order, error)
	MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, info order.PaymentInfo) (*order.Order, error)
}

type Options struct {
	// StrictSignature rejects callbacks whose signature does not verify.
	// Otherwise they are processed and the mismatch is kept in the audit log.
	StrictSignature bool

	// Deprecated: LegacyFallbackMatch attaches a callback that matches no
	// payment to the newest pending payment of the gateway.
	LegacyFallbackMatch bool
}

type reconciler struct {
	repo    Repository
	orders  Orders
	gateway Gateway
	tx      db.TxManager
	metrics *metrics.Engine
	opts    Options

	now func() time.Time
}

func NewReconciler(
	repo Repository,
	orders Orders,
	gateway Gateway,
	tx db.TxManager,
	m *metrics.Engine,
	opts Options,
) Reconciler {
	return &reconciler{
		repo:    repo,
		orders:  orders,
		gateway: gateway,
		tx:      tx,
		metrics: m,
		opts:    opts,
		now:     time.Now,
	}
}

func (r *reconciler) CreatePaymentIntent(ctx context.Context, orderID uuid.UUID, amount int64, buyer order.Actor, clientIP string) (*Intent, error) {
	ctx, span := tracer.Start(ctx, "payment.CreatePaymentIntent")
	defer span.End()

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreatePaymentIntent"),
		zap.String("order_id", orderID.String()),
	)

	o, err := r.orders.GetOrder(ctx, orderID, buyer)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusPending || o.PaymentMethod != order.PaymentMethodGateway {
		log.Warn("payment requested for order not awaiting gateway payment",
			zap.String("status", string(o.Status)),
			zap.String("payment_method", string(o.PaymentMethod)),
		)
		return nil, ErrOrderNotPayable
	}
	if amount == 0 {
		amount = o.TotalAmount
	}
	if amount != o.TotalAmount {
		return nil, fmt.Errorf("%w: got %d, order total %d", ErrAmountMismatch, amount, o.TotalAmount)
	}

	paid, err := r.repo.HasCompletedPayment(ctx, orderID)
	if err != nil {
		log.Error("failed to check existing payments", zap.Error(err))
		return nil, err
	}
	if paid {
		return nil, ErrAlreadyPaid
	}

	now := r.now()
	ref := NewTransactionRef(orderID, now)
	payURL, expiresAt, err := r.gateway.BuildPaymentURL(PaymentRequest{
		OrderID:   orderID,
		TxnRef:    ref,
		Amount:    amount,
		ClientIP:  clientIP,
		CreatedAt: now,
	})
	if err != nil {
		log.Error("failed to build payment url", zap.Error(err))
		return nil, err
	}

	p := &Payment{
		OrderID:        orderID,
		BuyerID:        o.BuyerID,
		Amount:         amount,
		Gateway:        r.gateway.Name(),
		Status:         StatusPending,
		TransactionRef: ref,
		ResponseData: []AuditEntry{{
			Source:         SourceCreate,
			ReceivedAt:     now.UTC(),
			SignatureValid: true,
			Params: map[string]string{
				"vnp_TxnRef": ref,
				"ip_addr":    NormalizeIP(clientIP),
				"expires_at": expiresAt.UTC().Format(time.RFC3339),
			},
		}},
	}
	if err := r.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	log.Info("payment intent created",
		zap.String("payment_id", p.ID.String()),
		zap.String("transaction_ref", ref),
		zap.Int64("amount", amount),
	)
	return &Intent{
		PaymentID:      p.ID,
		OrderID:        orderID,
		TransactionRef: ref,
		PaymentURL:     payURL,
		ExpiresAt:      expiresAt,
	}, nil
}

func (r *reconciler) Reconcile(ctx context.Context, params url.Values, source Source) ReconcileResult {
	ctx, span := tracer.Start(ctx, "payment.Reconcile")
	defer span.End()

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Reconcile"),
		zap.String("source", string(source)),
		zap.String("txn_ref", params.Get("vnp_TxnRef")),
	)

	res := r.reconcile(ctx, log, params, source)

	span.SetAttributes(
		attribute.String("payment.source", string(source)),
		attribute.String("payment.rsp_code", res.RspCode),
	)
	r.metrics.Reconciled(ctx, string(source), res.RspCode)
	log.Info("gateway callback reconciled",
		zap.String("order_id", res.OrderID.String()),
		zap.String("rsp_code", res.RspCode),
		zap.Bool("success", res.Success),
	)
	return res
}

func (r *reconciler) reconcile(ctx context.Context, log *zap.Logger, params url.Values, source Source) ReconcileResult {
	cb, err := ParseCallback(params)
	if err != nil {
		log.Warn("malformed gateway callback", zap.Error(err))
		return ReconcileResult{RspCode: RspUnknown, Message: "Invalid request"}
	}

	entry := AuditEntry{
		Source:         source,
		ReceivedAt:     r.now().UTC(),
		SignatureValid: r.gateway.VerifySignature(params),
		Params:         flatten(params),
	}
	if !entry.SignatureValid {
		log.Warn("gateway signature mismatch", zap.Bool("strict", r.opts.StrictSignature))
	}

	var res ReconcileResult
	err = r.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := r.resolve(ctx, cb)
		if errors.Is(err, ErrPaymentNotFound) {
			res = ReconcileResult{OrderID: cb.OrderID, RspCode: RspNotFound, Message: "Order not found"}
			return nil
		}
		if err != nil {
			return err
		}

		res, entry.Note, err = r.apply(ctx, p, cb, entry)
		if err != nil {
			return err
		}
		return r.repo.AppendAudit(ctx, p.ID, entry)
	})
	if err != nil {
		log.Error("reconciliation aborted", zap.Error(err))
		return ReconcileResult{OrderID: cb.OrderID, RspCode: RspUnknown, Message: "Unknown error"}
	}
	return res
}

// resolve locks the payment a callback refers to: exact reference first,
// then the latest attempt for the order embedded in the reference.
func (r *reconciler) resolve(ctx context.Context, cb *Callback) (*Payment, error) {
	p, err := r.repo.FindByTransactionRefForUpdate(ctx, cb.TxnRef)
	if !errors.Is(err, ErrPaymentNotFound) {
		return p, err
	}

	if cb.OrderID != uuid.Nil {
		p, err = r.repo.FindLatestByOrderForUpdate(ctx, cb.OrderID, r.gateway.Name())
		if !errors.Is(err, ErrPaymentNotFound) {
			return p, err
		}
	}

	if !r.opts.LegacyFallbackMatch {
		return nil, ErrPaymentNotFound
	}
	p, err = r.repo.FindLatestPendingForUpdate(ctx, r.gateway.Name())
	if err == nil {
		logger.FromCtx(ctx).Warn("callback matched by legacy fallback",
			zap.String("txn_ref", cb.TxnRef),
			zap.String("payment_id", p.ID.String()),
		)
	}
	return p, err
}

// apply performs the state change for a locked payment and returns the
// acknowledgement along with a note for the audit entry.
func (r *reconciler) apply(ctx context.Context, p *Payment, cb *Callback, entry AuditEntry) (ReconcileResult, string, error) {
	res := ReconcileResult{OrderID: p.OrderID}
	ack := func(success bool, code, msg, note string) (ReconcileResult, string, error) {
		res.Success, res.RspCode, res.Message = success, code, msg
		return res, note, nil
	}

	switch {
	case !entry.SignatureValid && r.opts.StrictSignature:
		return ack(false, RspInvalidChecksum, "Invalid Checksum", "rejected: "+ErrGatewayIntegrity.Error())
	case p.Status == StatusCompleted:
		return ack(true, RspAlreadyConfirmed, "Order already confirmed", "duplicate: payment already completed")
	case p.Status != StatusPending:
		return ack(false, RspAlreadyConfirmed, "Order already confirmed", "duplicate: payment already "+string(p.Status))
	case cb.Amount != p.Amount*100:
		return ack(false, RspInvalidAmount, "Invalid amount",
			fmt.Sprintf("%s: got %d, expected %d", ErrAmountMismatch, cb.Amount, p.Amount*100))
	}

	var notes []string
	if !entry.SignatureValid {
		notes = append(notes, "accepted with "+ErrGatewayIntegrity.Error())
	}

	paidAt := cb.PaidAt(r.now())
	info := order.PaymentInfo{
		TransactionRef: p.TransactionRef,
		PayType:        p.Gateway,
		BankCode:       cb.BankCode,
		PaidAt:         &paidAt,
	}
	if raw, err := json.Marshal(entry.Params); err == nil {
		info.GatewayResponse = raw
	}

	paid, err := r.repo.HasCompletedPayment(ctx, p.OrderID)
	if err != nil {
		return res, "", err
	}

	if !cb.Succeeded() {
		if err := r.repo.MarkFailed(ctx, p.ID, paidAt); err != nil {
			return res, "", err
		}
		notes = append(notes, "payment failed with code "+cb.ResponseCode)
		// A stale attempt must not touch an order another attempt has paid.
		if paid {
			notes = append(notes, "order untouched: "+ErrAlreadyPaid.Error()+" by another attempt")
			return ack(false, RspConfirmed, "Confirm Success", strings.Join(notes, "; "))
		}
		info.PaidAt = nil
		if _, err := r.orders.MarkPaymentFailed(ctx, p.OrderID, info); err != nil {
			return res, "", err
		}
		return ack(false, RspConfirmed, "Confirm Success", strings.Join(notes, "; "))
	}

	if paid {
		notes = append(notes, ErrAlreadyPaid.Error()+" by another attempt")
		return ack(true, RspAlreadyConfirmed, "Order already confirmed", strings.Join(notes, "; "))
	}

	if err := r.repo.MarkCompleted(ctx, p.ID, paidAt); err != nil {
		return res, "", err
	}
	o, err := r.orders.MarkPaid(ctx, p.OrderID, info)
	if err != nil {
		if o == nil {
			return res, "", err
		}
		// Payment is kept; the order waits in its current status for an admin.
		logger.FromCtx(ctx).Error("paid order could not advance",
			zap.String("order_id", p.OrderID.String()),
			zap.Error(err),
		)
		notes = append(notes, "order not advanced: "+err.Error())
	}
	return ack(true, RspConfirmed, "Confirm Success", strings.Join(notes, "; "))
}

// PaymentStatus returns the latest payment attempt for an order the actor
// can see.
func (r *reconciler) PaymentStatus(ctx context.Context, orderID uuid.UUID, actor order.Actor) (*Payment, error) {
	if _, err := r.orders.GetOrder(ctx, orderID, actor); err != nil {
		return nil, err
	}
	return r.repo.GetLatestByOrder(ctx, orderID)
}

func flatten(params url.Values) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
