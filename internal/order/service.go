package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clothstore-be/internal/catalog"
	"clothstore-be/internal/db"
	"clothstore-be/internal/inventory"
	"clothstore-be/internal/logger"
	"clothstore-be/internal/metrics"
	"clothstore-be/internal/notify"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("order/service")

type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error)
	AdvanceStatus(ctx context.Context, orderID uuid.UUID, target OrderStatus, actor Actor) (*Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*Order, error)
	ListOrders(ctx context.Context, filter OrderFilter, actor Actor) ([]*Order, error)

	// MarkPaid and MarkPaymentFailed are driven by payment reconciliation,
	// never by a user.
	MarkPaid(ctx context.Context, orderID uuid.UUID, info PaymentInfo) (*Order, error)
	MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, info PaymentInfo) (*Order, error)
}

type VariantReader interface {
	GetVariant(ctx context.Context, productID uuid.UUID, key catalog.VariantKey) (*catalog.Variant, error)
}

type StockLedger interface {
	Check(ctx context.Context, lines []inventory.Line) error
	Reserve(ctx context.Context, lines []inventory.Line) error
	Release(ctx context.Context, lines []inventory.Line) (inventory.ReleaseReport, error)
}

type service struct {
	repo     Repository
	variants VariantReader
	ledger   StockLedger
	tx       db.TxManager
	sink     notify.Sink
	metrics  *metrics.Engine

	now      func() time.Time
	dispatch func(func())
}

func NewService(
	repo Repository,
	variants VariantReader,
	ledger StockLedger,
	tx db.TxManager,
	sink notify.Sink,
	m *metrics.Engine,
) Service {
	if sink == nil {
		sink = notify.LogSink{}
	}
	return &service{
		repo:     repo,
		variants: variants,
		ledger:   ledger,
		tx:       tx,
		sink:     sink,
		metrics:  m,
		now:      time.Now,
		dispatch: func(f func()) { go f() },
	}
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	ctx, span := tracer.Start(ctx, "order.CreateOrder")
	defer span.End()

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateOrder"),
		zap.Uint("user_id", input.BuyerID),
	)
	timer := metrics.StartTimer()

	o, err := s.createOrder(ctx, input)
	s.metrics.Observe(ctx, "CreateOrder", timer, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("create order rejected", zap.Error(err))
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", o.ID.String()))
	log.Info("order created",
		zap.String("order_id", o.ID.String()),
		zap.Int64("total_amount", o.TotalAmount),
	)
	return o, nil
}

func (s *service) createOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	o := &Order{
		BuyerID:       input.BuyerID,
		Address:       trimAddress(input.Address),
		ShippingFee:   input.ShippingFee,
		TotalAmount:   input.TotalAmount,
		PaymentMethod: input.PaymentMethod,
		Status:        StatusPending,
		Items:         make([]LineItem, 0, len(input.Items)),
	}

	for i, item := range input.Items {
		key := catalog.VariantKey{Color: strings.TrimSpace(item.Color), Size: strings.TrimSpace(item.Size)}
		v, err := s.variants.GetVariant(ctx, item.ProductID, key)
		switch {
		case errors.Is(err, catalog.ErrProductNotFound):
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d].product_id", i), Message: "product does not exist", Err: err}
		case errors.Is(err, catalog.ErrVariantNotFound):
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d].variant", i), Message: "variant does not exist", Err: err}
		case err != nil:
			return nil, err
		}

		o.Items = append(o.Items, LineItem{
			ProductID:   item.ProductID,
			ProductName: v.ProductName,
			Color:       key.Color,
			Size:        key.Size,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	// Availability is only checked here. Stock is reserved when the order
	// is confirmed.
	if err := s.ledger.Check(ctx, o.StockLines()); err != nil {
		var stockErr *inventory.InsufficientStockError
		if errors.As(err, &stockErr) {
			return nil, &ValidationError{Field: itemField(o.Items, stockErr), Message: "insufficient stock", Err: err}
		}
		return nil, err
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *service) AdvanceStatus(ctx context.Context, orderID uuid.UUID, target OrderStatus, actor Actor) (*Order, error) {
	if !target.IsValid() {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", target)}
	}
	if target == StatusCancelled {
		return s.CancelOrder(ctx, orderID, actor)
	}

	ctx, span := tracer.Start(ctx, "order.AdvanceStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID.String()),
		attribute.String("order.target_status", string(target)),
	)

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "AdvanceStatus"),
		zap.String("order_id", orderID.String()),
		zap.String("target", string(target)),
		zap.Uint("actor_id", actor.UserID),
	)
	timer := metrics.StartTimer()

	if !actor.IsPrivileged() {
		log.Warn("non privileged actor tried to advance order")
		return nil, fmt.Errorf("%w: only an administrator can move an order to %s", ErrForbidden, target)
	}

	var out *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.step(ctx, o, target); err != nil {
			return err
		}
		out = o
		return nil
	})
	s.metrics.Observe(ctx, "AdvanceStatus", timer, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("advance status failed", zap.Error(err))
		return nil, err
	}

	log.Info("order status advanced")
	return out, nil
}

func (s *service) CancelOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*Order, error) {
	ctx, span := tracer.Start(ctx, "order.CancelOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID.String()))

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CancelOrder"),
		zap.String("order_id", orderID.String()),
		zap.Uint("actor_id", actor.UserID),
		zap.String("actor_role", actor.Role),
	)
	timer := metrics.StartTimer()

	var out *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		if o.Status.IsTerminal() {
			return &InvalidTransitionError{From: o.Status, To: StatusCancelled}
		}

		if !actor.IsPrivileged() {
			if o.BuyerID != actor.UserID {
				return fmt.Errorf("%w: order belongs to another buyer", ErrForbidden)
			}
			if o.Status != StatusPending {
				return fmt.Errorf("%w: a buyer can only cancel a pending order, this one is %s", ErrForbidden, o.Status)
			}
		}

		if err := s.step(ctx, o, StatusCancelled); err != nil {
			return err
		}
		out = o
		return nil
	})
	s.metrics.Observe(ctx, "CancelOrder", timer, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("cancel order failed", zap.Error(err))
		return nil, err
	}

	log.Info("order cancelled")
	return out, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsPrivileged() && o.BuyerID != actor.UserID {
		return nil, fmt.Errorf("%w: cannot access others' orders", ErrForbidden)
	}
	return o, nil
}

// ListOrders scopes non privileged actors to their own orders.
func (s *service) ListOrders(ctx context.Context, filter OrderFilter, actor Actor) ([]*Order, error) {
	if !actor.IsPrivileged() {
		id := actor.UserID
		filter.BuyerID = &id
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", *filter.Status)}
	}
	return s.repo.List(ctx, filter)
}

// MarkPaid records the gateway payment and drives the order to processing
// along legal edges. A pending order is confirmed first, which reserves its
// stock. If that reservation fails the payment info is still kept and the
// order stays pending.
func (s *service) MarkPaid(ctx context.Context, orderID uuid.UUID, info PaymentInfo) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "MarkPaid"),
		zap.String("order_id", orderID.String()),
	)

	var (
		out     *Order
		stepErr error
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		o.PaymentInfo = info
		if err := s.repo.UpdatePaymentInfo(ctx, o.ID, info); err != nil {
			return err
		}

		start := o.Status
		stepErr = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if o.Status == StatusPending {
				if err := s.step(ctx, o, StatusConfirmed); err != nil {
					return err
				}
			}
			if o.Status == StatusConfirmed {
				return s.step(ctx, o, StatusProcessing)
			}
			log.Info("order already past payment stage", zap.String("status", string(o.Status)))
			return nil
		})
		if stepErr != nil {
			o.Status = start
		}
		out = o
		return nil
	})
	if err != nil {
		log.Error("failed to mark order paid", zap.Error(err))
		return nil, err
	}
	if stepErr != nil {
		log.Error("payment recorded but order could not advance", zap.Error(stepErr))
		return out, stepErr
	}
	return out, nil
}

// MarkPaymentFailed records the failed attempt and cancels the order when it
// can still be cancelled, releasing stock if it was reserved.
func (s *service) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, info PaymentInfo) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "MarkPaymentFailed"),
		zap.String("order_id", orderID.String()),
	)

	var out *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		o.PaymentInfo = info
		if err := s.repo.UpdatePaymentInfo(ctx, o.ID, info); err != nil {
			return err
		}

		if CanTransition(o.Status, StatusCancelled) {
			if err := s.step(ctx, o, StatusCancelled); err != nil {
				return err
			}
		} else {
			log.Info("order left as is after failed payment", zap.String("status", string(o.Status)))
		}
		out = o
		return nil
	})
	if err != nil {
		log.Error("failed to apply payment failure", zap.Error(err))
		return nil, err
	}
	return out, nil
}

// step performs one legal transition on a locked order. Stock moves with the
// status write: reserve on pending to confirmed, release when a reserving
// status is cancelled.
func (s *service) step(ctx context.Context, o *Order, target OrderStatus) error {
	from := o.Status
	if err := Transition(o, target); err != nil {
		return err
	}

	if from == StatusPending && target == StatusConfirmed {
		if err := s.ledger.Reserve(ctx, o.StockLines()); err != nil {
			o.Status = from
			if errors.Is(err, inventory.ErrInsufficientStock) {
				s.metrics.ReservationFailed(ctx)
			}
			return err
		}
	}

	if target == StatusCancelled && from.HoldsReservation() {
		report, err := s.ledger.Release(ctx, o.StockLines())
		if err != nil {
			o.Status = from
			return err
		}
		if len(report.Skipped) > 0 {
			logger.FromCtx(ctx).Warn("released order with missing variants",
				zap.String("order_id", o.ID.String()),
				zap.Int("skipped", len(report.Skipped)),
			)
		}
	}

	if err := s.repo.UpdateStatus(ctx, o.ID, from, target); err != nil {
		o.Status = from
		return err
	}
	o.UpdatedAt = s.now()

	s.metrics.Transition(ctx, string(from), string(target))
	s.notifyAfterCommit(ctx, o.ID, o.BuyerID, from, target)
	return nil
}

func (s *service) notifyAfterCommit(ctx context.Context, orderID uuid.UUID, buyerID uint, from, to OrderStatus) {
	event := notify.NewEvent(orderID, buyerID, string(from), string(to), s.now())
	detached := context.WithoutCancel(ctx)

	db.AfterCommit(ctx, func() {
		s.dispatch(func() {
			if err := s.sink.Notify(detached, buyerID, event); err != nil {
				logger.FromCtx(detached).Warn("status notification failed",
					zap.String("order_id", orderID.String()),
					zap.String("new_status", string(to)),
					zap.Error(err),
				)
			}
		})
	})
}

func validateInput(in CreateOrderInput) error {
	if in.BuyerID == 0 {
		return &ValidationError{Field: "buyer", Message: "buyer is required"}
	}
	if len(in.Items) == 0 {
		return &ValidationError{Field: "items", Message: "at least one item is required"}
	}

	for i, item := range in.Items {
		field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }
		switch {
		case item.ProductID == uuid.Nil:
			return &ValidationError{Field: field("product_id"), Message: "is required"}
		case strings.TrimSpace(item.Color) == "":
			return &ValidationError{Field: field("color"), Message: "is required"}
		case strings.TrimSpace(item.Size) == "":
			return &ValidationError{Field: field("size"), Message: "is required"}
		case item.Quantity <= 0:
			return &ValidationError{Field: field("quantity"), Message: "must be positive"}
		case item.UnitPrice <= 0:
			return &ValidationError{Field: field("unit_price"), Message: "must be positive"}
		}
	}

	addr := in.Address
	required := []struct {
		field string
		value string
	}{
		{"address.full_name", addr.FullName},
		{"address.phone", addr.Phone},
		{"address.province", addr.Province},
		{"address.district", addr.District},
		{"address.ward", addr.Ward},
		{"address.street", addr.Street},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Message: "is required"}
		}
	}

	if in.ShippingFee < 0 {
		return &ValidationError{Field: "shipping_fee", Message: "must not be negative"}
	}
	if in.TotalAmount < 0 {
		return &ValidationError{Field: "total_amount", Message: "must not be negative"}
	}
	if !in.PaymentMethod.IsValid() {
		return &ValidationError{Field: "payment_method", Message: fmt.Sprintf("unsupported payment method %q", in.PaymentMethod)}
	}
	return nil
}

func trimAddress(a ShippingAddress) ShippingAddress {
	return ShippingAddress{
		FullName: strings.TrimSpace(a.FullName),
		Phone:    strings.TrimSpace(a.Phone),
		Province: strings.TrimSpace(a.Province),
		District: strings.TrimSpace(a.District),
		Ward:     strings.TrimSpace(a.Ward),
		Street:   strings.TrimSpace(a.Street),
	}
}

func itemField(items []LineItem, stockErr *inventory.InsufficientStockError) string {
	for i, it := range items {
		if it.ProductID == stockErr.ProductID && it.Color == stockErr.Color && it.Size == stockErr.Size {
			return fmt.Sprintf("items[%d].quantity", i)
		}
	}
	return "items"
}
