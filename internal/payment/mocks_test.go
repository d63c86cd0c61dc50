package payment

import (
	"context"
	"net/url"
	"time"

	"clothstore-be/internal/order"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// --- Mocks ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, p *Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockRepository) GetLatestByOrder(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockRepository) FindByTransactionRefForUpdate(ctx context.Context, ref string) (*Payment, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockRepository) FindLatestByOrderForUpdate(ctx context.Context, orderID uuid.UUID, gateway string) (*Payment, error) {
	args := m.Called(ctx, orderID, gateway)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockRepository) FindLatestPendingForUpdate(ctx context.Context, gateway string) (*Payment, error) {
	args := m.Called(ctx, gateway)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockRepository) MarkCompleted(ctx context.Context, id uuid.UUID, paidAt time.Time) error {
	args := m.Called(ctx, id, paidAt)
	return args.Error(0)
}

func (m *MockRepository) MarkFailed(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockRepository) AppendAudit(ctx context.Context, id uuid.UUID, entry AuditEntry) error {
	args := m.Called(ctx, id, entry)
	return args.Error(0)
}

func (m *MockRepository) HasCompletedPayment(ctx context.Context, orderID uuid.UUID) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

type MockOrders struct {
	mock.Mock
}

func (m *MockOrders) GetOrder(ctx context.Context, orderID uuid.UUID, actor order.Actor) (*order.Order, error) {
	args := m.Called(ctx, orderID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrders) MarkPaid(ctx context.Context, orderID uuid.UUID, info order.PaymentInfo) (*order.Order, error) {
	args := m.Called(ctx, orderID, info)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrders) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, info order.PaymentInfo) (*order.Order, error) {
	args := m.Called(ctx, orderID, info)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

type stubGateway struct {
	valid bool
}

func (stubGateway) Name() string { return GatewayVNPay }

func (stubGateway) BuildPaymentURL(req PaymentRequest) (string, time.Time, error) {
	return "https://pay.test/?vnp_TxnRef=" + req.TxnRef, req.CreatedAt.Add(intentTTL), nil
}

func (g stubGateway) VerifySignature(url.Values) bool { return g.valid }

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
