package httpapi

import (
	"context"
	"net/url"

	"clothstore-be/internal/catalog"
	"clothstore-be/internal/order"
	"clothstore-be/internal/payment"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, input order.CreateOrderInput) (*order.Order, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) AdvanceStatus(ctx context.Context, orderID uuid.UUID, target order.OrderStatus, actor order.Actor) (*order.Order, error) {
	args := m.Called(ctx, orderID, target, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, actor order.Actor) (*order.Order, error) {
	args := m.Called(ctx, orderID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, orderID uuid.UUID, actor order.Actor) (*order.Order, error) {
	args := m.Called(ctx, orderID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) ListOrders(ctx context.Context, filter order.OrderFilter, actor order.Actor) ([]*order.Order, error) {
	args := m.Called(ctx, filter, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*order.Order), args.Error(1)
}

func (m *MockOrderService) MarkPaid(ctx context.Context, orderID uuid.UUID, info order.PaymentInfo) (*order.Order, error) {
	args := m.Called(ctx, orderID, info)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, info order.PaymentInfo) (*order.Order, error) {
	args := m.Called(ctx, orderID, info)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) CreatePaymentIntent(ctx context.Context, orderID uuid.UUID, amount int64, buyer order.Actor, clientIP string) (*payment.Intent, error) {
	args := m.Called(ctx, orderID, amount, buyer, clientIP)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Intent), args.Error(1)
}

func (m *MockReconciler) Reconcile(ctx context.Context, params url.Values, source payment.Source) payment.ReconcileResult {
	args := m.Called(ctx, params, source)
	return args.Get(0).(payment.ReconcileResult)
}

func (m *MockReconciler) PaymentStatus(ctx context.Context, orderID uuid.UUID, actor order.Actor) (*payment.Payment, error) {
	args := m.Called(ctx, orderID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) CreateProduct(ctx context.Context, p *catalog.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockCatalog) GetVariant(ctx context.Context, productID uuid.UUID, key catalog.VariantKey) (*catalog.Variant, error) {
	args := m.Called(ctx, productID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Variant), args.Error(1)
}

func (m *MockCatalog) AdjustStock(ctx context.Context, productID uuid.UUID, key catalog.VariantKey, delta int) error {
	args := m.Called(ctx, productID, key, delta)
	return args.Error(0)
}
