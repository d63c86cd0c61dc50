package order

import (
	"context"

	"clothstore-be/internal/catalog"
	"clothstore-be/internal/inventory"
	"clothstore-be/internal/notify"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// --- Mocks ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, o *Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to OrderStatus) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}

func (m *MockRepository) UpdatePaymentInfo(ctx context.Context, id uuid.UUID, info PaymentInfo) error {
	args := m.Called(ctx, id, info)
	return args.Error(0)
}

func (m *MockRepository) List(ctx context.Context, filter OrderFilter) ([]*Order, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Order), args.Error(1)
}

type MockVariants struct {
	mock.Mock
}

func (m *MockVariants) GetVariant(ctx context.Context, productID uuid.UUID, key catalog.VariantKey) (*catalog.Variant, error) {
	args := m.Called(ctx, productID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Variant), args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Check(ctx context.Context, lines []inventory.Line) error {
	args := m.Called(ctx, lines)
	return args.Error(0)
}

func (m *MockLedger) Reserve(ctx context.Context, lines []inventory.Line) error {
	args := m.Called(ctx, lines)
	return args.Error(0)
}

func (m *MockLedger) Release(ctx context.Context, lines []inventory.Line) (inventory.ReleaseReport, error) {
	args := m.Called(ctx, lines)
	return args.Get(0).(inventory.ReleaseReport), args.Error(1)
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Notify(ctx context.Context, userID uint, event notify.Event) error {
	args := m.Called(ctx, userID, event)
	return args.Error(0)
}

// passthroughTx runs fn without a database transaction, so after-commit
// hooks fire immediately.
type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
