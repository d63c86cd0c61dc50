//go:build integration

package payment

import (
	"context"
	"database/sql"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"clothstore-be/internal/catalog"
	"clothstore-be/internal/db"
	"clothstore-be/internal/inventory"
	"clothstore-be/internal/notify"
	"clothstore-be/internal/order"
	"clothstore-be/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *countingSink) Notify(_ context.Context, _ uint, e notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type paymentStack struct {
	db         *sql.DB
	catalog    catalog.Repository
	orders     order.Service
	reconciler Reconciler
	gateway    *vnpayGateway
	sink       *countingSink
}

func newPaymentStack(t *testing.T) *paymentStack {
	t.Helper()
	database := testutil.StartPostgres(t)
	tx := db.NewTxManager(database)
	cat := catalog.NewRepository(database)
	sink := &countingSink{}
	orders := order.NewService(order.NewRepository(database), cat, inventory.NewLedger(cat, tx), tx, sink, nil)
	gw := testGateway().(*vnpayGateway)

	return &paymentStack{
		db:         database,
		catalog:    cat,
		orders:     orders,
		reconciler: NewReconciler(NewRepository(database), orders, gw, tx, nil, Options{}),
		gateway:    gw,
		sink:       sink,
	}
}

var shopper = order.Actor{UserID: 42, Role: order.RoleUser}

func (s *paymentStack) gatewayOrder(t *testing.T, stock int) (*order.Order, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	p := &catalog.Product{
		Name:     "Quan jean",
		Price:    250000,
		Variants: []catalog.Variant{{Color: "Black", Size: "32", AvailableQuantity: stock}},
	}
	require.NoError(t, s.catalog.CreateProduct(ctx, p))

	o, err := s.orders.CreateOrder(ctx, order.CreateOrderInput{
		BuyerID: shopper.UserID,
		Items: []order.CreateOrderItemInput{
			{ProductID: p.ID, Color: "Black", Size: "32", Quantity: 1, UnitPrice: 250000},
		},
		Address: order.ShippingAddress{
			FullName: "Tran Thi B",
			Phone:    "0911111111",
			Province: "Ha Noi",
			District: "Hoan Kiem",
			Ward:     "Hang Bac",
			Street:   "12 Hang Bac",
		},
		ShippingFee:   30000,
		TotalAmount:   280000,
		PaymentMethod: order.PaymentMethodGateway,
	})
	require.NoError(t, err)
	return o, p.ID
}

// callback builds a signed gateway notification for intent.
func (s *paymentStack) callback(t *testing.T, intent *Intent, code string, amount int64) url.Values {
	t.Helper()
	params := url.Values{}
	params.Set("vnp_TmnCode", "TMN01")
	params.Set("vnp_TxnRef", intent.TransactionRef)
	params.Set("vnp_Amount", strconv.FormatInt(amount, 10))
	params.Set("vnp_ResponseCode", code)
	params.Set("vnp_TransactionStatus", code)
	params.Set("vnp_TransactionNo", "14231532")
	params.Set("vnp_BankCode", "NCB")
	params.Set("vnp_PayDate", time.Now().In(vietnam).Format(vnpDateLayout))
	params.Set("vnp_OrderInfo", "Thanh toan don hang "+intent.OrderID.String())
	params.Set("vnp_SecureHash", s.gateway.sign(params))
	return params
}

func (s *paymentStack) variantStock(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow(
		`SELECT available_quantity FROM product_variants WHERE product_id = $1`, productID,
	).Scan(&n))
	return n
}

func TestReconcile_ReturnAndIPNForSameTransaction(t *testing.T) {
	s := newPaymentStack(t)
	ctx := context.Background()
	o, productID := s.gatewayOrder(t, 2)

	intent, err := s.reconciler.CreatePaymentIntent(ctx, o.ID, 0, shopper, "::ffff:10.0.0.1")
	require.NoError(t, err)
	assert.Contains(t, intent.PaymentURL, "vnp_Amount=28000000")

	params := s.callback(t, intent, "00", 28000000)

	first := s.reconciler.Reconcile(ctx, params, SourceReturn)
	assert.True(t, first.Success)
	assert.Equal(t, RspConfirmed, first.RspCode)
	assert.Equal(t, o.ID, first.OrderID)

	second := s.reconciler.Reconcile(ctx, params, SourceIPN)
	assert.True(t, second.Success)
	assert.Equal(t, RspAlreadyConfirmed, second.RspCode)

	p, err := s.reconciler.PaymentStatus(ctx, o.ID, shopper)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, p.Status)
	require.NotNil(t, p.PaymentDate)
	require.Len(t, p.ResponseData, 3)
	assert.Equal(t, SourceCreate, p.ResponseData[0].Source)
	assert.Equal(t, SourceReturn, p.ResponseData[1].Source)
	assert.Equal(t, SourceIPN, p.ResponseData[2].Source)
	assert.True(t, p.ResponseData[2].SignatureValid)
	assert.Equal(t, "10.0.0.1", p.ResponseData[0].Params["ip_addr"])

	got, err := s.orders.GetOrder(ctx, o.ID, shopper)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, got.Status)
	assert.Equal(t, intent.TransactionRef, got.PaymentInfo.TransactionRef)
	assert.Equal(t, "NCB", got.PaymentInfo.BankCode)

	assert.Equal(t, 1, s.variantStock(t, productID), "stock is reserved once")

	assert.Eventually(t, func() bool { return s.sink.count() == 2 }, 2*time.Second, 20*time.Millisecond)
	assert.Never(t, func() bool { return s.sink.count() > 2 }, 300*time.Millisecond, 20*time.Millisecond)

	_, err = s.reconciler.CreatePaymentIntent(ctx, o.ID, 0, shopper, "")
	assert.ErrorIs(t, err, ErrOrderNotPayable)
}

func TestReconcile_StaleFailureKeepsPaidOrder(t *testing.T) {
	s := newPaymentStack(t)
	ctx := context.Background()
	o, productID := s.gatewayOrder(t, 2)

	paidIntent, err := s.reconciler.CreatePaymentIntent(ctx, o.ID, 0, shopper, "10.0.0.3")
	require.NoError(t, err)
	staleIntent, err := s.reconciler.CreatePaymentIntent(ctx, o.ID, 0, shopper, "10.0.0.3")
	require.NoError(t, err)
	require.NotEqual(t, paidIntent.TransactionRef, staleIntent.TransactionRef)

	res := s.reconciler.Reconcile(ctx, s.callback(t, paidIntent, "00", 28000000), SourceIPN)
	require.True(t, res.Success)

	res = s.reconciler.Reconcile(ctx, s.callback(t, staleIntent, "24", 28000000), SourceIPN)
	assert.False(t, res.Success)
	assert.Equal(t, RspConfirmed, res.RspCode)

	statuses := map[string]Status{}
	rows, err := s.db.Query(`SELECT transaction_ref, status FROM payments WHERE order_id = $1`, o.ID)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var (
			ref    string
			status Status
		)
		require.NoError(t, rows.Scan(&ref, &status))
		statuses[ref] = status
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, map[string]Status{
		paidIntent.TransactionRef:  StatusCompleted,
		staleIntent.TransactionRef: StatusFailed,
	}, statuses)

	got, err := s.orders.GetOrder(ctx, o.ID, shopper)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, got.Status)
	assert.Equal(t, paidIntent.TransactionRef, got.PaymentInfo.TransactionRef)
	assert.Equal(t, 1, s.variantStock(t, productID), "reservation is kept")

	assert.Eventually(t, func() bool { return s.sink.count() == 2 }, 2*time.Second, 20*time.Millisecond)
	assert.Never(t, func() bool { return s.sink.count() > 2 }, 300*time.Millisecond, 20*time.Millisecond)
}

func TestReconcile_GatewayDeclined(t *testing.T) {
	s := newPaymentStack(t)
	ctx := context.Background()
	o, productID := s.gatewayOrder(t, 2)

	intent, err := s.reconciler.CreatePaymentIntent(ctx, o.ID, 280000, shopper, "10.0.0.2")
	require.NoError(t, err)

	res := s.reconciler.Reconcile(ctx, s.callback(t, intent, "24", 28000000), SourceIPN)
	assert.False(t, res.Success)
	assert.Equal(t, RspConfirmed, res.RspCode)

	p, err := s.reconciler.PaymentStatus(ctx, o.ID, shopper)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, p.Status)

	got, err := s.orders.GetOrder(ctx, o.ID, shopper)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.Equal(t, 2, s.variantStock(t, productID))
}

func TestReconcile_TamperedAmount(t *testing.T) {
	s := newPaymentStack(t)
	ctx := context.Background()
	o, _ := s.gatewayOrder(t, 2)

	intent, err := s.reconciler.CreatePaymentIntent(ctx, o.ID, 0, shopper, "")
	require.NoError(t, err)

	res := s.reconciler.Reconcile(ctx, s.callback(t, intent, "00", 100), SourceIPN)
	assert.Equal(t, RspInvalidAmount, res.RspCode)

	p, err := s.reconciler.PaymentStatus(ctx, o.ID, shopper)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	require.Len(t, p.ResponseData, 2)
	assert.Contains(t, p.ResponseData[1].Note, ErrAmountMismatch.Error())

	got, err := s.orders.GetOrder(ctx, o.ID, shopper)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)
}

func TestReconcile_UnknownReference(t *testing.T) {
	s := newPaymentStack(t)

	params := url.Values{}
	params.Set("vnp_TxnRef", NewTransactionRef(uuid.New(), time.Now()))
	params.Set("vnp_Amount", "100")
	params.Set("vnp_ResponseCode", "00")
	params.Set("vnp_SecureHash", s.gateway.sign(params))

	res := s.reconciler.Reconcile(context.Background(), params, SourceIPN)
	assert.Equal(t, RspNotFound, res.RspCode)
	assert.False(t, res.Success)
}
