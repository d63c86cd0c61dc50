package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clothstore-be/internal/auth"
	"clothstore-be/internal/catalog"
	"clothstore-be/internal/inventory"
	"clothstore-be/internal/middleware"
	"clothstore-be/internal/order"
	"clothstore-be/internal/payment"
	"clothstore-be/internal/payment/webhook"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "router-secret"

type fixture struct {
	orders   *MockOrderService
	payments *MockReconciler
	products *MockCatalog
	handler  http.Handler
	pingErr  error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		orders:   new(MockOrderService),
		payments: new(MockReconciler),
		products: new(MockCatalog),
	}
	f.handler = NewRouter(Deps{
		Orders:   NewOrderHandlers(f.orders),
		Payments: NewPaymentHandlers(f.payments),
		Products: NewProductHandlers(f.products),
		Webhooks: webhook.NewWebhookHandler(f.payments),
		Auth:     middleware.NewAuthMiddleware(testSecret),
		CORS:     middleware.NewCORS("http://localhost:3000"),
		Ping:     func(context.Context) error { return f.pingErr },
	})
	return f
}

func token(t *testing.T, userID uint, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (f *fixture) do(t *testing.T, method, target, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

var buyer = order.Actor{UserID: 7, Role: order.RoleUser}

func sampleOrder(id uuid.UUID, status order.OrderStatus) *order.Order {
	return &order.Order{
		ID:      id,
		BuyerID: 7,
		Items: []order.LineItem{{
			ProductID: uuid.MustParse("4b6f0c7e-2a38-4c53-9d7e-1f2a3b4c5d6e"),
			Color:     "Red",
			Size:      "M",
			Quantity:  2,
			UnitPrice: 150000,
		}},
		ShippingFee:   30000,
		TotalAmount:   330000,
		PaymentMethod: order.PaymentMethodGateway,
		Status:        status,
	}
}

func TestRouter_Healthz(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodGet, "/healthz", "", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "ok")
	})

	t.Run("Database Down", func(t *testing.T) {
		f := newFixture(t)
		f.pingErr = errors.New("connection refused")
		w := f.do(t, http.MethodGet, "/healthz", "", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestRouter_RequiresUser(t *testing.T) {
	f := newFixture(t)

	for _, target := range []string{"/orders", "/payments/vnpay/" + uuid.NewString()} {
		w := f.do(t, http.MethodGet, target, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, target)
	}
	f.orders.AssertNotCalled(t, "ListOrders", mock.Anything, mock.Anything, mock.Anything)
}

func TestRouter_CreateOrder(t *testing.T) {
	productID := "4b6f0c7e-2a38-4c53-9d7e-1f2a3b4c5d6e"
	body := `{
		"items": [{"product_id": "` + productID + `", "color": "Red", "size": "M", "quantity": 2, "unit_price": 150000}],
		"shipping_address": {"full_name": "Nguyen Van A", "phone": "0900000000", "province": "HCM", "district": "1", "ward": "Ben Nghe", "street": "1 Le Loi"},
		"shipping_fee": 30000,
		"total_amount": 330000,
		"payment_method": "Gateway"
	}`

	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()
		f.orders.On("CreateOrder", mock.Anything, mock.MatchedBy(func(in order.CreateOrderInput) bool {
			return in.BuyerID == 7 &&
				len(in.Items) == 1 &&
				in.Items[0].ProductID.String() == productID &&
				in.PaymentMethod == order.PaymentMethodGateway &&
				in.Address.Ward == "Ben Nghe"
		})).Return(sampleOrder(id, order.StatusPending), nil)

		w := f.do(t, http.MethodPost, "/orders", body, token(t, 7, "user"))

		assert.Equal(t, http.StatusCreated, w.Code)
		var resp orderResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, id, resp.ID)
		assert.Equal(t, order.StatusPending, resp.Status)
		assert.Equal(t, []order.OrderStatus{order.StatusConfirmed, order.StatusCancelled}, resp.NextStatuses)
		f.orders.AssertExpectations(t)
	})

	t.Run("Insufficient Stock", func(t *testing.T) {
		f := newFixture(t)
		stockErr := &inventory.InsufficientStockError{
			ProductID:   uuid.MustParse(productID),
			ProductName: "Ao thun",
			Color:       "Red",
			Size:        "M",
			Requested:   2,
			Available:   1,
		}
		f.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(nil, stockErr)

		w := f.do(t, http.MethodPost, "/orders", body, token(t, 7, "user"))

		assert.Equal(t, http.StatusConflict, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, "insufficient_stock", resp.Error)
		assert.EqualValues(t, 1, resp.Details["available"])
		assert.EqualValues(t, 2, resp.Details["requested"])
	})

	t.Run("Bad Product ID", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodPost, "/orders",
			`{"items":[{"product_id":"nope","color":"Red","size":"M","quantity":1}],"payment_method":"cash"}`,
			token(t, 7, "user"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "items[0].product_id", decodeError(t, w).Field)
		f.orders.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	})

	t.Run("Unknown Field", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodPost, "/orders", `{"status":"delivered"}`, token(t, 7, "user"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRouter_ListOrders(t *testing.T) {
	f := newFixture(t)
	admin := order.Actor{UserID: 1, Role: order.RoleAdmin}
	f.orders.On("ListOrders", mock.Anything, mock.MatchedBy(func(fl order.OrderFilter) bool {
		return fl.Status != nil && *fl.Status == order.StatusShipping &&
			fl.BuyerID != nil && *fl.BuyerID == 7 &&
			fl.Ascending && fl.Limit == 10 && fl.Offset == 20
	}), admin).Return([]*order.Order{sampleOrder(uuid.New(), order.StatusShipping)}, nil)

	w := f.do(t, http.MethodGet, "/orders?status=SHIPPING&user_id=7&sort=asc&limit=10&offset=20", "", token(t, 1, "admin"))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Orders []orderResponse `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Orders, 1)
	f.orders.AssertExpectations(t)

	t.Run("Bad Limit", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/orders?limit=ten", "", token(t, 1, "admin"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRouter_GetOrder(t *testing.T) {
	t.Run("Invalid ID", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodGet, "/orders/not-a-uuid", "", token(t, 7, "user"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Not Found", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()
		f.orders.On("GetOrder", mock.Anything, id, buyer).Return(nil, order.ErrOrderNotFound)

		w := f.do(t, http.MethodGet, "/orders/"+id.String(), "", token(t, 7, "user"))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", decodeError(t, w).Error)
	})
}

func TestRouter_AdvanceStatus(t *testing.T) {
	admin := order.Actor{UserID: 1, Role: order.RoleAdmin}

	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()
		f.orders.On("AdvanceStatus", mock.Anything, id, order.StatusShipping, admin).
			Return(sampleOrder(id, order.StatusShipping), nil)

		w := f.do(t, http.MethodPatch, "/orders/"+id.String()+"/status", `{"status":" Shipping "}`, token(t, 1, "ADMIN"))

		assert.Equal(t, http.StatusOK, w.Code)
		f.orders.AssertExpectations(t)
	})

	t.Run("Invalid Transition", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()
		f.orders.On("AdvanceStatus", mock.Anything, id, order.StatusPending, admin).
			Return(nil, &order.InvalidTransitionError{
				From:    order.StatusDelivered,
				To:      order.StatusPending,
				Allowed: nil,
			})

		w := f.do(t, http.MethodPatch, "/orders/"+id.String()+"/status", `{"status":"pending"}`, token(t, 1, "ADMIN"))

		assert.Equal(t, http.StatusConflict, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, "invalid_transition", resp.Error)
		assert.Equal(t, "delivered", resp.Details["from"])
	})

	t.Run("Forbidden", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()
		f.orders.On("AdvanceStatus", mock.Anything, id, order.StatusShipping, buyer).
			Return(nil, order.ErrForbidden)

		w := f.do(t, http.MethodPatch, "/orders/"+id.String()+"/status", `{"status":"shipping"}`, token(t, 7, "user"))

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestRouter_CancelOrder(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()
		f.orders.On("CancelOrder", mock.Anything, id, buyer).Return(sampleOrder(id, order.StatusCancelled), nil)

		w := f.do(t, http.MethodPost, "/orders/"+id.String()+"/cancel", "", token(t, 7, "user"))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp orderResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.NextStatuses)
	})

	t.Run("Conflict", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()
		f.orders.On("CancelOrder", mock.Anything, id, buyer).Return(nil, order.ErrConflict)

		w := f.do(t, http.MethodPost, "/orders/"+id.String()+"/cancel", "", token(t, 7, "user"))

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestRouter_Payments(t *testing.T) {
	t.Run("Create Intent", func(t *testing.T) {
		f := newFixture(t)
		orderID := uuid.New()
		intent := &payment.Intent{
			PaymentID:      uuid.New(),
			OrderID:        orderID,
			TransactionRef: "VNPref",
			PaymentURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?vnp_TxnRef=VNPref",
		}
		f.payments.On("CreatePaymentIntent", mock.Anything, orderID, int64(0), buyer, "192.0.2.1").Return(intent, nil)

		w := f.do(t, http.MethodPost, "/payments/vnpay", `{"order_id":"`+orderID.String()+`"}`, token(t, 7, "user"))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), `"payment_url"`)
		f.payments.AssertExpectations(t)
	})

	t.Run("Amount Mismatch", func(t *testing.T) {
		f := newFixture(t)
		orderID := uuid.New()
		f.payments.On("CreatePaymentIntent", mock.Anything, orderID, int64(5), buyer, mock.Anything).
			Return(nil, payment.ErrAmountMismatch)

		w := f.do(t, http.MethodPost, "/payments/vnpay", `{"order_id":"`+orderID.String()+`","amount":5}`, token(t, 7, "user"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Already Paid", func(t *testing.T) {
		f := newFixture(t)
		orderID := uuid.New()
		f.payments.On("CreatePaymentIntent", mock.Anything, orderID, int64(0), buyer, mock.Anything).
			Return(nil, payment.ErrAlreadyPaid)

		w := f.do(t, http.MethodPost, "/payments/vnpay", `{"order_id":"`+orderID.String()+`"}`, token(t, 7, "user"))

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Status", func(t *testing.T) {
		f := newFixture(t)
		orderID := uuid.New()
		f.payments.On("PaymentStatus", mock.Anything, orderID, buyer).Return(&payment.Payment{
			ID:      uuid.New(),
			OrderID: orderID,
			Amount:  330000,
			Gateway: payment.GatewayVNPay,
			Status:  payment.StatusCompleted,
		}, nil)

		w := f.do(t, http.MethodGet, "/payments/vnpay/"+orderID.String(), "", token(t, 7, "user"))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp paymentResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, payment.StatusCompleted, resp.Status)
	})

	t.Run("IPN Needs No Token", func(t *testing.T) {
		f := newFixture(t)
		f.payments.On("Reconcile", mock.Anything, mock.Anything, payment.SourceIPN).
			Return(payment.ReconcileResult{RspCode: payment.RspNotFound, Message: "Order not found"})

		w := f.do(t, http.MethodGet, "/payments/vnpay-ipn?vnp_TxnRef=VNPx&vnp_ResponseCode=00&vnp_Amount=100", "", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"RspCode":"01","Message":"Order not found"}`, w.Body.String())
	})
}

func TestRouter_CreateProduct(t *testing.T) {
	body := `{"name":" Ao thun ","price":150000,"variants":[{"color":"Red","size":"M","available_quantity":5}]}`

	t.Run("Admin", func(t *testing.T) {
		f := newFixture(t)
		f.products.On("CreateProduct", mock.Anything, mock.MatchedBy(func(p *catalog.Product) bool {
			return p.Name == "Ao thun" && len(p.Variants) == 1 && p.Variants[0].AvailableQuantity == 5
		})).Run(func(args mock.Arguments) {
			p := args.Get(1).(*catalog.Product)
			p.ID = uuid.New()
			p.Quantity = 5
		}).Return(nil)

		w := f.do(t, http.MethodPost, "/products", body, token(t, 1, "admin"))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), `"quantity":5`)
		f.products.AssertExpectations(t)
	})

	t.Run("Buyer", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodPost, "/products", body, token(t, 7, "user"))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Negative Stock", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodPost, "/products",
			`{"name":"Ao","variants":[{"color":"Red","size":"M","available_quantity":-1}]}`, token(t, 1, "admin"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "variants[0]", decodeError(t, w).Field)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &order.ValidationError{Field: "items", Message: "required"}, http.StatusBadRequest, "validation_failed"},
		{"payment conflict", payment.ErrPaymentConflict, http.StatusConflict, "conflict"},
		{"not payable", payment.ErrOrderNotPayable, http.StatusConflict, "not_payable"},
		{"variant missing", catalog.ErrVariantNotFound, http.StatusNotFound, "not_found"},
		{"bad quantity", inventory.ErrInvalidQuantity, http.StatusBadRequest, "invalid_request"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Error)
		})
	}

	t.Run("unknown error hides cause", func(t *testing.T) {
		_, body := classify(errors.New("pq: password authentication failed"))
		assert.NotContains(t, body.Message, "pq")
	})
}
