package order

import (
	"encoding/json"
	"time"

	"clothstore-be/internal/inventory"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusProcessing OrderStatus = "processing"
	StatusShipping   OrderStatus = "shipping"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

type PaymentMethod string

const (
	PaymentMethodCash    PaymentMethod = "cash"
	PaymentMethodGateway PaymentMethod = "gateway"
)

func (m PaymentMethod) IsValid() bool {
	return m == PaymentMethodCash || m == PaymentMethodGateway
}

// LineItem freezes the price a buyer agreed to at checkout.
type LineItem struct {
	ProductID   uuid.UUID
	ProductName string
	Color       string
	Size        string
	Quantity    int
	UnitPrice   int64
}

type ShippingAddress struct {
	FullName string
	Phone    string
	Province string
	District string
	Ward     string
	Street   string
}

// PaymentInfo is written only by payment reconciliation.
type PaymentInfo struct {
	TransactionRef  string          `json:"transaction_ref,omitempty"`
	PayType         string          `json:"pay_type,omitempty"`
	BankCode        string          `json:"bank_code,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	GatewayResponse json.RawMessage `json:"gateway_response,omitempty"`
}

type Order struct {
	ID            uuid.UUID
	BuyerID       uint
	Items         []LineItem
	Address       ShippingAddress
	ShippingFee   int64
	TotalAmount   int64
	PaymentMethod PaymentMethod
	Status        OrderStatus
	PaymentInfo   PaymentInfo
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StockLines converts the order's items into ledger lines.
func (o *Order) StockLines() []inventory.Line {
	lines := make([]inventory.Line, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, inventory.Line{
			ProductID: it.ProductID,
			Color:     it.Color,
			Size:      it.Size,
			Quantity:  it.Quantity,
		})
	}
	return lines
}

const (
	RoleAdmin  = "ADMIN"
	RoleUser   = "USER"
	RoleSystem = "SYSTEM"
)

// Actor is whoever asks for a change: a buyer, an admin, or the system
// itself when a payment callback drives the order.
type Actor struct {
	UserID uint
	Role   string
}

func (a Actor) IsPrivileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

// SystemActor is used for transitions no user asked for.
var SystemActor = Actor{Role: RoleSystem}

type CreateOrderItemInput struct {
	ProductID uuid.UUID
	Color     string
	Size      string
	Quantity  int
	UnitPrice int64
}

type CreateOrderInput struct {
	BuyerID       uint
	Items         []CreateOrderItemInput
	Address       ShippingAddress
	ShippingFee   int64
	TotalAmount   int64
	PaymentMethod PaymentMethod
}

type OrderFilter struct {
	BuyerID   *uint
	Status    *OrderStatus
	Ascending bool
	Limit     int32
	Offset    int32
}
