package payment

import (
	"time"

	"github.com/google/uuid"
)

const GatewayVNPay = "VNPay"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Source tells where an audit entry came from.
type Source string

const (
	SourceCreate Source = "create"
	SourceReturn Source = "return"
	SourceIPN    Source = "ipn"
)

type Payment struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	BuyerID        uint
	Amount         int64
	Gateway        string
	Status         Status
	TransactionRef string
	ResponseData   []AuditEntry
	PaymentDate    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AuditEntry is one gateway round trip. Entries are only ever appended.
type AuditEntry struct {
	Source         Source            `json:"source"`
	ReceivedAt     time.Time         `json:"received_at"`
	SignatureValid bool              `json:"signature_valid"`
	Params         map[string]string `json:"params,omitempty"`
	Note           string            `json:"note,omitempty"`
}

type PaymentRequest struct {
	OrderID   uuid.UUID
	TxnRef    string
	Amount    int64
	OrderInfo string
	ClientIP  string
	BankCode  string
	CreatedAt time.Time
}

type Intent struct {
	PaymentID      uuid.UUID `json:"payment_id"`
	OrderID        uuid.UUID `json:"order_id"`
	TransactionRef string    `json:"transaction_ref"`
	PaymentURL     string    `json:"payment_url"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Acknowledgement codes understood by VNPay.
const (
	RspConfirmed        = "00"
	RspNotFound         = "01"
	RspAlreadyConfirmed = "02"
	RspInvalidAmount    = "04"
	RspInvalidChecksum  = "97"
	RspUnknown          = "99"
)

type ReconcileResult struct {
	Success bool      `json:"success"`
	OrderID uuid.UUID `json:"order_id"`
	RspCode string    `json:"RspCode"`
	Message string    `json:"Message"`
}
