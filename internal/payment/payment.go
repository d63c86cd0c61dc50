package payment

import (
	"net/url"
	"time"
)

// Gateway signs outgoing payment redirects and checks the signature on what
// comes back.
type Gateway interface {
	Name() string
	BuildPaymentURL(req PaymentRequest) (paymentURL string, expiresAt time.Time, err error)
	VerifySignature(params url.Values) bool
}
