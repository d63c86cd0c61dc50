package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"clothstore-be/internal/config"
	"clothstore-be/internal/logger"

	"github.com/google/uuid"
)

const (
	vnpVersion    = "2.1.0"
	vnpDateLayout = "20060102150405"
	refPrefix     = "VNP"
	intentTTL     = 15 * time.Minute
	successCode   = "00"
	refNonceBytes = 3
)

var vietnam = loadVietnamLocation()

func loadVietnamLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		return time.FixedZone("GMT+7", 7*60*60)
	}
	return loc
}

type vnpayGateway struct {
	tmnCode    string
	hashSecret []byte
	payURL     string
	returnURL  string
}

func NewVNPayGateway(cfg config.VNPayConfig) Gateway {
	if cfg.TmnCode == "" || cfg.HashSecret == "" {
		logger.L().Warn("VNPay terminal code or hash secret is empty")
	}
	return &vnpayGateway{
		tmnCode:    cfg.TmnCode,
		hashSecret: []byte(cfg.HashSecret),
		payURL:     cfg.PayURL,
		returnURL:  cfg.ReturnURL,
	}
}

func (g *vnpayGateway) Name() string { return GatewayVNPay }

func (g *vnpayGateway) BuildPaymentURL(req PaymentRequest) (string, time.Time, error) {
	if req.TxnRef == "" || req.Amount <= 0 {
		return "", time.Time{}, fmt.Errorf("%w: reference and positive amount are required", ErrInvalidPayload)
	}

	created := req.CreatedAt.In(vietnam)
	expires := created.Add(intentTTL)

	orderInfo := req.OrderInfo
	if orderInfo == "" {
		orderInfo = "Thanh toan don hang " + req.OrderID.String()
	}

	params := url.Values{}
	params.Set("vnp_Version", vnpVersion)
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", g.tmnCode)
	params.Set("vnp_Locale", "vn")
	params.Set("vnp_CurrCode", "VND")
	params.Set("vnp_TxnRef", req.TxnRef)
	params.Set("vnp_OrderInfo", orderInfo)
	params.Set("vnp_OrderType", "billpayment")
	params.Set("vnp_Amount", strconv.FormatInt(req.Amount*100, 10))
	params.Set("vnp_ReturnUrl", withOrderID(g.returnURL, req.OrderID))
	params.Set("vnp_IpAddr", NormalizeIP(req.ClientIP))
	params.Set("vnp_CreateDate", created.Format(vnpDateLayout))
	params.Set("vnp_ExpireDate", expires.Format(vnpDateLayout))
	if req.BankCode != "" {
		params.Set("vnp_BankCode", req.BankCode)
	}

	params.Set("vnp_SecureHash", g.sign(params))
	return g.payURL + "?" + params.Encode(), expires, nil
}

// VerifySignature recomputes the HMAC over every vnp_ parameter except the
// hash itself and compares it with vnp_SecureHash.
func (g *vnpayGateway) VerifySignature(params url.Values) bool {
	got := strings.ToLower(params.Get("vnp_SecureHash"))
	if got == "" {
		return false
	}
	return hmac.Equal([]byte(got), []byte(g.sign(params)))
}

// sign hashes the sorted, form-encoded vnp_ parameters.
func (g *vnpayGateway) sign(params url.Values) string {
	signed := url.Values{}
	for k, v := range params {
		if !strings.HasPrefix(k, "vnp_") || k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		if len(v) == 0 || v[0] == "" {
			continue
		}
		signed.Set(k, v[0])
	}

	mac := hmac.New(sha512.New, g.hashSecret)
	mac.Write([]byte(signed.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

func withOrderID(returnURL string, orderID uuid.UUID) string {
	sep := "?"
	if strings.Contains(returnURL, "?") {
		sep = "&"
	}
	return returnURL + sep + "orderId=" + orderID.String()
}

// NewTransactionRef embeds the order id so a callback can be traced back to
// its order even when the payment row cannot be found by reference. The
// random tail keeps two attempts started in the same second apart.
func NewTransactionRef(orderID uuid.UUID, at time.Time) string {
	nonce := uuid.New()
	return refPrefix + hex.EncodeToString(orderID[:]) + at.In(vietnam).Format("150405") + hex.EncodeToString(nonce[:refNonceBytes])
}

func ParseTransactionRef(ref string) (uuid.UUID, error) {
	rest, ok := strings.CutPrefix(ref, refPrefix)
	if !ok || len(rest) < 32 {
		return uuid.Nil, fmt.Errorf("%w: malformed transaction reference %q", ErrInvalidPayload, ref)
	}
	id, err := uuid.Parse(rest[:32])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed transaction reference %q", ErrInvalidPayload, ref)
	}
	return id, nil
}

// NormalizeIP strips the IPv4-mapped IPv6 prefix. VNPay rejects empty
// addresses, so loopback is used when nothing is known.
func NormalizeIP(ip string) string {
	ip = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ip), "::ffff:"))
	if ip == "" {
		return "127.0.0.1"
	}
	return ip
}

// Callback is the parsed form of a VNPay return redirect or IPN call.
type Callback struct {
	TxnRef            string
	ResponseCode      string
	TransactionStatus string
	TransactionNo     string
	BankCode          string
	CardType          string
	PayDate           string
	Amount            int64
	OrderID           uuid.UUID
}

func ParseCallback(params url.Values) (*Callback, error) {
	cb := &Callback{
		TxnRef:            strings.TrimSpace(params.Get("vnp_TxnRef")),
		ResponseCode:      strings.TrimSpace(params.Get("vnp_ResponseCode")),
		TransactionStatus: params.Get("vnp_TransactionStatus"),
		TransactionNo:     params.Get("vnp_TransactionNo"),
		BankCode:          params.Get("vnp_BankCode"),
		CardType:          params.Get("vnp_CardType"),
		PayDate:           params.Get("vnp_PayDate"),
	}
	if cb.TxnRef == "" {
		return nil, fmt.Errorf("%w: missing vnp_TxnRef", ErrInvalidPayload)
	}
	if cb.ResponseCode == "" {
		return nil, fmt.Errorf("%w: missing vnp_ResponseCode", ErrInvalidPayload)
	}

	amount, err := strconv.ParseInt(params.Get("vnp_Amount"), 10, 64)
	if err != nil || amount < 0 {
		return nil, fmt.Errorf("%w: bad vnp_Amount %q", ErrInvalidPayload, params.Get("vnp_Amount"))
	}
	cb.Amount = amount

	if id, err := uuid.Parse(params.Get("orderId")); err == nil {
		cb.OrderID = id
	} else if id, err := ParseTransactionRef(cb.TxnRef); err == nil {
		cb.OrderID = id
	}
	return cb, nil
}

// Succeeded reports the gateway's success sentinel. When the transaction
// status is present it has to agree.
func (c *Callback) Succeeded() bool {
	if c.ResponseCode != successCode {
		return false
	}
	return c.TransactionStatus == "" || c.TransactionStatus == successCode
}

// PaidAt parses vnp_PayDate, falling back to now.
func (c *Callback) PaidAt(now time.Time) time.Time {
	if t, err := time.ParseInLocation(vnpDateLayout, c.PayDate, vietnam); err == nil {
		return t.UTC()
	}
	return now.UTC()
}
