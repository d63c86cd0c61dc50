package webhook

import (
	"encoding/json"
	"html/template"
	"net/http"

	"clothstore-be/internal/logger"
	"clothstore-be/internal/payment"

	"go.uber.org/zap"
)

// Handler turns both VNPay delivery paths into a single Reconcile call.
type Handler struct {
	Reconciler payment.Reconciler
}

func NewWebhookHandler(reconciler payment.Reconciler) *Handler {
	return &Handler{Reconciler: reconciler}
}

// IPNHandler answers the server-to-server notification. VNPay reads the JSON
// body, so the HTTP status is always 200.
func (h *Handler) IPNHandler(w http.ResponseWriter, r *http.Request) {
	res := payment.ReconcileResult{RspCode: payment.RspUnknown, Message: "Invalid request"}
	if err := r.ParseForm(); err != nil {
		logger.FromCtx(r.Context()).Warn("unreadable IPN payload", zap.Error(err))
	} else {
		res = h.Reconciler.Reconcile(r.Context(), r.Form, payment.SourceIPN)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"RspCode": res.RspCode,
		"Message": res.Message,
	})
}

// ReturnHandler serves the page the buyer lands on after paying.
func (h *Handler) ReturnHandler(w http.ResponseWriter, r *http.Request) {
	res := h.Reconciler.Reconcile(r.Context(), r.URL.Query(), payment.SourceReturn)

	page := resultPage{OrderID: res.OrderID.String()}
	status := http.StatusOK
	switch {
	case res.RspCode == payment.RspUnknown:
		page.Title, page.Heading, page.Class = "Kết quả thanh toán", "Dữ liệu thanh toán không hợp lệ!", "error"
		page.Detail = "Vui lòng quay lại ứng dụng để kiểm tra đơn hàng."
		status = http.StatusBadRequest
		page.OrderID = ""
	case res.RspCode == payment.RspNotFound:
		page.Title, page.Heading, page.Class = "Không tìm thấy đơn hàng", "Không tìm thấy đơn hàng!", "error"
		page.Detail = "Vui lòng quay lại ứng dụng để kiểm tra đơn hàng."
		page.OrderID = ""
	case res.Success:
		page.Title, page.Heading, page.Class = "Thanh toán thành công", "✓ Thanh toán thành công!", "success"
		page.Detail = "Vui lòng quay lại ứng dụng để kiểm tra đơn hàng."
		page.AutoClose = true
	default:
		page.Title, page.Heading, page.Class = "Thanh toán thất bại", "✗ Thanh toán thất bại", "error"
		page.Detail = "Vui lòng quay lại ứng dụng để thử lại."
		page.AutoClose = true
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := resultTemplate.Execute(w, page); err != nil {
		logger.FromCtx(r.Context()).Error("failed to render payment result page", zap.Error(err))
	}
}

type resultPage struct {
	Title     string
	Heading   string
	Class     string
	Detail    string
	OrderID   string
	AutoClose bool
}

var resultTemplate = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <title>{{.Title}}</title>
    <style>
      body { font-family: Arial, sans-serif; text-align: center; padding: 50px; }
      .success { color: #27ae60; }
      .error { color: #e74c3c; }
    </style>
  </head>
  <body>
    <h2 class="{{.Class}}">{{.Heading}}</h2>
    {{if .OrderID}}<p class="order-ref">Đơn hàng #{{.OrderID}}</p>{{end}}
    <p>{{.Detail}}</p>
    {{if .AutoClose}}<script>setTimeout(function () { window.close(); }, 3000);</script>{{end}}
  </body>
</html>
`))
