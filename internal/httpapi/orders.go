package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clothstore-be/internal/order"
	"clothstore-be/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxBodySize = 64 * 1024

type OrderHandlers struct {
	orders order.Service
}

func NewOrderHandlers(orders order.Service) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints. Callers must be authenticated.
func (h *OrderHandlers) Routes(r chi.Router) {
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Patch("/{orderID}/status", h.advanceStatus)
	r.Post("/{orderID}/cancel", h.cancelOrder)
}

type createOrderItemRequest struct {
	ProductID string `json:"product_id"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type addressPayload struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Province string `json:"province"`
	District string `json:"district"`
	Ward     string `json:"ward"`
	Street   string `json:"street"`
}

type createOrderRequest struct {
	Items         []createOrderItemRequest `json:"items"`
	Address       addressPayload           `json:"shipping_address"`
	ShippingFee   int64                    `json:"shipping_fee"`
	TotalAmount   int64                    `json:"total_amount"`
	PaymentMethod string                   `json:"payment_method"`
}

type advanceStatusRequest struct {
	Status string `json:"status"`
}

type lineItemResponse struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Color       string    `json:"color"`
	Size        string    `json:"size"`
	Quantity    int       `json:"quantity"`
	UnitPrice   int64     `json:"unit_price"`
}

type orderResponse struct {
	ID            uuid.UUID           `json:"id"`
	BuyerID       uint                `json:"user_id"`
	Items         []lineItemResponse  `json:"items"`
	Address       addressPayload      `json:"shipping_address"`
	ShippingFee   int64               `json:"shipping_fee"`
	TotalAmount   int64               `json:"total_amount"`
	PaymentMethod order.PaymentMethod `json:"payment_method"`
	Status        order.OrderStatus   `json:"status"`
	NextStatuses  []order.OrderStatus `json:"next_statuses"`
	PaymentInfo   *order.PaymentInfo  `json:"payment_info,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]lineItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = lineItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Color:       it.Color,
			Size:        it.Size,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		}
	}

	resp := orderResponse{
		ID:      o.ID,
		BuyerID: o.BuyerID,
		Items:   items,
		Address: addressPayload{
			FullName: o.Address.FullName,
			Phone:    o.Address.Phone,
			Province: o.Address.Province,
			District: o.Address.District,
			Ward:     o.Address.Ward,
			Street:   o.Address.Street,
		},
		ShippingFee:   o.ShippingFee,
		TotalAmount:   o.TotalAmount,
		PaymentMethod: o.PaymentMethod,
		Status:        o.Status,
		NextStatuses:  order.NextStatuses(o.Status),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.PaymentInfo.TransactionRef != "" {
		info := o.PaymentInfo
		resp.PaymentInfo = &info
	}
	return resp
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFrom(r)

	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	input := order.CreateOrderInput{
		BuyerID: actor.UserID,
		Address: order.ShippingAddress{
			FullName: req.Address.FullName,
			Phone:    req.Address.Phone,
			Province: req.Address.Province,
			District: req.Address.District,
			Ward:     req.Address.Ward,
			Street:   req.Address.Street,
		},
		ShippingFee:   req.ShippingFee,
		TotalAmount:   req.TotalAmount,
		PaymentMethod: order.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
	}
	for i, it := range req.Items {
		productID, err := uuid.Parse(it.ProductID)
		if err != nil {
			writeError(ctx, w, &order.ValidationError{
				Field:   fmt.Sprintf("items[%d].product_id", i),
				Message: "must be a valid id",
			})
			return
		}
		input.Items = append(input.Items, order.CreateOrderItemInput{
			ProductID: productID,
			Color:     it.Color,
			Size:      it.Size,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	o, err := h.orders.CreateOrder(ctx, input)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := order.OrderFilter{Ascending: strings.EqualFold(query.Get("sort"), "asc")}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status := order.OrderStatus(strings.ToLower(raw))
		filter.Status = &status
	}
	if raw := strings.TrimSpace(query.Get("user_id")); raw != "" {
		id, err := utils.ToUint(raw)
		if err != nil {
			writeError(ctx, w, fmt.Errorf("%w: user_id must be a positive integer", errBadRequest))
			return
		}
		filter.BuyerID = &id
	}

	var err error
	if filter.Limit, err = parseInt32(query.Get("limit")); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: limit must be an integer", errBadRequest))
		return
	}
	if filter.Offset, err = parseInt32(query.Get("offset")); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: offset must be an integer", errBadRequest))
		return
	}

	orders, err := h.orders.ListOrders(ctx, filter, actorFrom(r))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = toOrderResponse(o)
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := orderIDParam(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	o, err := h.orders.GetOrder(ctx, orderID, actorFrom(r))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandlers) advanceStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := orderIDParam(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	var req advanceStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	target := order.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))

	o, err := h.orders.AdvanceStatus(ctx, orderID, target, actorFrom(r))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := orderIDParam(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	o, err := h.orders.CancelOrder(ctx, orderID, actorFrom(r))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, toOrderResponse(o))
}

// actorFrom builds the actor from what the auth middleware put in the
// context. Routes using it sit behind RequireUser.
func actorFrom(r *http.Request) order.Actor {
	id, _ := utils.GetUserIDFromContext(r.Context())
	role := utils.GetUserRoleFromContext(r.Context())
	if role != order.RoleAdmin {
		role = order.RoleUser
	}
	return order.Actor{UserID: id, Role: role}
}

func orderIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid order id", errBadRequest)
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", errBadRequest, err)
	}
	return nil
}

func parseInt32(raw string) (int32, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	return int32(n), err
}
