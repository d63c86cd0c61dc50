package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"clothstore-be/internal/catalog"
	"clothstore-be/internal/order"
	"clothstore-be/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ProductHandlers lets admins seed the catalog the order engine reserves
// against.
type ProductHandlers struct {
	products catalog.Repository
}

func NewProductHandlers(products catalog.Repository) *ProductHandlers {
	return &ProductHandlers{products: products}
}

func (h *ProductHandlers) Routes(r chi.Router) {
	r.Post("/", h.createProduct)
}

type variantPayload struct {
	Color             string `json:"color"`
	Size              string `json:"size"`
	AvailableQuantity int    `json:"available_quantity"`
}

type productPayload struct {
	ID        uuid.UUID        `json:"id,omitempty"`
	Name      string           `json:"name"`
	Price     int64            `json:"price"`
	Quantity  int              `json:"quantity"`
	Variants  []variantPayload `json:"variants"`
	CreatedAt time.Time        `json:"created_at,omitempty"`
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if actorFrom(r).Role != order.RoleAdmin {
		writeError(ctx, w, order.ErrForbidden)
		return
	}

	var req productPayload
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(ctx, w, &order.ValidationError{Field: "name", Message: "name is required"})
		return
	}
	if len(req.Variants) == 0 {
		writeError(ctx, w, &order.ValidationError{Field: "variants", Message: "at least one variant is required"})
		return
	}

	p := &catalog.Product{Name: strings.TrimSpace(req.Name), Price: req.Price}
	for i, v := range req.Variants {
		if v.AvailableQuantity < 0 || strings.TrimSpace(v.Color) == "" || strings.TrimSpace(v.Size) == "" {
			writeError(ctx, w, &order.ValidationError{
				Field:   fmt.Sprintf("variants[%d]", i),
				Message: "color, size and a non-negative quantity are required",
			})
			return
		}
		p.Variants = append(p.Variants, catalog.Variant{
			Color:             strings.TrimSpace(v.Color),
			Size:              strings.TrimSpace(v.Size),
			AvailableQuantity: v.AvailableQuantity,
		})
	}

	if err := h.products.CreateProduct(ctx, p); err != nil {
		writeError(ctx, w, err)
		return
	}

	resp := productPayload{ID: p.ID, Name: p.Name, Price: p.Price, Quantity: p.Quantity, CreatedAt: p.CreatedAt}
	for _, v := range p.Variants {
		resp.Variants = append(resp.Variants, variantPayload{Color: v.Color, Size: v.Size, AvailableQuantity: v.AvailableQuantity})
	}
	utils.WriteJSON(w, http.StatusCreated, resp)
}
