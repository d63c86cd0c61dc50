package catalog

import (
	"time"

	"github.com/google/uuid"
)

// VariantKey identifies a variant inside its product.
type VariantKey struct {
	Color string
	Size  string
}

func (k VariantKey) String() string {
	return k.Color + "/" + k.Size
}

type Product struct {
	ID        uuid.UUID
	Name      string
	Price     int64
	Quantity  int
	Variants  []Variant
	CreatedAt time.Time
}

// Variant is the stock keeping unit: one color and size of a product.
type Variant struct {
	ProductID         uuid.UUID
	ProductName       string
	Color             string
	Size              string
	AvailableQuantity int
}

func (v Variant) Key() VariantKey {
	return VariantKey{Color: v.Color, Size: v.Size}
}
