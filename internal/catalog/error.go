package catalog

import "errors"

var (
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("variant not found")
	ErrStockConflict   = errors.New("stock adjustment would make quantity negative")
)
