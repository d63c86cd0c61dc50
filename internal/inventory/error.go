package inventory

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// InsufficientStockError names the variant that could not cover a request.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Color       string
	Size        string
	Requested   int
	Available   int
	Err         error
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID.String()
	}
	return fmt.Sprintf("insufficient stock for %s (%s - %s): requested %d, available %d",
		name, e.Color, e.Size, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func (e *InsufficientStockError) Unwrap() error {
	return e.Err
}
