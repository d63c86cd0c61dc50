package inventory

import (
	"clothstore-be/internal/catalog"

	"github.com/google/uuid"
)

// Line is one stock delta request: quantity units of a single variant.
type Line struct {
	ProductID uuid.UUID
	Color     string
	Size      string
	Quantity  int
}

func (l Line) Key() catalog.VariantKey {
	return catalog.VariantKey{Color: l.Color, Size: l.Size}
}

// ReleaseReport lists what a release put back and what it had to skip
// because the catalog no longer knows the variant.
type ReleaseReport struct {
	Released []Line
	Skipped  []Line
}
