package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"clothstore-be/internal/catalog"
	"clothstore-be/internal/db"
	"clothstore-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Catalog is the slice of the product catalog the ledger writes through.
type Catalog interface {
	GetVariant(ctx context.Context, productID uuid.UUID, key catalog.VariantKey) (*catalog.Variant, error)
	AdjustStock(ctx context.Context, productID uuid.UUID, key catalog.VariantKey, delta int) error
}

// Ledger is the only writer of stock counters. Callers decide when a reserve
// or release is due; the ledger only guarantees each call is all-or-nothing
// and never drives a counter below zero.
type Ledger struct {
	catalog Catalog
	tx      db.TxManager
}

func NewLedger(c Catalog, tx db.TxManager) *Ledger {
	return &Ledger{catalog: c, tx: tx}
}

// Check reports whether every line can currently be covered without
// changing anything.
func (l *Ledger) Check(ctx context.Context, lines []Line) error {
	merged, err := normalize(lines)
	if err != nil {
		return err
	}

	for _, line := range merged {
		v, err := l.catalog.GetVariant(ctx, line.ProductID, line.Key())
		if err != nil {
			if isMissing(err) {
				return missingStock(line, err)
			}
			return err
		}
		if v.AvailableQuantity < line.Quantity {
			return &InsufficientStockError{
				ProductID:   line.ProductID,
				ProductName: v.ProductName,
				Color:       line.Color,
				Size:        line.Size,
				Requested:   line.Quantity,
				Available:   v.AvailableQuantity,
			}
		}
	}
	return nil
}

// Reserve decrements every line or none of them.
func (l *Ledger) Reserve(ctx context.Context, lines []Line) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "inventory"),
		zap.String("method", "Reserve"),
	)

	merged, err := normalize(lines)
	if err != nil {
		return err
	}

	err = l.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, line := range merged {
			if err := l.catalog.AdjustStock(ctx, line.ProductID, line.Key(), -line.Quantity); err != nil {
				return l.explain(ctx, line, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Warn("reservation rejected", zap.Error(err))
		return err
	}

	log.Info("stock reserved", zap.Int("lines", len(merged)))
	return nil
}

// Release puts stock back. Lines whose product or variant has disappeared
// are logged and skipped so the rest of the order is still restored.
func (l *Ledger) Release(ctx context.Context, lines []Line) (ReleaseReport, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "inventory"),
		zap.String("method", "Release"),
	)

	var report ReleaseReport

	merged, err := normalize(lines)
	if err != nil {
		return report, err
	}

	err = l.tx.WithinTx(ctx, func(ctx context.Context) error {
		report = ReleaseReport{}
		for _, line := range merged {
			err := l.catalog.AdjustStock(ctx, line.ProductID, line.Key(), line.Quantity)
			switch {
			case err == nil:
				report.Released = append(report.Released, line)
			case isMissing(err):
				log.Warn("skipping release for missing variant",
					zap.String("product_id", line.ProductID.String()),
					zap.String("variant", line.Key().String()),
					zap.Int("quantity", line.Quantity),
					zap.Error(err),
				)
				report.Skipped = append(report.Skipped, line)
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error("release failed", zap.Error(err))
		return ReleaseReport{}, err
	}

	log.Info("stock released",
		zap.Int("released", len(report.Released)),
		zap.Int("skipped", len(report.Skipped)),
	)
	return report, nil
}

func (l *Ledger) explain(ctx context.Context, line Line, err error) error {
	if isMissing(err) {
		return missingStock(line, err)
	}
	if !errors.Is(err, catalog.ErrStockConflict) {
		return fmt.Errorf("adjust stock for %s %s: %w", line.ProductID, line.Key(), err)
	}

	stockErr := &InsufficientStockError{
		ProductID: line.ProductID,
		Color:     line.Color,
		Size:      line.Size,
		Requested: line.Quantity,
		Err:       err,
	}
	if v, vErr := l.catalog.GetVariant(ctx, line.ProductID, line.Key()); vErr == nil {
		stockErr.ProductName = v.ProductName
		stockErr.Available = v.AvailableQuantity
	}
	return stockErr
}

func missingStock(line Line, err error) error {
	return &InsufficientStockError{
		ProductID: line.ProductID,
		Color:     line.Color,
		Size:      line.Size,
		Requested: line.Quantity,
		Available: 0,
		Err:       err,
	}
}

func isMissing(err error) bool {
	return errors.Is(err, catalog.ErrProductNotFound) || errors.Is(err, catalog.ErrVariantNotFound)
}

// normalize merges lines that target the same variant and sorts the result,
// so concurrent reservations touch rows in the same order.
func normalize(lines []Line) ([]Line, error) {
	index := make(map[Line]int, len(lines))
	merged := make([]Line, 0, len(lines))

	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: %s %s", ErrInvalidQuantity, line.ProductID, line.Key())
		}
		k := Line{ProductID: line.ProductID, Color: line.Color, Size: line.Size}
		if i, ok := index[k]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[k] = len(merged)
		merged = append(merged, line)
	}

	sort.Slice(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.ProductID != b.ProductID {
			return a.ProductID.String() < b.ProductID.String()
		}
		if a.Color != b.Color {
			return a.Color < b.Color
		}
		return a.Size < b.Size
	})

	return merged, nil
}
