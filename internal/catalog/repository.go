package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clothstore-be/internal/db"
	"clothstore-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Repository interface {
	CreateProduct(ctx context.Context, p *Product) error
	GetVariant(ctx context.Context, productID uuid.UUID, key VariantKey) (*Variant, error)
	AdjustStock(ctx context.Context, productID uuid.UUID, key VariantKey, delta int) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// CreateProduct inserts a product with its variants. The aggregate quantity is
// derived from the variants.
func (r *repository) CreateProduct(ctx context.Context, p *Product) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateProduct"),
	)

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Quantity = 0
	for _, v := range p.Variants {
		p.Quantity += v.AvailableQuantity
	}

	conn := db.Conn(ctx, r.db)
	err := conn.QueryRowContext(ctx, `
		INSERT INTO products (id, name, price, quantity)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, p.ID, p.Name, p.Price, p.Quantity).Scan(&p.CreatedAt)
	if err != nil {
		log.Error("failed to insert product", zap.Error(err))
		return err
	}

	for i := range p.Variants {
		v := &p.Variants[i]
		v.ProductID = p.ID
		v.ProductName = p.Name
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO product_variants (product_id, color, size, available_quantity)
			VALUES ($1, $2, $3, $4)
		`, p.ID, v.Color, v.Size, v.AvailableQuantity); err != nil {
			log.Error("failed to insert variant",
				zap.String("variant", v.Key().String()),
				zap.Error(err),
			)
			return err
		}
	}

	return nil
}

func (r *repository) GetVariant(ctx context.Context, productID uuid.UUID, key VariantKey) (*Variant, error) {
	var (
		name      string
		available sql.NullInt64
	)

	err := db.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT p.name, v.available_quantity
		FROM products p
		LEFT JOIN product_variants v
			ON v.product_id = p.id AND v.color = $2 AND v.size = $3
		WHERE p.id = $1
	`, productID, key.Color, key.Size).Scan(&name, &available)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	if !available.Valid {
		return nil, ErrVariantNotFound
	}

	return &Variant{
		ProductID:         productID,
		ProductName:       name,
		Color:             key.Color,
		Size:              key.Size,
		AvailableQuantity: int(available.Int64),
	}, nil
}

// AdjustStock applies delta to the variant and to the product aggregate.
// The variant update is conditional, so a delta that would take the counter
// below zero changes nothing and reports ErrStockConflict.
func (r *repository) AdjustStock(ctx context.Context, productID uuid.UUID, key VariantKey, delta int) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "AdjustStock"),
		zap.String("product_id", productID.String()),
		zap.String("variant", key.String()),
		zap.Int("delta", delta),
	)

	conn := db.Conn(ctx, r.db)

	res, err := conn.ExecContext(ctx, `
		UPDATE product_variants
		SET available_quantity = available_quantity + $4
		WHERE product_id = $1 AND color = $2 AND size = $3
			AND available_quantity + $4 >= 0
	`, productID, key.Color, key.Size, delta)
	if err != nil {
		log.Error("failed to update variant stock", zap.Error(err))
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.GetVariant(ctx, productID, key); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s %s", ErrStockConflict, productID, key)
	}

	if _, err := conn.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity + $2
		WHERE id = $1
	`, productID, delta); err != nil {
		log.Error("failed to update product aggregate", zap.Error(err))
		return err
	}

	log.Debug("stock adjusted")
	return nil
}
