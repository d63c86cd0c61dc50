package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"clothstore-be/internal/db"
	"clothstore-be/internal/logger"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to OrderStatus) error
	UpdatePaymentInfo(ctx context.Context, id uuid.UUID, info PaymentInfo) error
	List(ctx context.Context, filter OrderFilter) ([]*Order, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const orderColumns = `
	o.id, o.user_id, o.full_name, o.phone, o.province, o.district, o.ward, o.street,
	o.shipping_fee, o.total_amount, o.payment_method, o.status, o.payment_info,
	o.created_at, o.updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o           Order
		paymentInfo []byte
	)
	err := row.Scan(
		&o.ID, &o.BuyerID,
		&o.Address.FullName, &o.Address.Phone, &o.Address.Province,
		&o.Address.District, &o.Address.Ward, &o.Address.Street,
		&o.ShippingFee, &o.TotalAmount, &o.PaymentMethod, &o.Status, &paymentInfo,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(paymentInfo) > 0 {
		if err := json.Unmarshal(paymentInfo, &o.PaymentInfo); err != nil {
			return nil, fmt.Errorf("decode payment info: %w", err)
		}
	}
	return &o, nil
}

func (r *repository) Create(ctx context.Context, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "Create"),
		zap.Uint("user_id", o.BuyerID),
		zap.Int("item_count", len(o.Items)),
	)

	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}

	conn := db.Conn(ctx, r.db)

	err := conn.QueryRowContext(ctx, `
		INSERT INTO orders (
			id, user_id, full_name, phone, province, district, ward, street,
			shipping_fee, total_amount, payment_method, status, payment_info
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,'{}'::jsonb)
		RETURNING created_at, updated_at
	`,
		o.ID, o.BuyerID,
		o.Address.FullName, o.Address.Phone, o.Address.Province,
		o.Address.District, o.Address.Ward, o.Address.Street,
		o.ShippingFee, o.TotalAmount, o.PaymentMethod, o.Status,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		log.Error("failed to insert order", zap.Error(err))
		return err
	}

	for i, item := range o.Items {
		_, err = conn.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, position, product_id, product_name,
				color, size, quantity, unit_price
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			o.ID, i, item.ProductID, item.ProductName,
			item.Color, item.Size, item.Quantity, item.UnitPrice,
		)
		if err != nil {
			log.Error("failed to insert order item",
				zap.Int("item_index", i),
				zap.Error(err),
			)
			return err
		}
	}

	log.Info("order created", zap.String("order_id", o.ID.String()))
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.get(ctx, id, false)
}

// GetForUpdate locks the order row until the surrounding transaction ends.
func (r *repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.get(ctx, id, true)
}

func (r *repository) get(ctx context.Context, id uuid.UUID, lock bool) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	o, err := scanOrder(db.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := r.fetchItems(ctx, []uuid.UUID{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]

	return o, nil
}

// UpdateStatus writes to only if the row still holds from. A miss means
// another writer got there first.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to OrderStatus) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE orders
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: order %s is no longer %s", ErrConflict, id, from)
	}
	return nil
}

func (r *repository) UpdatePaymentInfo(ctx context.Context, id uuid.UUID, info PaymentInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}

	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE orders
		SET payment_info = $2, updated_at = NOW()
		WHERE id = $1
	`, id, raw)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, filter OrderFilter) ([]*Order, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "List"),
		zap.Int32("limit", limit),
		zap.Int32("offset", offset),
	)

	query := `SELECT ` + orderColumns + ` FROM orders o WHERE 1=1`
	args := []any{}
	argIndex := 1

	if filter.BuyerID != nil {
		query += fmt.Sprintf(" AND o.user_id = $%d", argIndex)
		args = append(args, *filter.BuyerID)
		argIndex++
	}

	if filter.Status != nil && *filter.Status != "" {
		query += fmt.Sprintf(" AND o.status = $%d", argIndex)
		args = append(args, *filter.Status)
		argIndex++
	}

	orderBy := "o.created_at DESC"
	if filter.Ascending {
		orderBy = "o.created_at ASC"
	}
	query += " ORDER BY " + orderBy

	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, offset)

	log.Debug("executing list orders query",
		zap.String("query", query),
		zap.Any("args", args),
	)

	rows, err := db.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query orders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var (
		orders []*Order
		ids    []uuid.UUID
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			log.Error("failed to scan order row", zap.Error(err))
			return nil, err
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		log.Error("rows iteration error", zap.Error(err))
		return nil, err
	}

	if len(ids) == 0 {
		return orders, nil
	}

	items, err := r.fetchItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.Items = items[o.ID]
	}

	log.Info("list orders success", zap.Int("count", len(orders)))
	return orders, nil
}

func (r *repository) fetchItems(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]LineItem, error) {
	ids := make([]string, len(orderIDs))
	for i, id := range orderIDs {
		ids[i] = id.String()
	}

	rows, err := db.Conn(ctx, r.db).QueryContext(ctx, `
		SELECT order_id, product_id, product_name, color, size, quantity, unit_price
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, position
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]LineItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID uuid.UUID
			item    LineItem
		)
		if err := rows.Scan(
			&orderID, &item.ProductID, &item.ProductName,
			&item.Color, &item.Size, &item.Quantity, &item.UnitPrice,
		); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], item)
	}
	return out, rows.Err()
}
