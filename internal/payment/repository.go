package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clothstore-be/internal/db"
	"clothstore-be/internal/logger"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetLatestByOrder(ctx context.Context, orderID uuid.UUID) (*Payment, error)

	// The ForUpdate lookups lock the row until the surrounding transaction ends.
	FindByTransactionRefForUpdate(ctx context.Context, ref string) (*Payment, error)
	FindLatestByOrderForUpdate(ctx context.Context, orderID uuid.UUID, gateway string) (*Payment, error)
	FindLatestPendingForUpdate(ctx context.Context, gateway string) (*Payment, error)

	MarkCompleted(ctx context.Context, id uuid.UUID, paidAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, at time.Time) error
	AppendAudit(ctx context.Context, id uuid.UUID, entry AuditEntry) error
	HasCompletedPayment(ctx context.Context, orderID uuid.UUID) (bool, error)
}

const uniqueViolation = pq.ErrorCode("23505")

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const paymentColumns = `
	id, order_id, user_id, amount, gateway, status, transaction_ref,
	response_data, payment_date, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*Payment, error) {
	var (
		p           Payment
		audit       []byte
		paymentDate sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &p.BuyerID, &p.Amount, &p.Gateway, &p.Status, &p.TransactionRef,
		&audit, &paymentDate, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if len(audit) > 0 {
		if err := json.Unmarshal(audit, &p.ResponseData); err != nil {
			return nil, fmt.Errorf("decode response_data: %w", err)
		}
	}
	if paymentDate.Valid {
		t := paymentDate.Time
		p.PaymentDate = &t
	}
	return &p, nil
}

func (r *repository) Create(ctx context.Context, p *Payment) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "Create"),
		zap.String("order_id", p.OrderID.String()),
	)

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.ResponseData == nil {
		p.ResponseData = []AuditEntry{}
	}
	audit, err := json.Marshal(p.ResponseData)
	if err != nil {
		return fmt.Errorf("encode response_data: %w", err)
	}

	err = db.Conn(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO payments (id, order_id, user_id, amount, gateway, status, transaction_ref, response_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, p.ID, p.OrderID, p.BuyerID, p.Amount, p.Gateway, p.Status, p.TransactionRef, audit,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			log.Warn("payment reference already taken", zap.String("transaction_ref", p.TransactionRef))
			return ErrPaymentConflict
		}
		log.Error("failed to insert payment", zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) GetLatestByOrder(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	row := db.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, orderID)
	return scanPayment(row)
}

func (r *repository) FindByTransactionRefForUpdate(ctx context.Context, ref string) (*Payment, error) {
	row := db.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE transaction_ref = $1
		FOR UPDATE
	`, ref)
	return scanPayment(row)
}

func (r *repository) FindLatestByOrderForUpdate(ctx context.Context, orderID uuid.UUID, gateway string) (*Payment, error) {
	row := db.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE order_id = $1 AND gateway = $2
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, orderID, gateway)
	return scanPayment(row)
}

// FindLatestPendingForUpdate backs the legacy callback matching that attaches
// an unknown reference to the newest pending payment of the gateway.
func (r *repository) FindLatestPendingForUpdate(ctx context.Context, gateway string) (*Payment, error) {
	row := db.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE gateway = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, gateway, StatusPending)
	return scanPayment(row)
}

func (r *repository) MarkCompleted(ctx context.Context, id uuid.UUID, paidAt time.Time) error {
	return r.finish(ctx, "MarkCompleted", id, StatusCompleted, paidAt)
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.finish(ctx, "MarkFailed", id, StatusFailed, at)
}

// finish moves a pending payment to its final status exactly once.
func (r *repository) finish(ctx context.Context, method string, id uuid.UUID, status Status, at time.Time) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", method),
		zap.String("payment_id", id.String()),
	)

	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE payments
		SET status = $2, payment_date = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, status, at, StatusPending)
	if err != nil {
		log.Error("failed to update payment status", zap.Error(err))
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		log.Warn("payment no longer pending")
		return ErrPaymentConflict
	}
	return nil
}

func (r *repository) AppendAudit(ctx context.Context, id uuid.UUID, entry AuditEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE payments
		SET response_data = response_data || jsonb_build_array($2::jsonb), updated_at = NOW()
		WHERE id = $1
	`, id, raw)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to append payment audit",
			zap.String("payment_id", id.String()),
			zap.Error(err),
		)
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *repository) HasCompletedPayment(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM payments WHERE order_id = $1 AND status = $2
		)
	`, orderID, StatusCompleted).Scan(&exists)
	return exists, err
}
