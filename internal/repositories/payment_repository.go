package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"helvetia/internal/httpkit"
	"helvetia/internal/models"
)

var ErrPaymentNotFound = errors.New("payment not found")
var ErrInvoiceExists = errors.New("invoice already recorded")

type PaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create records a fresh invoice. A duplicate invoice id reports
// ErrInvoiceExists so webhook retries can fall back to UpdateStatus.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO payments (user_id, invoice_id, amount, currency, plan, status, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at
	`, p.UserID, p.InvoiceID, p.Amount, p.Currency, p.Plan, p.Status, p.PaidAt).Scan(&p.ID, &p.CreatedAt)

	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			return ErrInvoiceExists
		}
		return err
	}
	return nil
}

// UpdateStatus moves an existing invoice through its lifecycle.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, invoiceID, status string, paidAt *time.Time) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE payments
		SET status=$2, paid_at=$3
		WHERE invoice_id=$1
	`, invoiceID, status, paidAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentRepository) GetByInvoice(ctx context.Context, invoiceID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, invoice_id, amount, currency, plan, status, created_at, paid_at
		FROM payments
		WHERE invoice_id=$1
	`, invoiceID).Scan(
		&p.ID,
		&p.UserID,
		&p.InvoiceID,
		&p.Amount,
		&p.Currency,
		&p.Plan,
		&p.Status,
		&p.CreatedAt,
		&p.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID int64) ([]models.Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, invoice_id, amount, currency, plan, status, created_at, paid_at
		FROM payments
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Payment, 0, 8)
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(
			&p.ID,
			&p.UserID,
			&p.InvoiceID,
			&p.Amount,
			&p.Currency,
			&p.Plan,
			&p.Status,
			&p.CreatedAt,
			&p.PaidAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
