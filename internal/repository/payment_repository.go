package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/PromptForge/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// ApplyCredit credits the user and records the payment in one transaction.
// An order that was already paid is not applied again and ErrDuplicate is
// returned. sql.ErrNoRows means the user does not exist.
func (r *PaymentRepository) ApplyCredit(ctx context.Context, payment *models.Payment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply credit: %w", err)
	}
	defer tx.Rollback()

	const update = `UPDATE users SET credits = credits + ?, plan = ?, updated_at = NOW() WHERE id = ?`
	upd, err := tx.ExecContext(ctx, update, payment.Credits, payment.Plan, payment.UserID)
	if err != nil {
		return fmt.Errorf("add credits: %w", err)
	}
	affected, err := upd.RowsAffected()
	if err != nil {
		return fmt.Errorf("credit rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	const insert = `
INSERT INTO payments (user_id, order_id, payment_id, plan, credits)
VALUES (?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, insert, payment.UserID, payment.OrderID, payment.PaymentID, payment.Plan, payment.Credits)
	if err != nil {
		switch {
		case isDuplicateKey(err):
			return ErrDuplicate
		case isMissingParent(err):
			return sql.ErrNoRows
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("payment last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit apply credit: %w", err)
	}
	payment.ID = id
	return nil
}

// FindByOrder returns the payment that settled orderID, or nil.
func (r *PaymentRepository) FindByOrder(ctx context.Context, orderID string) (*models.Payment, error) {
	const query = `
SELECT id, user_id, order_id, payment_id, plan, credits, created_at
FROM payments WHERE order_id = ? LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, orderID)
	var p models.Payment
	if err := row.Scan(&p.ID, &p.UserID, &p.OrderID, &p.PaymentID, &p.Plan, &p.Credits, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &p, nil
}
