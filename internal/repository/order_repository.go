package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/PromptForge/internal/models"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create stores an order issued by the gateway for order.UserID.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	const query = `
INSERT INTO orders (id, user_id, plan, credits, amount, currency, receipt)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, order.ID, order.UserID, order.Plan, order.Credits, order.Amount, order.Currency, order.Receipt)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	const query = `
SELECT id, user_id, plan, credits, amount, currency, receipt, created_at
FROM orders WHERE id = ? LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, id)
	var o models.Order
	if err := row.Scan(&o.ID, &o.UserID, &o.Plan, &o.Credits, &o.Amount, &o.Currency, &o.Receipt, &o.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return &o, nil
}
