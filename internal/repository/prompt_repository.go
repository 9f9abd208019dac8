package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/digkill/PromptForge/internal/models"
)

type PromptRepository struct {
	db *sql.DB
}

func NewPromptRepository(db *sql.DB) *PromptRepository {
	return &PromptRepository{db: db}
}

// ChargeAndLog debits amount from the user and appends the prompt in one
// transaction. It reports false, leaving both tables untouched, when the
// balance does not cover amount.
func (r *PromptRepository) ChargeAndLog(ctx context.Context, userID int64, amount int, prompt *models.Prompt) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin charge: %w", err)
	}
	defer tx.Rollback()

	ok, err := debitCredits(ctx, tx, userID, amount)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	const query = `
INSERT INTO prompts (user_id, original_text, generated_prompt, prompt_type, created_at)
VALUES (?, ?, ?, ?, ?)`
	if prompt.CreatedAt.IsZero() {
		prompt.CreatedAt = time.Now().UTC()
	}
	res, err := tx.ExecContext(ctx, query, userID, prompt.OriginalText, prompt.GeneratedPrompt, prompt.PromptType, prompt.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert prompt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("prompt last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit charge: %w", err)
	}
	prompt.ID = id
	prompt.UserID = userID
	return true, nil
}

// ListByUser returns the user's prompts, newest first.
func (r *PromptRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Prompt, error) {
	const query = `
SELECT id, user_id, original_text, generated_prompt, prompt_type, created_at
FROM prompts
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	prompts := make([]models.Prompt, 0)
	for rows.Next() {
		var p models.Prompt
		if err := rows.Scan(&p.ID, &p.UserID, &p.OriginalText, &p.GeneratedPrompt, &p.PromptType, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}
