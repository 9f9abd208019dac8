package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/PromptForge/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) DB() *sql.DB {
	return r.db
}

const userColumns = `id, name, email, password_hash, credits, plan, is_verified, COALESCE(verification_token, ''), created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Credits, &u.Plan, &u.IsVerified, &u.VerificationToken, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) findOne(ctx context.Context, where string, arg any) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *UserRepository) FindByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	return r.findOne(ctx, "verification_token = ?", token)
}

// Create inserts a new account. The balance and plan always start at the defaults.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	const query = `
INSERT INTO users (name, email, password_hash, credits, plan, is_verified, verification_token)
VALUES (?, ?, ?, ?, ?, 0, NULLIF(?, ''))`
	res, err := r.db.ExecContext(ctx, query, user.Name, user.Email, user.PasswordHash, models.DefaultCredits, models.DefaultPlan, user.VerificationToken)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	user.ID = id
	user.Credits = models.DefaultCredits
	user.Plan = models.DefaultPlan
	user.IsVerified = false
	return user, nil
}

func (r *UserRepository) MarkVerified(ctx context.Context, userID int64) error {
	const query = `UPDATE users SET is_verified = 1, verification_token = NULL, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateName(ctx context.Context, userID int64, name string) error {
	const query = `UPDATE users SET name = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, name, userID); err != nil {
		return fmt.Errorf("update name: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, userID int64, hash string) error {
	const query = `UPDATE users SET password_hash = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, hash, userID); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// DebitCredits subtracts amount only when the balance covers it. It reports
// false, with no write, when the account is missing or short.
func (r *UserRepository) DebitCredits(ctx context.Context, userID int64, amount int) (bool, error) {
	return debitCredits(ctx, r.db, userID, amount)
}

func debitCredits(ctx context.Context, exec execer, userID int64, amount int) (bool, error) {
	const query = `
UPDATE users SET credits = credits - ?, updated_at = NOW()
WHERE id = ? AND credits >= ?`
	res, err := exec.ExecContext(ctx, query, amount, userID, amount)
	if err != nil {
		return false, fmt.Errorf("debit credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("debit rows affected: %w", err)
	}
	return affected > 0, nil
}

// ResetCredits overwrites the balance of an account that is still on plan.
// It reports false when the account has since moved to another plan.
func (r *UserRepository) ResetCredits(ctx context.Context, userID int64, plan string, credits int) (bool, error) {
	const query = `UPDATE users SET credits = ?, updated_at = NOW() WHERE id = ? AND plan = ?`
	res, err := r.db.ExecContext(ctx, query, credits, userID, plan)
	if err != nil {
		return false, fmt.Errorf("reset credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reset rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *UserRepository) ListIDsByPlan(ctx context.Context, plan string) ([]int64, error) {
	const query = `SELECT id FROM users WHERE plan = ? ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query, plan)
	if err != nil {
		return nil, fmt.Errorf("list users by plan: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
