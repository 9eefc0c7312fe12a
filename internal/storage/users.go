package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/model"
)

// CreateUser inserts a new user. An existing ID yields common.ErrDuplicateEntry.
func (s *SQLiteStorage) CreateUser(ctx context.Context, user *model.User) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%w: user", ErrNilParameter)
	}
	if err := validateString(user.ID, "user.ID"); err != nil {
		return err
	}
	if user.Credits < 0 {
		return fmt.Errorf("%w: credits cannot be negative", common.ErrBadRequest)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, credits, plaid_access_token, plaid_item_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, user.ID, user.Name, user.Email, user.Credits, user.PlaidAccessToken, user.PlaidItemID, user.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s", common.ErrDuplicateEntry, user.ID)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser returns a user by ID.
func (s *SQLiteStorage) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, credits, plaid_access_token, plaid_item_id, created_at
		FROM users
		WHERE id = ?
	`, userID)

	user, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user "+userID)
	}
	return user, nil
}

// ListUsers returns every user ordered by ID.
func (s *SQLiteStorage) ListUsers(ctx context.Context) ([]model.User, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, credits, plaid_access_token, plaid_item_id, created_at
		FROM users
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// AddCredits adds credits to a user's balance and returns the new balance.
func (s *SQLiteStorage) AddCredits(ctx context.Context, userID string, credits int) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}
	if credits <= 0 {
		return 0, fmt.Errorf("%w: credits must be positive", common.ErrBadRequest)
	}

	var balance int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE users SET credits = credits + ? WHERE id = ?`, credits, userID)
		if err != nil {
			return fmt.Errorf("failed to add credits: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: user %s", common.ErrNotFound, userID)
		}
		return tx.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = ?`, userID).Scan(&balance)
	})
	return balance, err
}

// SetPlaidItem stores the linked Plaid item for a user.
func (s *SQLiteStorage) SetPlaidItem(ctx context.Context, userID, accessToken, itemID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateString(accessToken, "accessToken"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET plaid_access_token = ?, plaid_item_id = ? WHERE id = ?
	`, accessToken, itemID, userID)
	if err != nil {
		return fmt.Errorf("failed to save plaid item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: user %s", common.ErrNotFound, userID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var user model.User
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Credits,
		&user.PlaidAccessToken,
		&user.PlaidItemID,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
