package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/shared"
)

const linkedAccountColumns = "id, sequence, user_id, domain, access_token, created_at, updated_at"

// LinkedAccountRepository persists per-user credentials for remote servers.
type LinkedAccountRepository struct {
	db *sql.DB
}

// NewLinkedAccountRepository creates a new [LinkedAccountRepository].
func NewLinkedAccountRepository(db *sql.DB) *LinkedAccountRepository {
	return &LinkedAccountRepository{db: db}
}

// Exists reports whether the exact (user, domain, token) triple is stored.
func (r *LinkedAccountRepository) Exists(ctx context.Context, userID, domain, token string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM linked_accounts WHERE user_id = ? AND domain = ? AND access_token = ?)",
		userID, domain, token,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check linked account: %w", err)
	}
	return exists, nil
}

// Create inserts account. The triple is never upserted: a repeat returns [shared.ErrDuplicate].
func (r *LinkedAccountRepository) Create(ctx context.Context, account *models.LinkedAccount) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.db, "linked_accounts")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	id := shared.GenerateID()

	query := `
		INSERT INTO linked_accounts (id, sequence, user_id, domain, access_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		id, sequence, account.UserID(), account.Domain(), account.AccessToken(), account.CreatedAt(), account.UpdatedAt(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s already linked for user %s", shared.ErrDuplicate, account.Domain(), account.UserID())
	}
	if err != nil {
		return fmt.Errorf("failed to insert linked account: %w", err)
	}

	account.SetID(id)
	account.SetSequence(sequence)
	return nil
}

// ListByUser returns the user's linked accounts in the order they were linked.
func (r *LinkedAccountRepository) ListByUser(ctx context.Context, userID string) ([]*models.LinkedAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+linkedAccountColumns+" FROM linked_accounts WHERE user_id = ? ORDER BY sequence ASC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query linked accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.LinkedAccount
	for rows.Next() {
		var (
			id, uid, domain, token string
			sequence               int
			createdAt, updatedAt   time.Time
		)
		if err := rows.Scan(&id, &sequence, &uid, &domain, &token, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan linked account: %w", err)
		}
		account := models.NewLinkedAccount(uid, domain, token)
		account.SetID(id)
		account.SetSequence(sequence)
		account.SetCreatedAt(createdAt)
		account.SetUpdatedAt(updatedAt)
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating linked accounts: %w", err)
	}
	return accounts, nil
}

// DeleteByUserDomain removes every credential the user holds for domain.
//
// Returns [shared.ErrNotFound] when the pair does not exist.
func (r *LinkedAccountRepository) DeleteByUserDomain(ctx context.Context, userID, domain string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM linked_accounts WHERE user_id = ? AND domain = ?", userID, domain)
	if err != nil {
		return fmt.Errorf("failed to delete linked account: %w", err)
	}
	return rowsAffected(res, fmt.Errorf("%w: %s for user %s", shared.ErrNotFound, domain, userID))
}
