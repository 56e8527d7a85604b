package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/shared"
)

const applicationColumns = "id, sequence, domain, client_id, client_secret, access_token, redirect_uri, created_at, updated_at"

// ApplicationRepository persists the client registered with each remote domain.
type ApplicationRepository struct {
	db *sql.DB
}

// NewApplicationRepository creates a new [ApplicationRepository].
func NewApplicationRepository(db *sql.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// GetByDomain returns the application stored for domain, or [shared.ErrNotFound].
func (r *ApplicationRepository) GetByDomain(ctx context.Context, domain string) (*models.Application, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+applicationColumns+" FROM applications WHERE domain = ?", domain)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: application for %s", shared.ErrNotFound, domain)
	}
	return app, err
}

// Create stores app in a single insert. A second row for the same domain returns [shared.ErrDuplicate].
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if err := app.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.db, "applications")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	id := shared.GenerateID()

	query := `
		INSERT INTO applications (id, sequence, domain, client_id, client_secret, access_token, redirect_uri, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		id,
		sequence,
		app.Domain(),
		app.ClientID(),
		app.ClientSecret(),
		app.AccessToken(),
		app.RedirectURI(),
		app.CreatedAt(),
		app.UpdatedAt(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: application for %s", shared.ErrDuplicate, app.Domain())
	}
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}

	app.SetID(id)
	app.SetSequence(sequence)
	return nil
}

// List returns every registered application ordered by sequence.
func (r *ApplicationRepository) List(ctx context.Context) ([]*models.Application, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+applicationColumns+" FROM applications ORDER BY sequence ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating applications: %w", err)
	}
	return apps, nil
}

func scanApplication(s scanner) (*models.Application, error) {
	var (
		id, domain, clientID, secret, token, redirect string
		sequence                                      int
		createdAt, updatedAt                          time.Time
	)
	err := s.Scan(&id, &sequence, &domain, &clientID, &secret, &token, &redirect, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}

	app := models.NewApplication(domain, clientID, secret, token, redirect)
	app.SetID(id)
	app.SetSequence(sequence)
	app.SetCreatedAt(createdAt)
	app.SetUpdatedAt(updatedAt)
	return app, nil
}
