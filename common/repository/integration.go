package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agentkit/agentkit/common/db"
	"github.com/agentkit/agentkit/common/models"
)

// IntegrationRepository handles database operations for integrations
type IntegrationRepository struct {
	db *db.DB
}

// NewIntegrationRepository creates a new integration repository
func NewIntegrationRepository(database *db.DB) *IntegrationRepository {
	return &IntegrationRepository{db: database}
}

// Create inserts a new integration
func (r *IntegrationRepository) Create(ctx context.Context, in *models.Integration) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO integrations (id, user_id, name, type, credentials_encrypted, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, in.ID, in.UserID, in.Name, in.Type, in.CredentialsEncrypted, in.Status, in.Metadata, in.CreatedAt, in.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create integration: %w", err)
	}
	return nil
}

// GetByID retrieves an integration owned by a user
func (r *IntegrationRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Integration, error) {
	in := &models.Integration{}
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, name, type, credentials_encrypted, status, metadata, created_at, updated_at
		FROM integrations
		WHERE id = $1 AND user_id = $2
	`, id, userID).Scan(
		&in.ID, &in.UserID, &in.Name, &in.Type, &in.CredentialsEncrypted,
		&in.Status, &in.Metadata, &in.CreatedAt, &in.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get integration: %w", err)
	}
	return in, nil
}

// ListByTypeAndStatus lists integrations of a kind in a given status.
// The poller selects its targets with this.
func (r *IntegrationRepository) ListByTypeAndStatus(ctx context.Context, kind, status string) ([]*models.Integration, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, name, type, credentials_encrypted, status, metadata, created_at, updated_at
		FROM integrations
		WHERE type = $1 AND status = $2
		ORDER BY created_at
	`, kind, status)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	var integrations []*models.Integration
	for rows.Next() {
		in := &models.Integration{}
		err := rows.Scan(
			&in.ID, &in.UserID, &in.Name, &in.Type, &in.CredentialsEncrypted,
			&in.Status, &in.Metadata, &in.CreatedAt, &in.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		integrations = append(integrations, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate integrations: %w", err)
	}

	return integrations, nil
}

// UpdateCredentials rotates an integration's sealed credentials in place
func (r *IntegrationRepository) UpdateCredentials(ctx context.Context, id uuid.UUID, sealed string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE integrations SET credentials_encrypted = $2, updated_at = now() WHERE id = $1
	`, id, sealed)
	if err != nil {
		return fmt.Errorf("update integration credentials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
