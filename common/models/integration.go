package models

import (
	"time"

	"github.com/google/uuid"
)

// Integration kinds and statuses
const (
	IntegrationGmail = "gmail"

	IntegrationActive   = "active"
	IntegrationInactive = "inactive"
)

// Integration is a sealed credential bundle for an external system.
// Credentials may be rotated in place by the poller after token refresh.
// Maps to: integrations table.
type Integration struct {
	ID                   uuid.UUID              `db:"id" json:"id"`
	UserID               uuid.UUID              `db:"user_id" json:"user_id"`
	Name                 string                 `db:"name" json:"name"`
	Type                 string                 `db:"type" json:"type"`
	CredentialsEncrypted string                 `db:"credentials_encrypted" json:"-"`
	Status               string                 `db:"status" json:"status"`
	Metadata             map[string]interface{} `db:"metadata" json:"metadata"`
	CreatedAt            time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time              `db:"updated_at" json:"updated_at"`
}
