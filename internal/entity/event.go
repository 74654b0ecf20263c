package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventCompleted EventStatus = "completed"
	EventFailed    EventStatus = "failed"
	EventSkipped   EventStatus = "skipped"
)

// Provisioning event steps written by the handlers and the queue.
const (
	StepLicenseProvisioned = "license_provisioned"
	StepLicenseSuspended   = "license_suspended"
	StepLicenseReactivated = "license_reactivated"
	StepEmailSent          = "email_sent"
	StepTenantSetup        = "tenant_setup"
	StepWebhookProcessed   = "webhook_processed"
	StepDeadLetterRetry    = "dead_letter_retry"
)

// ProvisioningEvent is an append-only audit record. Rows are never updated
// or deleted; dashboards and audits read them by correlation id.
type ProvisioningEvent struct {
	ID              uuid.UUID       `json:"id"`
	CorrelationID   string          `json:"correlation_id"`
	TenantID        *string         `json:"tenant_id,omitempty"`
	PaymentIntentID *string         `json:"payment_intent_id,omitempty"`
	Step            string          `json:"step"`
	Status          EventStatus     `json:"status"`
	Error           *string         `json:"error,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
