package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobType string

const (
	TypeLicenseProvision  JobType = "license_provision"
	TypeLicenseSuspend    JobType = "license_suspend"
	TypeLicenseReactivate JobType = "license_reactivate"
	TypeEmailSend         JobType = "email_send"
	TypeTenantSetup       JobType = "tenant_setup"
	TypeWebhookProcess    JobType = "webhook_process"
)

// KnownJobTypes is the closed set accepted by the queue. Enqueueing any
// other type is rejected before a row is written.
var KnownJobTypes = map[JobType]bool{
	TypeLicenseProvision:  true,
	TypeLicenseSuspend:    true,
	TypeLicenseReactivate: true,
	TypeEmailSend:         true,
	TypeTenantSetup:       true,
	TypeWebhookProcess:    true,
}

type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusDead       JobStatus = "dead"
)

// Job is one unit of deferred work. The payload is opaque to the queue;
// each handler defines and validates its own shape (see payload.go).
type Job struct {
	ID              uuid.UUID       `json:"id"`
	Type            JobType         `json:"job_type"`
	Payload         json.RawMessage `json:"payload"`
	CorrelationID   string          `json:"correlation_id"`
	StripeEventID   *string         `json:"stripe_event_id,omitempty"`
	PaymentIntentID *string         `json:"payment_intent_id,omitempty"`
	TenantID        *string         `json:"tenant_id,omitempty"`
	Status          JobStatus       `json:"status"`
	Attempts        int             `json:"attempts"`
	MaxAttempts     int             `json:"max_attempts"`
	LastError       *string         `json:"last_error,omitempty"`
	RunAt           time.Time       `json:"run_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
