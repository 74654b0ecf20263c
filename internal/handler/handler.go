// Package handler contains one handler per job type plus the registry the
// worker pool dispatches through. Handlers validate their typed payload,
// perform a single idempotent effect, and record a provisioning event.
// They never swallow errors: a returned error is what drives the retry and
// dead-letter state machine.
package handler

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"provisioning-worker/internal/entity"
)

type Handler interface {
	Handle(ctx context.Context, job *entity.Job) error
}

// Registry maps job types to handlers. Built explicitly at startup and
// passed to the worker pool; there is no package-level dispatch table.
type Registry struct {
	handlers map[entity.JobType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[entity.JobType]Handler{}}
}

func (r *Registry) Register(t entity.JobType, h Handler) {
	r.handlers[t] = h
}

func (r *Registry) Get(t entity.JobType) (Handler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

// Storage contracts consumed by the handlers. Implemented by the
// postgresql repositories.

type LicenseStore interface {
	GetByTenant(ctx context.Context, tenantID string) (*entity.License, error)
	Upsert(ctx context.Context, lic *entity.License) (uuid.UUID, error)
	Suspend(ctx context.Context, id uuid.UUID, reason string) error
	Reactivate(ctx context.Context, id uuid.UUID) error
}

type EventSink interface {
	Insert(ctx context.Context, e *entity.ProvisioningEvent) (uuid.UUID, error)
}

// recordEvent writes one audit row for a job. Event insert failures are
// returned so the caller can decide; handlers treat a failed audit write on
// the success path as a handler failure (the effect is idempotent, so the
// retry is safe).
func recordEvent(ctx context.Context, events EventSink, job *entity.Job, step string, status entity.EventStatus, errMsg string, metadata map[string]any) error {
	var errPtr *string
	if errMsg != "" {
		errPtr = &errMsg
	}
	var raw json.RawMessage
	if metadata != nil {
		raw, _ = json.Marshal(metadata)
	}
	_, err := events.Insert(ctx, &entity.ProvisioningEvent{
		CorrelationID:   job.CorrelationID,
		TenantID:        job.TenantID,
		PaymentIntentID: job.PaymentIntentID,
		Step:            step,
		Status:          status,
		Error:           errPtr,
		Metadata:        raw,
	})
	return err
}

// fail records a failure event and returns the original error. Used by
// every handler so failures are uniformly visible in the audit log before
// they feed the retry path.
func fail(ctx context.Context, events EventSink, job *entity.Job, step string, cause error) error {
	_ = recordEvent(ctx, events, job, step, entity.EventFailed, cause.Error(), nil)
	return cause
}
