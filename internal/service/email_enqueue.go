package service

import (
	"context"

	"github.com/google/uuid"

	"provisioning-worker/internal/entity"
)

// EmailEnqueuer builds the payload shapes for the common transactional
// emails so call sites cannot typo field names. It holds no state of its
// own; failure semantics are EnqueueJob's.
type EmailEnqueuer struct {
	queue *QueueService
}

func NewEmailEnqueuer(queue *QueueService) *EmailEnqueuer {
	return &EmailEnqueuer{queue: queue}
}

type EmailOpts struct {
	CorrelationID string
	TenantID      string
	StripeEventID string
	TemplateData  map[string]string
}

func (e *EmailEnqueuer) Enqueue(ctx context.Context, to string, emailType entity.EmailType, opts EmailOpts) (uuid.UUID, bool, error) {
	return e.queue.EnqueueJob(ctx, EnqueueRequest{
		Type: entity.TypeEmailSend,
		Payload: entity.EmailPayload{
			To:           to,
			EmailType:    emailType,
			TemplateData: opts.TemplateData,
		},
		CorrelationID: opts.CorrelationID,
		TenantID:      opts.TenantID,
		StripeEventID: opts.StripeEventID,
	})
}

func (e *EmailEnqueuer) LicenseActivated(ctx context.Context, to string, opts EmailOpts) (uuid.UUID, bool, error) {
	return e.Enqueue(ctx, to, entity.EmailLicenseActivated, opts)
}

func (e *EmailEnqueuer) LicenseSuspended(ctx context.Context, to string, opts EmailOpts) (uuid.UUID, bool, error) {
	return e.Enqueue(ctx, to, entity.EmailLicenseSuspended, opts)
}

func (e *EmailEnqueuer) LicenseExpiring(ctx context.Context, to string, opts EmailOpts) (uuid.UUID, bool, error) {
	return e.Enqueue(ctx, to, entity.EmailLicenseExpiring, opts)
}

func (e *EmailEnqueuer) PaymentFailed(ctx context.Context, to string, opts EmailOpts) (uuid.UUID, bool, error) {
	return e.Enqueue(ctx, to, entity.EmailPaymentFailed, opts)
}

func (e *EmailEnqueuer) Welcome(ctx context.Context, to string, opts EmailOpts) (uuid.UUID, bool, error) {
	return e.Enqueue(ctx, to, entity.EmailWelcome, opts)
}
