package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"provisioning-worker/internal/entity"
	"provisioning-worker/internal/service"
)

// Enqueuer is the slice of the queue API the webhook handler needs to fan
// out follow-up jobs.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, req service.EnqueueRequest) (uuid.UUID, bool, error)
}

// webhookData is the subset of a payment provider event the pipeline acts
// on. Unknown fields are ignored.
type webhookData struct {
	TenantID             string `json:"tenant_id"`
	Plan                 string `json:"plan"`
	CustomerEmail        string `json:"customer_email"`
	StripeCustomerID     string `json:"stripe_customer_id"`
	StripeSubscriptionID string `json:"stripe_subscription_id"`
	PaymentIntentID      string `json:"payment_intent_id"`
}

// WebhookHandler turns a recorded payment provider event into follow-up
// jobs: checkout completion provisions a license, a failed invoice notifies
// the customer. Unknown event types are recorded and succeed; the provider
// sends many event types this pipeline has no interest in.
type WebhookHandler struct {
	queue  Enqueuer
	events EventSink
	log    *zap.Logger
}

func NewWebhookHandler(queue Enqueuer, events EventSink, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{queue: queue, events: events, log: log}
}

func (h *WebhookHandler) Handle(ctx context.Context, job *entity.Job) error {
	var p entity.WebhookPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fail(ctx, h.events, job, entity.StepWebhookProcessed, fmt.Errorf("decode payload: %w", err))
	}
	if p.EventType == "" {
		return fail(ctx, h.events, job, entity.StepWebhookProcessed, errors.New("event_type is required"))
	}

	var data webhookData
	if len(p.Data) > 0 {
		if err := json.Unmarshal(p.Data, &data); err != nil {
			return fail(ctx, h.events, job, entity.StepWebhookProcessed, fmt.Errorf("decode event data: %w", err))
		}
	}

	switch p.EventType {
	case "checkout.session.completed", "customer.subscription.updated":
		if data.TenantID == "" || data.Plan == "" {
			return fail(ctx, h.events, job, entity.StepWebhookProcessed,
				fmt.Errorf("%s event missing tenant_id or plan", p.EventType))
		}
		_, _, err := h.queue.EnqueueJob(ctx, service.EnqueueRequest{
			Type: entity.TypeLicenseProvision,
			Payload: entity.ProvisionPayload{
				TenantID:             data.TenantID,
				Plan:                 data.Plan,
				StripeCustomerID:     data.StripeCustomerID,
				StripeSubscriptionID: data.StripeSubscriptionID,
				ContactEmail:         data.CustomerEmail,
			},
			CorrelationID:   job.CorrelationID,
			StripeEventID:   provisionKey(p.EventID),
			PaymentIntentID: data.PaymentIntentID,
			TenantID:        data.TenantID,
		})
		if err != nil {
			return fail(ctx, h.events, job, entity.StepWebhookProcessed, fmt.Errorf("enqueue provision: %w", err))
		}

	case "invoice.payment_failed":
		if data.CustomerEmail == "" {
			// Nobody to notify; record and move on.
			h.log.Warn("payment_failed event without customer email",
				zap.String("event_id", p.EventID))
			return recordEvent(ctx, h.events, job, entity.StepWebhookProcessed, entity.EventSkipped, "", map[string]any{
				"event_type": p.EventType,
				"reason":     "no customer email",
			})
		}
		_, _, err := h.queue.EnqueueJob(ctx, service.EnqueueRequest{
			Type: entity.TypeEmailSend,
			Payload: entity.EmailPayload{
				To:        data.CustomerEmail,
				EmailType: entity.EmailPaymentFailed,
			},
			CorrelationID:   job.CorrelationID,
			StripeEventID:   provisionKey(p.EventID),
			PaymentIntentID: data.PaymentIntentID,
			TenantID:        data.TenantID,
		})
		if err != nil {
			return fail(ctx, h.events, job, entity.StepWebhookProcessed, fmt.Errorf("enqueue payment-failed email: %w", err))
		}

	default:
		h.log.Info("webhook event type not handled",
			zap.String("event_type", p.EventType),
			zap.String("event_id", p.EventID),
		)
		return recordEvent(ctx, h.events, job, entity.StepWebhookProcessed, entity.EventSkipped, "", map[string]any{
			"event_type": p.EventType,
		})
	}

	return recordEvent(ctx, h.events, job, entity.StepWebhookProcessed, entity.EventCompleted, "", map[string]any{
		"event_type": p.EventType,
		"event_id":   p.EventID,
	})
}

// provisionKey derives the idempotency key for a follow-up job from the
// provider event id, so a re-run of webhook_process cannot enqueue the
// follow-up twice. The webhook job itself is keyed by the raw event id.
func provisionKey(eventID string) string {
	if eventID == "" {
		return ""
	}
	return eventID + ":followup"
}
