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

// WelcomeEmailer is the slice of the email convenience layer tenant setup
// uses. Satisfied by service.EmailEnqueuer.
type WelcomeEmailer interface {
	Welcome(ctx context.Context, to string, opts service.EmailOpts) (uuid.UUID, bool, error)
}

// TenantSetupHandler provisions a new tenant's initial license and queues
// the welcome email. Re-runs are safe: the license upsert lands on the same
// row and the welcome email is keyed by tenant so a duplicate collapses.
type TenantSetupHandler struct {
	licenses LicenseStore
	events   EventSink
	emails   WelcomeEmailer
	log      *zap.Logger
}

func NewTenantSetupHandler(licenses LicenseStore, events EventSink, emails WelcomeEmailer, log *zap.Logger) *TenantSetupHandler {
	return &TenantSetupHandler{licenses: licenses, events: events, emails: emails, log: log}
}

func (h *TenantSetupHandler) Handle(ctx context.Context, job *entity.Job) error {
	var p entity.TenantSetupPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fail(ctx, h.events, job, entity.StepTenantSetup, fmt.Errorf("decode payload: %w", err))
	}
	if p.TenantID == "" {
		return fail(ctx, h.events, job, entity.StepTenantSetup, errors.New("tenant_id is required"))
	}

	plan := p.Plan
	if plan == "" {
		plan = entity.PlanTrial
	}

	lic := &entity.License{
		TenantID: p.TenantID,
		Plan:     plan,
		Features: entity.FeaturesForPlan(plan),
	}
	if p.AdminEmail != "" {
		lic.ContactEmail = &p.AdminEmail
	}

	licenseID, err := h.licenses.Upsert(ctx, lic)
	if err != nil {
		return fail(ctx, h.events, job, entity.StepTenantSetup, fmt.Errorf("create initial license: %w", err))
	}

	if p.AdminEmail != "" {
		_, _, err := h.emails.Welcome(ctx, p.AdminEmail, service.EmailOpts{
			CorrelationID: job.CorrelationID,
			TenantID:      p.TenantID,
			StripeEventID: "welcome-" + p.TenantID,
			TemplateData:  map[string]string{"tenant_name": p.TenantName},
		})
		if err != nil {
			return fail(ctx, h.events, job, entity.StepTenantSetup, fmt.Errorf("enqueue welcome email: %w", err))
		}
	}

	h.log.Info("tenant set up",
		zap.String("tenant_id", p.TenantID),
		zap.String("plan", plan),
		zap.String("license_id", licenseID.String()),
	)
	return recordEvent(ctx, h.events, job, entity.StepTenantSetup, entity.EventCompleted, "", map[string]any{
		"license_id": licenseID.String(),
		"plan":       plan,
	})
}
