package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"provisioning-worker/internal/entity"
)

// ProvisionHandler creates or updates a tenant's license. Upsert-by-tenant
// keeps re-runs safe: a job re-executed after a crash lands on the same row.
type ProvisionHandler struct {
	licenses LicenseStore
	events   EventSink
	log      *zap.Logger
}

func NewProvisionHandler(licenses LicenseStore, events EventSink, log *zap.Logger) *ProvisionHandler {
	return &ProvisionHandler{licenses: licenses, events: events, log: log}
}

func (h *ProvisionHandler) Handle(ctx context.Context, job *entity.Job) error {
	var p entity.ProvisionPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fail(ctx, h.events, job, entity.StepLicenseProvisioned, fmt.Errorf("decode payload: %w", err))
	}
	if p.TenantID == "" {
		return fail(ctx, h.events, job, entity.StepLicenseProvisioned, errors.New("tenant_id is required"))
	}
	if p.Plan == "" {
		return fail(ctx, h.events, job, entity.StepLicenseProvisioned, errors.New("plan is required"))
	}

	lic := &entity.License{
		TenantID: p.TenantID,
		Plan:     p.Plan,
		Features: entity.FeaturesForPlan(p.Plan),
	}
	if p.StripeCustomerID != "" {
		lic.StripeCustomerID = &p.StripeCustomerID
	}
	if p.StripeSubscriptionID != "" {
		lic.StripeSubscriptionID = &p.StripeSubscriptionID
	}
	if p.ContactEmail != "" {
		lic.ContactEmail = &p.ContactEmail
	}

	licenseID, err := h.licenses.Upsert(ctx, lic)
	if err != nil {
		return fail(ctx, h.events, job, entity.StepLicenseProvisioned, fmt.Errorf("upsert license: %w", err))
	}

	h.log.Info("license provisioned",
		zap.String("tenant_id", p.TenantID),
		zap.String("plan", p.Plan),
		zap.String("license_id", licenseID.String()),
	)
	return recordEvent(ctx, h.events, job, entity.StepLicenseProvisioned, entity.EventCompleted, "", map[string]any{
		"license_id": licenseID.String(),
		"plan":       p.Plan,
	})
}
