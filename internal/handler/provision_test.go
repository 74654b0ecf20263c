package handler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"provisioning-worker/internal/entity"
	"provisioning-worker/internal/handler"
)

func TestProvision_CreatesLicenseWithPlanFeatures(t *testing.T) {
	ctx := context.Background()
	licenses := newFakeLicenses()
	events := &fakeEvents{}
	h := handler.NewProvisionHandler(licenses, events, zap.NewNop())

	err := h.Handle(ctx, job(entity.TypeLicenseProvision, entity.ProvisionPayload{
		TenantID:         "t1",
		Plan:             entity.PlanProfessional,
		StripeCustomerID: "cus_1",
	}))
	require.NoError(t, err)

	lic, err := licenses.GetByTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, entity.PlanProfessional, lic.Plan)
	assert.Equal(t, entity.LicenseActive, lic.Status)
	assert.True(t, lic.Features.AIFeatures)
	assert.False(t, lic.Features.APIAccess, "professional does not grant api access")
	require.NotNil(t, lic.StripeCustomerID)
	assert.Equal(t, "cus_1", *lic.StripeCustomerID)

	ev := events.last()
	require.NotNil(t, ev)
	assert.Equal(t, entity.StepLicenseProvisioned, ev.Step)
	assert.Equal(t, entity.EventCompleted, ev.Status)
}

func TestProvision_UpsertsSameTenant(t *testing.T) {
	ctx := context.Background()
	licenses := newFakeLicenses()
	events := &fakeEvents{}
	h := handler.NewProvisionHandler(licenses, events, zap.NewNop())

	require.NoError(t, h.Handle(ctx, job(entity.TypeLicenseProvision, entity.ProvisionPayload{
		TenantID: "t1", Plan: entity.PlanBasic,
	})))
	require.NoError(t, h.Handle(ctx, job(entity.TypeLicenseProvision, entity.ProvisionPayload{
		TenantID: "t1", Plan: entity.PlanEnterprise,
	})))

	assert.Len(t, licenses.byTenant, 1, "one license row per tenant")
	lic, err := licenses.GetByTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, entity.PlanEnterprise, lic.Plan)
	assert.True(t, lic.Features.PrioritySupport, "features follow the second call's plan")
}

func TestProvision_UnknownPlanFallsBackToBasic(t *testing.T) {
	ctx := context.Background()
	licenses := newFakeLicenses()
	h := handler.NewProvisionHandler(licenses, &fakeEvents{}, zap.NewNop())

	require.NoError(t, h.Handle(ctx, job(entity.TypeLicenseProvision, entity.ProvisionPayload{
		TenantID: "t1", Plan: "gold-plus",
	})))

	lic, err := licenses.GetByTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, entity.FeaturesForPlan(entity.PlanBasic), lic.Features)
}

func TestProvision_MissingFieldsFailLoudly(t *testing.T) {
	ctx := context.Background()
	events := &fakeEvents{}
	h := handler.NewProvisionHandler(newFakeLicenses(), events, zap.NewNop())

	err := h.Handle(ctx, job(entity.TypeLicenseProvision, entity.ProvisionPayload{Plan: "basic"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant_id")

	ev := events.last()
	require.NotNil(t, ev, "failure writes an audit row before the error propagates")
	assert.Equal(t, entity.EventFailed, ev.Status)

	err = h.Handle(ctx, job(entity.TypeLicenseProvision, entity.ProvisionPayload{TenantID: "t1"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan")
}

func TestProvision_StorageErrorPropagates(t *testing.T) {
	ctx := context.Background()
	licenses := newFakeLicenses()
	licenses.upsertErr = assert.AnError
	events := &fakeEvents{}
	h := handler.NewProvisionHandler(licenses, events, zap.NewNop())

	err := h.Handle(ctx, job(entity.TypeLicenseProvision, entity.ProvisionPayload{
		TenantID: "t1", Plan: "basic",
	}))
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, entity.EventFailed, events.last().Status)
}
