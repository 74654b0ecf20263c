package handler_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"provisioning-worker/internal/entity"
	"provisioning-worker/internal/repository/postgresql"
	"provisioning-worker/internal/service"
)

type fakeLicenses struct {
	mu       sync.Mutex
	byTenant map[string]*entity.License
	byID     map[uuid.UUID]*entity.License

	upsertErr error
}

func newFakeLicenses() *fakeLicenses {
	return &fakeLicenses{
		byTenant: map[string]*entity.License{},
		byID:     map[uuid.UUID]*entity.License{},
	}
}

func (f *fakeLicenses) GetByTenant(_ context.Context, tenantID string) (*entity.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	lic, ok := f.byTenant[tenantID]
	if !ok {
		return nil, postgresql.ErrNotFound
	}
	cp := *lic
	return &cp, nil
}

func (f *fakeLicenses) Upsert(_ context.Context, lic *entity.License) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.upsertErr != nil {
		return uuid.Nil, f.upsertErr
	}

	now := time.Now().UTC()
	if existing, ok := f.byTenant[lic.TenantID]; ok {
		existing.Plan = lic.Plan
		existing.Status = entity.LicenseActive
		existing.Features = lic.Features
		if lic.StripeCustomerID != nil {
			existing.StripeCustomerID = lic.StripeCustomerID
		}
		if lic.StripeSubscriptionID != nil {
			existing.StripeSubscriptionID = lic.StripeSubscriptionID
		}
		if lic.ContactEmail != nil {
			existing.ContactEmail = lic.ContactEmail
		}
		existing.SuspendReason = nil
		existing.UpdatedAt = now
		return existing.ID, nil
	}

	cp := *lic
	cp.ID = uuid.New()
	cp.Status = entity.LicenseActive
	cp.CreatedAt = now
	cp.UpdatedAt = now
	f.byTenant[cp.TenantID] = &cp
	f.byID[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeLicenses) Suspend(_ context.Context, id uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	lic, ok := f.byID[id]
	if !ok {
		return postgresql.ErrNotFound
	}
	lic.Status = entity.LicenseSuspended
	if reason != "" {
		lic.SuspendReason = &reason
	}
	return nil
}

func (f *fakeLicenses) Reactivate(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	lic, ok := f.byID[id]
	if !ok {
		return postgresql.ErrNotFound
	}
	lic.Status = entity.LicenseActive
	lic.SuspendReason = nil
	return nil
}

type fakeEvents struct {
	mu   sync.Mutex
	rows []*entity.ProvisioningEvent
}

func (f *fakeEvents) Insert(_ context.Context, e *entity.ProvisioningEvent) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *e
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now().UTC()
	f.rows = append(f.rows, &cp)
	return cp.ID, nil
}

func (f *fakeEvents) last() *entity.ProvisioningEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.rows) == 0 {
		return nil
	}
	return f.rows[len(f.rows)-1]
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	requests []service.EnqueueRequest
	err      error
}

func (f *fakeEnqueuer) EnqueueJob(_ context.Context, req service.EnqueueRequest) (uuid.UUID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return uuid.Nil, false, f.err
	}
	f.requests = append(f.requests, req)
	return uuid.New(), false, nil
}

type fakeWelcomer struct {
	to   []string
	opts []service.EmailOpts
	err  error
}

func (f *fakeWelcomer) Welcome(_ context.Context, to string, opts service.EmailOpts) (uuid.UUID, bool, error) {
	if f.err != nil {
		return uuid.Nil, false, f.err
	}
	f.to = append(f.to, to)
	f.opts = append(f.opts, opts)
	return uuid.New(), false, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

type sentMail struct {
	to      string
	subject string
	html    string
}

func (f *fakeMailer) Send(_ context.Context, to, subject, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, html: html})
	return nil
}

func job(t entity.JobType, payload any) *entity.Job {
	raw, _ := entity.MarshalPayload(payload)
	return &entity.Job{
		ID:            uuid.New(),
		Type:          t,
		Payload:       raw,
		CorrelationID: "corr-test",
		Status:        entity.StatusProcessing,
		MaxAttempts:   3,
	}
}
