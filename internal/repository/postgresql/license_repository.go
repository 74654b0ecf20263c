package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"provisioning-worker/internal/entity"
)

const licenseColumns = `id, tenant_id, plan, status, stripe_customer_id, stripe_subscription_id,
contact_email, features, suspend_reason, expires_at, created_at, updated_at`

type LicenseRepository struct {
	pool *pgxpool.Pool
}

func NewLicenseRepository(pool *pgxpool.Pool) *LicenseRepository {
	return &LicenseRepository{pool: pool}
}

func (r *LicenseRepository) GetByTenant(ctx context.Context, tenantID string) (*entity.License, error) {
	const q = `SELECT ` + licenseColumns + ` FROM licenses WHERE tenant_id = $1;`

	lic, err := scanLicense(r.pool.QueryRow(ctx, q, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return lic, nil
}

// Upsert inserts a license for the tenant or updates the existing one in
// place. Billing identifiers and contact email only overwrite when the new
// value is non-empty, so a later provision without them keeps the old ones.
func (r *LicenseRepository) Upsert(ctx context.Context, lic *entity.License) (uuid.UUID, error) {
	features, err := json.Marshal(lic.Features)
	if err != nil {
		return uuid.Nil, err
	}

	const q = `
INSERT INTO licenses
  (tenant_id, plan, status, stripe_customer_id, stripe_subscription_id, contact_email, features)
VALUES ($1, $2, 'active', $3, $4, $5, $6)
ON CONFLICT (tenant_id) DO UPDATE SET
  plan                   = EXCLUDED.plan,
  status                 = 'active',
  stripe_customer_id     = COALESCE(EXCLUDED.stripe_customer_id, licenses.stripe_customer_id),
  stripe_subscription_id = COALESCE(EXCLUDED.stripe_subscription_id, licenses.stripe_subscription_id),
  contact_email          = COALESCE(EXCLUDED.contact_email, licenses.contact_email),
  features               = EXCLUDED.features,
  suspend_reason         = NULL,
  updated_at             = now()
RETURNING id;
`
	var id uuid.UUID
	err = r.pool.QueryRow(ctx, q,
		lic.TenantID, lic.Plan,
		lic.StripeCustomerID, lic.StripeSubscriptionID, lic.ContactEmail,
		features,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *LicenseRepository) Suspend(ctx context.Context, id uuid.UUID, reason string) error {
	const q = `
UPDATE licenses
SET status = 'suspended', suspend_reason = NULLIF($2, ''), updated_at = now()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, q, id, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *LicenseRepository) Reactivate(ctx context.Context, id uuid.UUID) error {
	const q = `
UPDATE licenses
SET status = 'active', suspend_reason = NULL, updated_at = now()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpiring returns active licenses whose expiry falls within the window.
// Used by the nightly expiry scan.
func (r *LicenseRepository) ListExpiring(ctx context.Context, within time.Duration) ([]*entity.License, error) {
	const q = `
SELECT ` + licenseColumns + `
FROM licenses
WHERE status = 'active'
  AND expires_at IS NOT NULL
  AND expires_at BETWEEN now() AND now() + $1::interval
ORDER BY expires_at;
`
	rows, err := r.pool.Query(ctx, q, within)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	licenses := []*entity.License{}
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, lic)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return licenses, nil
}

func scanLicense(row pgx.Row) (*entity.License, error) {
	var (
		lic      entity.License
		statTxt  string
		features []byte
	)
	err := row.Scan(
		&lic.ID, &lic.TenantID, &lic.Plan, &statTxt,
		&lic.StripeCustomerID, &lic.StripeSubscriptionID, &lic.ContactEmail,
		&features, &lic.SuspendReason, &lic.ExpiresAt,
		&lic.CreatedAt, &lic.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	lic.Status = entity.LicenseStatus(statTxt)
	if len(features) > 0 {
		if err := json.Unmarshal(features, &lic.Features); err != nil {
			return nil, err
		}
	}
	return &lic, nil
}
