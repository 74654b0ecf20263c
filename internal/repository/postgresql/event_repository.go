package postgresql

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"provisioning-worker/internal/entity"
)

// EventRepository writes the append-only provisioning audit log. Rows are
// inserted, never updated.
type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) Insert(ctx context.Context, e *entity.ProvisioningEvent) (uuid.UUID, error) {
	metadata := e.Metadata
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}

	const q = `
INSERT INTO provisioning_events
  (correlation_id, tenant_id, payment_intent_id, step, status, error, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id;
`
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, q,
		e.CorrelationID, e.TenantID, e.PaymentIntentID,
		e.Step, string(e.Status), e.Error, metadata,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *EventRepository) ListByCorrelation(ctx context.Context, correlationID string) ([]*entity.ProvisioningEvent, error) {
	const q = `
SELECT id, correlation_id, tenant_id, payment_intent_id, step, status, error, metadata, created_at
FROM provisioning_events
WHERE correlation_id = $1
ORDER BY created_at;
`
	rows, err := r.pool.Query(ctx, q, correlationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*entity.ProvisioningEvent{}
	for rows.Next() {
		var (
			e       entity.ProvisioningEvent
			statTxt string
		)
		err := rows.Scan(
			&e.ID, &e.CorrelationID, &e.TenantID, &e.PaymentIntentID,
			&e.Step, &statTxt, &e.Error, &e.Metadata, &e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		e.Status = entity.EventStatus(statTxt)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
