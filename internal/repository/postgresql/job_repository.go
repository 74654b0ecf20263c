package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"provisioning-worker/internal/entity"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEvent means a job for the same external event id already
	// exists. Raised by the unique index, so it is race-safe against
	// concurrent enqueues of the same event.
	ErrDuplicateEvent = errors.New("duplicate external event")
)

const jobColumns = `id, job_type, payload, correlation_id, stripe_event_id, payment_intent_id,
tenant_id, status, attempts, max_attempts, last_error, run_at, started_at, completed_at,
created_at, updated_at`

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Insert(ctx context.Context, j *entity.Job) (uuid.UUID, error) {
	const q = `
INSERT INTO provisioning_jobs
  (job_type, payload, correlation_id, stripe_event_id, payment_intent_id, tenant_id,
   status, max_attempts, run_at)
VALUES ($1, $2, $3, $4, $5, $6, 'queued', $7, $8)
RETURNING id;
`
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, q,
		string(j.Type), j.Payload, j.CorrelationID,
		j.StripeEventID, j.PaymentIntentID, j.TenantID,
		j.MaxAttempts, j.RunAt,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, ErrDuplicateEvent
		}
		return uuid.Nil, err
	}
	return id, nil
}

// Claim atomically flips up to limit due queued jobs to processing and
// returns them. FOR UPDATE SKIP LOCKED guarantees two concurrent callers
// never receive the same job.
func (r *JobRepository) Claim(ctx context.Context, limit int) ([]*entity.Job, error) {
	const q = `
WITH claimed AS (
  UPDATE provisioning_jobs
  SET status = 'processing', started_at = now(), updated_at = now()
  WHERE id IN (
    SELECT id FROM provisioning_jobs
    WHERE status = 'queued' AND run_at <= now()
    ORDER BY run_at
    FOR UPDATE SKIP LOCKED
    LIMIT $1
  )
  RETURNING ` + jobColumns + `
)
SELECT ` + jobColumns + ` FROM claimed ORDER BY run_at;
`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM provisioning_jobs WHERE id = $1;`

	j, err := scanJob(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return j, nil
}

// Complete marks a job completed. Safe to call twice: the second call
// matches the already-completed row and leaves completed_at untouched.
func (r *JobRepository) Complete(ctx context.Context, id uuid.UUID) error {
	const q = `
UPDATE provisioning_jobs
SET status = 'completed', completed_at = COALESCE(completed_at, now()), updated_at = now()
WHERE id = $1 AND status IN ('processing', 'completed');
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

// Fail records the error and increments attempts in one statement: the job
// goes back to queued at nextRun while attempts remain, otherwise to dead.
// Returns the resulting status.
func (r *JobRepository) Fail(ctx context.Context, id uuid.UUID, errMsg string, nextRun time.Time) (entity.JobStatus, error) {
	const q = `
UPDATE provisioning_jobs
SET attempts   = attempts + 1,
    last_error = $2,
    status     = CASE WHEN attempts + 1 >= max_attempts THEN 'dead' ELSE 'queued' END,
    run_at     = CASE WHEN attempts + 1 >= max_attempts THEN run_at ELSE $3 END,
    updated_at = now()
WHERE id = $1 AND status = 'processing'
RETURNING status;
`
	var status string
	if err := r.pool.QueryRow(ctx, q, id, errMsg, nextRun).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return entity.JobStatus(status), nil
}

func (r *JobRepository) DeadLetter(ctx context.Context) ([]*entity.Job, error) {
	const q = `
SELECT ` + jobColumns + `
FROM provisioning_jobs
WHERE status = 'dead'
ORDER BY updated_at DESC;
`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectJobs(rows)
}

// RetryDead resurrects a dead job. The WHERE clause is the state gate:
// zero rows affected means the job was not dead and nothing changed.
func (r *JobRepository) RetryDead(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `
UPDATE provisioning_jobs
SET status = 'queued', attempts = 0, last_error = NULL, run_at = now(), updated_at = now()
WHERE id = $1 AND status = 'dead';
`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RequeueStale returns processing jobs that have sat longer than olderThan
// back to queued. Covers workers that died between claim and complete; the
// handlers being idempotent makes the re-run safe.
func (r *JobRepository) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	const q = `
UPDATE provisioning_jobs
SET status = 'queued', updated_at = now()
WHERE status = 'processing' AND started_at < now() - $1::interval;
`
	tag, err := r.pool.Exec(ctx, q, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *JobRepository) CountByStatus(ctx context.Context, status entity.JobStatus) (int64, error) {
	const q = `SELECT COUNT(*) FROM provisioning_jobs WHERE status = $1;`

	var n int64
	if err := r.pool.QueryRow(ctx, q, string(status)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanJob(row pgx.Row) (*entity.Job, error) {
	var (
		j       entity.Job
		typTxt  string
		statTxt string
	)
	err := row.Scan(
		&j.ID, &typTxt, &j.Payload, &j.CorrelationID, &j.StripeEventID, &j.PaymentIntentID,
		&j.TenantID, &statTxt, &j.Attempts, &j.MaxAttempts, &j.LastError,
		&j.RunAt, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Type = entity.JobType(typTxt)
	j.Status = entity.JobStatus(statTxt)
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*entity.Job, error) {
	jobs := []*entity.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
