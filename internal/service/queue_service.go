package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"provisioning-worker/internal/backoff"
	"provisioning-worker/internal/entity"
	"provisioning-worker/internal/repository/postgresql"
)

// JobStore is the storage contract the queue depends on. The postgresql
// implementation must provide atomic claim (no two callers receive the
// same job), atomic fail-or-dead-letter, and a uniqueness constraint on
// the external event id.
type JobStore interface {
	Insert(ctx context.Context, j *entity.Job) (uuid.UUID, error)
	Claim(ctx context.Context, limit int) ([]*entity.Job, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	Complete(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, errMsg string, nextRun time.Time) (entity.JobStatus, error)
	DeadLetter(ctx context.Context) ([]*entity.Job, error)
	RetryDead(ctx context.Context, id uuid.UUID) (bool, error)
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
	CountByStatus(ctx context.Context, status entity.JobStatus) (int64, error)
}

type EventStore interface {
	Insert(ctx context.Context, e *entity.ProvisioningEvent) (uuid.UUID, error)
}

// Waker nudges worker pools after an enqueue. Best-effort: the durable
// queue never depends on it.
type Waker interface {
	Wake(ctx context.Context)
}

type QueueService struct {
	jobs        JobStore
	events      EventStore
	waker       Waker // optional
	retry       backoff.Strategy
	maxAttempts int
	log         *zap.Logger
}

func NewQueueService(jobs JobStore, events EventStore, waker Waker, retry backoff.Strategy, maxAttempts int, log *zap.Logger) *QueueService {
	if retry == nil {
		retry = backoff.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &QueueService{
		jobs:        jobs,
		events:      events,
		waker:       waker,
		retry:       retry,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

type EnqueueRequest struct {
	Type            entity.JobType
	Payload         any
	CorrelationID   string
	StripeEventID   string
	PaymentIntentID string
	TenantID        string
	RunAt           time.Time
	MaxAttempts     int
}

// EnqueueJob inserts a queued job. When StripeEventID is set and a job for
// that event already exists, the duplicate return is true and err is nil:
// a replayed webhook is a harmless duplicate, not a failure.
func (s *QueueService) EnqueueJob(ctx context.Context, req EnqueueRequest) (uuid.UUID, bool, error) {
	if !entity.KnownJobTypes[req.Type] {
		return uuid.Nil, false, fmt.Errorf("unknown job type %q", req.Type)
	}
	if req.CorrelationID == "" {
		return uuid.Nil, false, errors.New("correlation_id is required")
	}

	payload, err := entity.MarshalPayload(req.Payload)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("marshal payload: %w", err)
	}

	runAt := req.RunAt
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.maxAttempts
	}

	job := &entity.Job{
		Type:            req.Type,
		Payload:         payload,
		CorrelationID:   req.CorrelationID,
		StripeEventID:   optional(req.StripeEventID),
		PaymentIntentID: optional(req.PaymentIntentID),
		TenantID:        optional(req.TenantID),
		MaxAttempts:     maxAttempts,
		RunAt:           runAt,
	}

	id, err := s.jobs.Insert(ctx, job)
	if err != nil {
		if errors.Is(err, postgresql.ErrDuplicateEvent) {
			s.log.Info("duplicate enqueue ignored",
				zap.String("job_type", string(req.Type)),
				zap.String("stripe_event_id", req.StripeEventID),
			)
			return uuid.Nil, true, nil
		}
		return uuid.Nil, false, err
	}

	s.log.Info("job enqueued",
		zap.String("job_id", id.String()),
		zap.String("job_type", string(req.Type)),
		zap.String("correlation_id", req.CorrelationID),
	)
	if s.waker != nil {
		s.waker.Wake(ctx)
	}
	return id, false, nil
}

// ClaimJobs returns up to limit due jobs, now marked processing. An empty
// slice means nothing is due; callers should back off and poll again.
func (s *QueueService) ClaimJobs(ctx context.Context, limit int) ([]*entity.Job, error) {
	if limit <= 0 {
		limit = 1
	}
	return s.jobs.Claim(ctx, limit)
}

func (s *QueueService) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return s.jobs.GetByID(ctx, id)
}

func (s *QueueService) CompleteJob(ctx context.Context, id uuid.UUID) error {
	return s.jobs.Complete(ctx, id)
}

// FailJob increments attempts and either re-queues the job after a backoff
// delay or dead-letters it once attempts are exhausted.
func (s *QueueService) FailJob(ctx context.Context, id uuid.UUID, errMsg string) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}

	nextRun := time.Now().UTC().Add(s.retry.Delay(job.Attempts + 1))
	status, err := s.jobs.Fail(ctx, id, errMsg, nextRun)
	if err != nil {
		return err
	}

	if status == entity.StatusDead {
		s.log.Warn("job dead-lettered",
			zap.String("job_id", id.String()),
			zap.String("job_type", string(job.Type)),
			zap.Int("attempts", job.Attempts+1),
			zap.String("last_error", errMsg),
		)
	} else {
		s.log.Info("job re-queued after failure",
			zap.String("job_id", id.String()),
			zap.String("job_type", string(job.Type)),
			zap.Int("attempts", job.Attempts+1),
			zap.Time("run_at", nextRun),
		)
	}
	return nil
}

// RequeueStale rescues jobs stuck in processing after a worker crash.
// Called periodically by the worker binary's reaper.
func (s *QueueService) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.jobs.RequeueStale(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Warn("requeued stale processing jobs", zap.Int64("count", n))
	}
	return n, nil
}

// QueueStats reports the number of jobs in each status. Drives the admin
// stats endpoint and queue-depth monitoring.
func (s *QueueService) QueueStats(ctx context.Context) (map[entity.JobStatus]int64, error) {
	stats := map[entity.JobStatus]int64{}
	for _, status := range []entity.JobStatus{
		entity.StatusQueued, entity.StatusProcessing, entity.StatusCompleted, entity.StatusDead,
	} {
		n, err := s.jobs.CountByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		stats[status] = n
	}
	return stats, nil
}

func (s *QueueService) GetDeadLetterJobs(ctx context.Context) ([]*entity.Job, error) {
	return s.jobs.DeadLetter(ctx)
}

// RetryDeadLetterJob resurrects a dead job with attempts reset. Returns
// false when the job is not currently dead; completed and queued jobs are
// never resurrected. The authorizing admin is recorded in the audit log.
func (s *QueueService) RetryDeadLetterJob(ctx context.Context, id uuid.UUID, adminUserID string) (bool, error) {
	if adminUserID == "" {
		return false, errors.New("admin user id is required")
	}

	retried, err := s.jobs.RetryDead(ctx, id)
	if err != nil {
		return false, err
	}
	if !retried {
		return false, nil
	}

	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return true, err
	}

	metadata, _ := json.Marshal(map[string]string{
		"job_id":        id.String(),
		"job_type":      string(job.Type),
		"admin_user_id": adminUserID,
	})
	if _, err := s.events.Insert(ctx, &entity.ProvisioningEvent{
		CorrelationID: job.CorrelationID,
		TenantID:      job.TenantID,
		Step:          entity.StepDeadLetterRetry,
		Status:        entity.EventCompleted,
		Metadata:      metadata,
	}); err != nil {
		s.log.Error("record dead-letter retry event", zap.Error(err))
	}

	s.log.Info("dead-letter job resurrected",
		zap.String("job_id", id.String()),
		zap.String("admin_user_id", adminUserID),
	)
	return true, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
