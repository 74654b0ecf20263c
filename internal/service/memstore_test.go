package service_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"provisioning-worker/internal/entity"
	"provisioning-worker/internal/repository/postgresql"
)

// memJobs mimics the postgresql job repository's semantics in memory:
// claim under one lock (exactly-once), fail-or-dead-letter in one step,
// unique stripe_event_id.
type memJobs struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]*entity.Job
	byEvent map[string]uuid.UUID
}

func newMemJobs() *memJobs {
	return &memJobs{
		rows:    map[uuid.UUID]*entity.Job{},
		byEvent: map[string]uuid.UUID{},
	}
}

func (m *memJobs) Insert(_ context.Context, j *entity.Job) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j.StripeEventID != nil {
		if _, exists := m.byEvent[*j.StripeEventID]; exists {
			return uuid.Nil, postgresql.ErrDuplicateEvent
		}
	}

	now := time.Now().UTC()
	row := *j
	row.ID = uuid.New()
	row.Status = entity.StatusQueued
	row.CreatedAt = now
	row.UpdatedAt = now
	m.rows[row.ID] = &row
	if row.StripeEventID != nil {
		m.byEvent[*row.StripeEventID] = row.ID
	}
	return row.ID, nil
}

func (m *memJobs) Claim(_ context.Context, limit int) ([]*entity.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	due := []*entity.Job{}
	for _, j := range m.rows {
		if j.Status == entity.StatusQueued && !j.RunAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(a, b int) bool { return due[a].RunAt.Before(due[b].RunAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*entity.Job, 0, len(due))
	for _, j := range due {
		started := now
		j.Status = entity.StatusProcessing
		j.StartedAt = &started
		j.UpdatedAt = now
		cp := *j
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (m *memJobs) GetByID(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.rows[id]
	if !ok {
		return nil, postgresql.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) Complete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.rows[id]
	if !ok || (j.Status != entity.StatusProcessing && j.Status != entity.StatusCompleted) {
		return postgresql.ErrNotFound
	}
	now := time.Now().UTC()
	if j.CompletedAt == nil {
		j.CompletedAt = &now
	}
	j.Status = entity.StatusCompleted
	j.UpdatedAt = now
	return nil
}

func (m *memJobs) Fail(_ context.Context, id uuid.UUID, errMsg string, nextRun time.Time) (entity.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.rows[id]
	if !ok || j.Status != entity.StatusProcessing {
		return "", postgresql.ErrNotFound
	}
	j.Attempts++
	j.LastError = &errMsg
	if j.Attempts >= j.MaxAttempts {
		j.Status = entity.StatusDead
	} else {
		j.Status = entity.StatusQueued
		j.RunAt = nextRun
	}
	j.UpdatedAt = time.Now().UTC()
	return j.Status, nil
}

func (m *memJobs) DeadLetter(_ context.Context) ([]*entity.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dead := []*entity.Job{}
	for _, j := range m.rows {
		if j.Status == entity.StatusDead {
			cp := *j
			dead = append(dead, &cp)
		}
	}
	sort.Slice(dead, func(a, b int) bool { return dead[a].UpdatedAt.After(dead[b].UpdatedAt) })
	return dead, nil
}

func (m *memJobs) RetryDead(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.rows[id]
	if !ok || j.Status != entity.StatusDead {
		return false, nil
	}
	j.Status = entity.StatusQueued
	j.Attempts = 0
	j.LastError = nil
	j.RunAt = time.Now().UTC()
	j.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *memJobs) RequeueStale(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var n int64
	for _, j := range m.rows {
		if j.Status == entity.StatusProcessing && j.StartedAt != nil && j.StartedAt.Before(cutoff) {
			j.Status = entity.StatusQueued
			j.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (m *memJobs) CountByStatus(_ context.Context, status entity.JobStatus) (int64, error) {
	return int64(m.countByStatus(status)), nil
}

func (m *memJobs) countByStatus(status entity.JobStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, j := range m.rows {
		if j.Status == status {
			n++
		}
	}
	return n
}

type memEvents struct {
	mu   sync.Mutex
	rows []*entity.ProvisioningEvent
}

func (m *memEvents) Insert(_ context.Context, e *entity.ProvisioningEvent) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now().UTC()
	m.rows = append(m.rows, &cp)
	return cp.ID, nil
}

func (m *memEvents) byStep(step string) []*entity.ProvisioningEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []*entity.ProvisioningEvent{}
	for _, e := range m.rows {
		if e.Step == step {
			out = append(out, e)
		}
	}
	return out
}
