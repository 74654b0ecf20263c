package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"provisioning-worker/internal/entity"
	"provisioning-worker/internal/repository/postgresql"
	"provisioning-worker/internal/service"
)

// EventLister reads the provisioning audit log.
type EventLister interface {
	ListByCorrelation(ctx context.Context, correlationID string) ([]*entity.ProvisioningEvent, error)
}

type Handler struct {
	queue  *service.QueueService
	events EventLister
	log    *zap.Logger
}

func NewHandler(queue *service.QueueService, events EventLister, log *zap.Logger) *Handler {
	return &Handler{queue: queue, events: events, log: log}
}

type enqueueJobDTO struct {
	JobType         string          `json:"job_type"`
	Payload         json.RawMessage `json:"payload"`
	CorrelationID   string          `json:"correlation_id"`
	StripeEventID   string          `json:"stripe_event_id,omitempty"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	TenantID        string          `json:"tenant_id,omitempty"`
	RunAt           *time.Time      `json:"run_at,omitempty"`
}

type enqueueJobResp struct {
	ID        string `json:"id,omitempty"`
	Duplicate bool   `json:"duplicate"`
}

// EnqueueJob godoc
// @Summary Enqueue a provisioning job
// @Description Inserts a queued job. A repeated stripe_event_id is reported as duplicate=true, not an error.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body enqueueJobDTO true "job to enqueue"
// @Success 202 {object} enqueueJobResp
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /jobs [post]
func (h *Handler) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	var dto enqueueJobDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	req := service.EnqueueRequest{
		Type:            entity.JobType(dto.JobType),
		Payload:         dto.Payload,
		CorrelationID:   dto.CorrelationID,
		StripeEventID:   dto.StripeEventID,
		PaymentIntentID: dto.PaymentIntentID,
		TenantID:        dto.TenantID,
	}
	if dto.RunAt != nil {
		req.RunAt = *dto.RunAt
	}

	id, duplicate, err := h.queue.EnqueueJob(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := enqueueJobResp{Duplicate: duplicate}
	if !duplicate {
		resp.ID = id.String()
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// GetJob godoc
// @Summary Get a job by id
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} entity.Job
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	job, err := h.queue.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GetJobEvents godoc
// @Summary List provisioning events for a job's correlation id
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {array} entity.ProvisioningEvent
// @Failure 404 {object} apiError
// @Router /jobs/{id}/events [get]
func (h *Handler) GetJobEvents(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	job, err := h.queue.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	events, err := h.events.ListByCorrelation(r.Context(), job.CorrelationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type webhookDTO struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// PaymentWebhook godoc
// @Summary Receive a payment provider webhook
// @Description Records the event and enqueues webhook_process keyed by the event id; redelivered events collapse into one job.
// @Tags webhooks
// @Accept json
// @Produce json
// @Param request body webhookDTO true "provider event"
// @Success 202 {object} enqueueJobResp
// @Failure 400 {object} apiError
// @Router /webhooks/payment [post]
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var dto webhookDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if dto.ID == "" || dto.Type == "" {
		writeError(w, http.StatusBadRequest, "id and type are required")
		return
	}

	id, duplicate, err := h.queue.EnqueueJob(r.Context(), service.EnqueueRequest{
		Type: entity.TypeWebhookProcess,
		Payload: entity.WebhookPayload{
			EventType: dto.Type,
			EventID:   dto.ID,
			Data:      dto.Data,
		},
		CorrelationID: "webhook-" + dto.ID,
		StripeEventID: dto.ID,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := enqueueJobResp{Duplicate: duplicate}
	if !duplicate {
		resp.ID = id.String()
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// DeadLetterList godoc
// @Summary List dead-lettered jobs
// @Tags admin
// @Produce json
// @Success 200 {array} entity.Job
// @Failure 500 {object} apiError
// @Router /admin/dead-letter [get]
func (h *Handler) DeadLetterList(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.queue.GetDeadLetterJobs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// QueueStats godoc
// @Summary Job counts per status
// @Tags admin
// @Produce json
// @Success 200 {object} map[string]int64
// @Failure 500 {object} apiError
// @Router /admin/stats [get]
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.QueueStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type retryDTO struct {
	AdminUserID string `json:"admin_user_id"`
}

type retryResp struct {
	Retried bool `json:"retried"`
}

// DeadLetterRetry godoc
// @Summary Resurrect a dead-lettered job
// @Description Requeues a dead job with attempts reset. 409 when the job is not currently dead.
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "job id (uuid)"
// @Param request body retryDTO true "authorizing admin"
// @Success 200 {object} retryResp
// @Failure 400 {object} apiError
// @Failure 409 {object} apiError
// @Router /admin/dead-letter/{id}/retry [post]
func (h *Handler) DeadLetterRetry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var dto retryDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil || dto.AdminUserID == "" {
		writeError(w, http.StatusBadRequest, "admin_user_id is required")
		return
	}

	retried, err := h.queue.RetryDeadLetterJob(r.Context(), id, dto.AdminUserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !retried {
		writeError(w, http.StatusConflict, "job is not dead-lettered")
		return
	}
	writeJSON(w, http.StatusOK, retryResp{Retried: true})
}
