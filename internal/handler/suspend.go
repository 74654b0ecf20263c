package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"provisioning-worker/internal/entity"
)

// SuspendHandler serves both license_suspend and license_reactivate. The
// payload's action field wins when present; otherwise the job type decides.
// A missing license id is a loud failure, never a silent no-op.
type SuspendHandler struct {
	licenses LicenseStore
	events   EventSink
	log      *zap.Logger
}

func NewSuspendHandler(licenses LicenseStore, events EventSink, log *zap.Logger) *SuspendHandler {
	return &SuspendHandler{licenses: licenses, events: events, log: log}
}

func (h *SuspendHandler) Handle(ctx context.Context, job *entity.Job) error {
	var p entity.SuspendPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fail(ctx, h.events, job, entity.StepLicenseSuspended, fmt.Errorf("decode payload: %w", err))
	}

	action := p.Action
	if action == "" {
		if job.Type == entity.TypeLicenseReactivate {
			action = "reactivate"
		} else {
			action = "suspend"
		}
	}
	step := entity.StepLicenseSuspended
	if action == "reactivate" {
		step = entity.StepLicenseReactivated
	}

	if p.LicenseID == "" {
		return fail(ctx, h.events, job, step, errors.New("license_id is required"))
	}
	licenseID, err := uuid.Parse(p.LicenseID)
	if err != nil {
		return fail(ctx, h.events, job, step, fmt.Errorf("invalid license_id %q: %w", p.LicenseID, err))
	}

	switch action {
	case "suspend":
		err = h.licenses.Suspend(ctx, licenseID, p.Reason)
	case "reactivate":
		err = h.licenses.Reactivate(ctx, licenseID)
	default:
		err = fmt.Errorf("unknown action %q", action)
	}
	if err != nil {
		return fail(ctx, h.events, job, step, err)
	}

	h.log.Info("license status changed",
		zap.String("license_id", licenseID.String()),
		zap.String("action", action),
		zap.String("reason", p.Reason),
	)
	return recordEvent(ctx, h.events, job, step, entity.EventCompleted, "", map[string]any{
		"license_id": licenseID.String(),
		"action":     action,
		"reason":     p.Reason,
	})
}
