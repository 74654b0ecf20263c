package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"provisioning-worker/internal/entity"
	"provisioning-worker/internal/mailer"
)

// Mailer is the outbound email provider. A nil mailer means no provider is
// configured; the handler then logs the would-be send and succeeds, so a
// missing email integration never blocks the rest of the pipeline.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

type emailTemplate struct {
	subject string
	html    string
}

// Placeholders use {{name}} and are filled from the payload's template_data.
var emailTemplates = map[entity.EmailType]emailTemplate{
	entity.EmailLicenseActivated: {
		subject: "Your {{plan}} license is active",
		html:    "<h1>Welcome aboard</h1><p>Your {{plan}} license for {{tenant_name}} is now active.</p>",
	},
	entity.EmailLicenseSuspended: {
		subject: "Your license has been suspended",
		html:    "<h1>License suspended</h1><p>Your license was suspended. Reason: {{reason}}</p>",
	},
	entity.EmailLicenseExpiring: {
		subject: "Your license expires on {{expires_at}}",
		html:    "<h1>License expiring</h1><p>Your {{plan}} license expires on {{expires_at}}. Renew to keep access.</p>",
	},
	entity.EmailPaymentFailed: {
		subject: "Payment failed",
		html:    "<h1>Payment failed</h1><p>We could not process your payment. Please update your billing details.</p>",
	},
	entity.EmailWelcome: {
		subject: "Welcome to {{tenant_name}}",
		html:    "<h1>Welcome</h1><p>Your workspace {{tenant_name}} is ready.</p>",
	},
	entity.EmailPasswordReset: {
		subject: "Reset your password",
		html:    "<h1>Password reset</h1><p>Use this link to reset your password: {{reset_url}}</p>",
	},
}

type EmailHandler struct {
	mailer Mailer // nil when no provider is configured
	events EventSink
	log    *zap.Logger
}

func NewEmailHandler(m Mailer, events EventSink, log *zap.Logger) *EmailHandler {
	return &EmailHandler{mailer: m, events: events, log: log}
}

func (h *EmailHandler) Handle(ctx context.Context, job *entity.Job) error {
	start := time.Now()

	var p entity.EmailPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fail(ctx, h.events, job, entity.StepEmailSent, fmt.Errorf("decode payload: %w", err))
	}
	if p.To == "" {
		return fail(ctx, h.events, job, entity.StepEmailSent, errors.New("to is required"))
	}
	tpl, ok := emailTemplates[p.EmailType]
	if !ok {
		return fail(ctx, h.events, job, entity.StepEmailSent, fmt.Errorf("unknown email type %q", p.EmailType))
	}

	subject := interpolate(tpl.subject, p.TemplateData)
	html := interpolate(tpl.html, p.TemplateData)
	masked := mailer.MaskEmail(p.To)

	if h.mailer == nil {
		h.log.Info("email provider not configured, skipping send",
			zap.String("to", masked),
			zap.String("email_type", string(p.EmailType)),
			zap.String("subject", subject),
		)
		return recordEvent(ctx, h.events, job, entity.StepEmailSent, entity.EventSkipped, "", map[string]any{
			"to":         masked,
			"email_type": string(p.EmailType),
		})
	}

	if err := h.mailer.Send(ctx, p.To, subject, html); err != nil {
		h.log.Error("email send failed",
			zap.String("to", masked),
			zap.String("email_type", string(p.EmailType)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return fail(ctx, h.events, job, entity.StepEmailSent, err)
	}

	duration := time.Since(start)
	h.log.Info("email sent",
		zap.String("to", masked),
		zap.String("email_type", string(p.EmailType)),
		zap.Duration("duration", duration),
	)
	return recordEvent(ctx, h.events, job, entity.StepEmailSent, entity.EventCompleted, "", map[string]any{
		"to":          masked,
		"email_type":  string(p.EmailType),
		"duration_ms": duration.Milliseconds(),
	})
}

func interpolate(s string, data map[string]string) string {
	for k, v := range data {
		s = strings.ReplaceAll(s, "{{"+k+"}}", v)
	}
	return s
}
