// Package scheduler runs the recurring maintenance enqueues. Today that is
// the nightly license expiry scan.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"provisioning-worker/internal/entity"
	"provisioning-worker/internal/service"
)

// LicenseLister is the slice of the license store the scan reads.
type LicenseLister interface {
	ListExpiring(ctx context.Context, within time.Duration) ([]*entity.License, error)
}

type Scheduler struct {
	cron     *cron.Cron
	licenses LicenseLister
	emails   *service.EmailEnqueuer
	window   time.Duration
	log      *zap.Logger
}

func New(licenses LicenseLister, emails *service.EmailEnqueuer, window time.Duration, log *zap.Logger) *Scheduler {
	if window <= 0 {
		window = 14 * 24 * time.Hour
	}
	return &Scheduler{
		cron:     cron.New(),
		licenses: licenses,
		emails:   emails,
		window:   window,
		log:      log,
	}
}

// Start registers the expiry scan under spec and starts the cron loop.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.RunExpiryScan(ctx); err != nil {
			s.log.Error("expiry scan", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunExpiryScan enqueues a license_expiring email for every active license
// that expires within the window. The idempotency key includes the scan
// date, so re-running a scan on the same day cannot double-send.
func (s *Scheduler) RunExpiryScan(ctx context.Context) error {
	licenses, err := s.licenses.ListExpiring(ctx, s.window)
	if err != nil {
		return err
	}

	day := time.Now().UTC().Format("2006-01-02")
	enqueued := 0
	for _, lic := range licenses {
		if lic.ContactEmail == nil || *lic.ContactEmail == "" || lic.ExpiresAt == nil {
			continue
		}
		_, dup, err := s.emails.LicenseExpiring(ctx, *lic.ContactEmail, service.EmailOpts{
			CorrelationID: "expiry-scan-" + day,
			TenantID:      lic.TenantID,
			StripeEventID: "expiry-" + lic.ID.String() + "-" + day,
			TemplateData: map[string]string{
				"plan":       lic.Plan,
				"expires_at": lic.ExpiresAt.Format("January 2, 2006"),
			},
		})
		if err != nil {
			return err
		}
		if !dup {
			enqueued++
		}
	}

	s.log.Info("expiry scan finished",
		zap.Int("licenses_expiring", len(licenses)),
		zap.Int("emails_enqueued", enqueued),
	)
	return nil
}
