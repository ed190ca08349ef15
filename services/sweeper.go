package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper runs the periodic expiry jobs: stale pending payments, expired
// credit and referral relationships past their window.
type Sweeper struct {
	payments  *PaymentService
	ledger    *CreditLedger
	referrals *ReferralService
	interval  time.Duration
	logger    *zap.Logger
}

// SweepReport counts the rows moved by one sweep
type SweepReport struct {
	Payments  int   `json:"payments"`
	Credits   int   `json:"credits"`
	Referrals int64 `json:"referrals"`
}

func NewSweeper(payments *PaymentService, ledger *CreditLedger, referrals *ReferralService, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		payments:  payments,
		ledger:    ledger,
		referrals: referrals,
		interval:  interval,
		logger:    logger.Named("sweeper"),
	}
}

// RunOnce runs every job at now. Each job runs even if an earlier one failed;
// the first error is returned.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) (SweepReport, error) {
	var report SweepReport
	var firstErr error
	record := func(job string, err error) {
		if err == nil {
			return
		}
		s.logger.Error("sweep failed", zap.String("job", job), zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	var err error
	report.Payments, err = s.payments.ExpireStale(ctx, now)
	record("payments", err)

	report.Credits, err = s.ledger.ExpireSweep(ctx, now)
	record("credits", err)

	report.Referrals, err = s.referrals.ExpireRelationships(ctx, now)
	record("referrals", err)

	return report, firstErr
}

// Run sweeps on every tick until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case now := <-ticker.C:
			report, _ := s.RunOnce(ctx, now)
			if report.Payments+report.Credits > 0 || report.Referrals > 0 {
				s.logger.Info("sweep finished",
					zap.Int("payments", report.Payments),
					zap.Int("credits", report.Credits),
					zap.Int64("referrals", report.Referrals))
			}
		}
	}
}
