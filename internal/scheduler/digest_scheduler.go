package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/deaconkarim/deacon-insights/internal/eventbus"
	"github.com/deaconkarim/deacon-insights/internal/services"
)

const runTimeout = 5 * time.Minute

// DigestSource builds weekly digests
type DigestSource interface {
	GetWeeklyDigest(ctx context.Context, organizationID string, forceRefresh bool) *services.WeeklyDigest
}

// DigestScheduler regenerates and publishes weekly digests on a cron schedule
type DigestScheduler struct {
	cron          *cron.Cron
	schedule      string
	source        DigestSource
	publisher     eventbus.Publisher
	monitoring    *services.MonitoringService
	organizations []string
	topic         string
	logger        *zap.Logger
}

// Options configures the scheduler
type Options struct {
	Schedule      string
	Organizations []string
	Topic         string
}

// NewDigestScheduler validates the schedule and creates a scheduler
func NewDigestScheduler(
	source DigestSource,
	publisher eventbus.Publisher,
	monitoring *services.MonitoringService,
	opts Options,
	logger *zap.Logger,
) (*DigestScheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := cron.ParseStandard(opts.Schedule); err != nil {
		return nil, fmt.Errorf("invalid digest schedule %q: %w", opts.Schedule, err)
	}

	return &DigestScheduler{
		cron:          cron.New(),
		schedule:      opts.Schedule,
		source:        source,
		publisher:     publisher,
		monitoring:    monitoring,
		organizations: opts.Organizations,
		topic:         opts.Topic,
		logger:        logger.Named("digest-scheduler"),
	}, nil
}

// RunOnce regenerates every configured organization's digest and publishes it.
// One organization failing does not stop the rest.
func (s *DigestScheduler) RunOnce(ctx context.Context) error {
	var errs []error

	for _, organizationID := range s.organizations {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		digest := s.source.GetWeeklyDigest(ctx, organizationID, true)
		if digest.Error != "" {
			s.logger.Error("Weekly digest failed",
				zap.String("organization_id", organizationID),
				zap.String("error", digest.Error))
			errs = append(errs, fmt.Errorf("digest for %s: %s", organizationID, digest.Error))
			continue
		}

		if err := s.publisher.Publish(ctx, s.topic, digest); err != nil {
			s.monitoring.RecordDigestPublished(false)
			s.logger.Error("Failed to publish weekly digest",
				zap.String("organization_id", organizationID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("publish digest for %s: %w", organizationID, err))
			continue
		}

		s.monitoring.RecordDigestPublished(true)
		s.logger.Info("Weekly digest published",
			zap.String("organization_id", organizationID),
			zap.String("digest_id", digest.ID),
			zap.String("topic", s.topic))
	}

	return errors.Join(errs...)
}

// Start schedules RunOnce and starts the cron runner
func (s *DigestScheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		s.logger.Info("Executing weekly digest run", zap.Int("organizations", len(s.organizations)))
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Warn("Weekly digest run finished with errors", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add digest job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Digest scheduler started", zap.String("schedule", s.schedule))
	return nil
}

// Stop stops scheduling and waits for a running job until ctx is done
func (s *DigestScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
