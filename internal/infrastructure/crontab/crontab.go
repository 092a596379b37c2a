package crontab

import (
	"context"
	"fmt"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"jan-server/services/support-api/internal/config"
	"jan-server/services/support-api/internal/domain/support"
)

const (
	// retentionSchedule runs the sweeper at the top of every hour.
	retentionSchedule = "0 * * * *"
	// jobTimeout bounds each sweep run.
	jobTimeout = 5 * time.Minute
)

// Crontab owns the background jobs of the support service.
type Crontab struct {
	ctab    *crontab.Crontab
	cfg     *config.Config
	service *support.Service
	logger  zerolog.Logger
}

// New constructs the job runner.
func New(cfg *config.Config, service *support.Service, logger zerolog.Logger) *Crontab {
	return &Crontab{
		ctab:    crontab.New(),
		cfg:     cfg,
		service: service,
		logger:  logger.With().Str("component", "crontab").Logger(),
	}
}

// Run executes the retention sweep once at startup, schedules the
// recurring job, and blocks until the context is canceled.
func (c *Crontab) Run(ctx context.Context) error {
	if !c.cfg.RetentionEnabled {
		c.logger.Info().Msg("retention sweeper disabled")
		<-ctx.Done()
		return nil
	}

	// Sweep once on server start so a long downtime does not leave
	// stale conversations lingering until the next schedule tick.
	c.closeStaleConversations(ctx)

	if err := c.ctab.AddJob(retentionSchedule, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		c.closeStaleConversations(jobCtx)
	}); err != nil {
		return fmt.Errorf("schedule retention job: %w", err)
	}
	c.logger.Info().
		Dur("window", c.cfg.RetentionWindow).
		Msg("retention sweeper scheduled hourly")

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

func (c *Crontab) closeStaleConversations(ctx context.Context) {
	closed, err := c.service.CloseStaleResolved(ctx, c.cfg.RetentionWindow)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to close stale resolved conversations")
		return
	}
	if closed > 0 {
		c.logger.Info().
			Int64("count", closed).
			Msg("closed stale resolved conversations")
	}
}
