package housekeeping

import (
	"context"
	"time"

	"github.com/mehmetcc/lms/internal/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const purgeTimeout = 30 * time.Second

type ResetTokenStore interface {
	PurgeExpiredResetTokens(ctx context.Context) (int64, error)
}

// Purger clears password reset tokens whose expiry has passed so that stale
// tokens do not linger in the credential store.
type Purger struct {
	store   ResetTokenStore
	logger  *zap.Logger
	metrics *metrics.Metrics
	cron    *cron.Cron
}

func NewPurger(store ResetTokenStore, schedule string, logger *zap.Logger, m *metrics.Metrics) (*Purger, error) {
	cl := cronLogger{s: logger.Sugar()}
	p := &Purger{
		store:   store,
		logger:  logger,
		metrics: m,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
	if _, err := p.cron.AddFunc(schedule, p.run); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Purger) run() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()
	_, _ = p.RunOnce(ctx)
}

// RunOnce purges immediately and reports how many tokens were cleared.
func (p *Purger) RunOnce(ctx context.Context) (int64, error) {
	n, err := p.store.PurgeExpiredResetTokens(ctx)
	if err != nil {
		p.logger.Error("failed to purge expired reset tokens", zap.Error(err))
		return 0, err
	}
	p.metrics.ResetTokensPurgedAdd(n)
	if n > 0 {
		p.logger.Info("purged expired reset tokens", zap.Int64("count", n))
	}
	return n, nil
}

func (p *Purger) Start() {
	p.cron.Start()
}

// Stop halts scheduling and returns a context done once a running purge ends.
func (p *Purger) Stop() context.Context {
	return p.cron.Stop()
}

type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
