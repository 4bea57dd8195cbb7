package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sprintpilot/sprintpilot/internal/config"
	"github.com/sprintpilot/sprintpilot/internal/repo"
)

type service interface {
	RecordSnapshots(ctx context.Context) error
}

// snapshotLockKey guards the sweep when several instances share a database.
const snapshotLockKey int64 = 771537

type Cron struct {
	cfg  config.Config
	log  zerolog.Logger
	svc  service
	repo *repo.Repository
	c    *cron.Cron
}

func NewCron(cfg config.Config, log zerolog.Logger, svc service, r *repo.Repository) *Cron {
	loc, _ := time.LoadLocation(cfg.TZ)
	c := cron.New(cron.WithLocation(loc),
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
	cr := &Cron{cfg: cfg, log: log, svc: svc, repo: r, c: c}
	_, _ = c.AddFunc(cfg.SnapshotCron, cr.snapshot)
	return cr
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { cr.c.Stop() }

func (cr *Cron) snapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ok, err := cr.repo.TryAdvisoryLock(ctx, snapshotLockKey)
	if err != nil {
		cr.log.Error().Err(err).Msg("cron: lock error")
		return
	}
	if !ok {
		cr.log.Info().Msg("cron: snapshot already running elsewhere")
		return
	}
	defer func() { _ = cr.repo.AdvisoryUnlock(context.Background(), snapshotLockKey) }()
	cr.log.Info().Msg("cron: sprint snapshot sweep")
	if err := cr.svc.RecordSnapshots(ctx); err != nil {
		cr.log.Error().Err(err).Msg("cron: snapshot sweep failed")
	}
}
