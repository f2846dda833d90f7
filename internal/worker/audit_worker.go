package worker

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/notifyhub/changewatch/internal/status"
)

// maxLoggedOverdue caps how many overdue ids one audit log line carries.
const maxLoggedOverdue = 20

// AuditWorker takes a status snapshot on a cron schedule, hands it to
// OnStatus (metrics gauges) and logs overdue watches.
type AuditWorker struct {
	reporter *status.Reporter
	schedule string
	parser   cron.Parser
	logger   *zap.Logger

	OnStatus func(status.Status)
}

func NewAuditWorker(reporter *status.Reporter, schedule string, logger *zap.Logger) *AuditWorker {
	return &AuditWorker{
		reporter: reporter,
		schedule: schedule,
		parser:   cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:   logger,
	}
}

// Validate checks the schedule expression without starting anything.
func (aw *AuditWorker) Validate() error {
	if _, err := aw.parser.Parse(aw.schedule); err != nil {
		return fmt.Errorf("audit schedule %q: %w", aw.schedule, err)
	}
	return nil
}

// Run starts the cron scheduler and blocks until ctx is cancelled.
func (aw *AuditWorker) Run(ctx context.Context) error {
	c := cron.New(cron.WithParser(aw.parser))
	if _, err := c.AddFunc(aw.schedule, func() { aw.Audit() }); err != nil {
		return fmt.Errorf("audit schedule %q: %w", aw.schedule, err)
	}
	c.Start()
	aw.logger.Info("audit worker started", zap.String("schedule", aw.schedule))

	<-ctx.Done()
	<-c.Stop().Done()
	aw.logger.Info("audit worker stopping")
	return nil
}

// Audit takes one snapshot.
func (aw *AuditWorker) Audit() status.Status {
	snap := aw.reporter.Snapshot()
	if aw.OnStatus != nil {
		aw.OnStatus(snap)
	}

	if n := len(snap.OverdueWatchIDs); n > 0 {
		ids := snap.OverdueWatchIDs
		if n > maxLoggedOverdue {
			ids = ids[:maxLoggedOverdue]
		}
		aw.logger.Warn("watches overdue",
			zap.Int("count", n),
			zap.Strings("watch_ids", ids),
			zap.Int("queue_size", snap.QueueSize),
		)
	}
	return snap
}
