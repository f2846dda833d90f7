// Package notify is the boundary to change-notification delivery. Delivery
// itself lives outside this service; the default notifier records the
// change in the log.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/notifyhub/changewatch/internal/domain"
)

// Notifier is told about every watch change that should reach the user.
type Notifier interface {
	Notify(ctx context.Context, w domain.Watch) error
}

type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, w domain.Watch) error {
	n.logger.Info("watch changed",
		zap.String("watch_id", w.ID),
		zap.String("url", w.URL),
		zap.String("title", w.Title),
		zap.Time("last_changed", w.LastChanged),
	)
	return nil
}

// ShouldNotify reports whether a finished check produces a notification.
// Muted watches never notify. An unchanged result notifies only when the
// request asked for unconditional processing.
func ShouldNotify(w domain.Watch, changed, skipIfUnchanged bool) bool {
	if w.Muted {
		return false
	}
	return changed || !skipIfUnchanged
}

var _ Notifier = (*LogNotifier)(nil)
