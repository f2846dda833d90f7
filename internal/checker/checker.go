package checker

import (
	"context"

	"github.com/notifyhub/changewatch/internal/domain"
)

// Checker fetches a watch's URL and compares it with the last known content.
// Mocking this interface in tests gives full control over check outcomes
// without making real HTTP calls.
type Checker interface {
	Check(ctx context.Context, w domain.Watch) (domain.CheckResult, error)
}

// ProxyResolver maps a watch's proxy name to a proxy URL.
// Implemented by *config.ProxyList.
type ProxyResolver interface {
	Lookup(name string) (string, bool)
}

// Func adapts a plain function to Checker.
type Func func(ctx context.Context, w domain.Watch) (domain.CheckResult, error)

func (f Func) Check(ctx context.Context, w domain.Watch) (domain.CheckResult, error) {
	return f(ctx, w)
}
