package realtime

import (
	"context"

	"go.uber.org/zap"
)

// RunFeed runs a change feed until ctx is done. A feed that fails is logged and left
// inactive: RunFeed keeps waiting on ctx and returns nil, so the failure never ends the
// process that hosts it.
func RunFeed(ctx context.Context, name string, logger *zap.Logger, run func(context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := run(ctx); err != nil {
		logger.Error("realtime feed stopped; subscriptions stay inactive until restart",
			zap.String("feed", name), zap.Error(err))
	}
	<-ctx.Done()
	return nil
}
