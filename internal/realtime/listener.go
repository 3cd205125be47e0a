package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Listener holds one pooled connection in LISTEN mode and forwards notifications.
// Errors end Run; there is no automatic reconnect.
type Listener struct {
	pool   *pgxpool.Pool
	sink   Dispatcher
	logger *zap.Logger
}

func NewListener(pool *pgxpool.Pool, sink Dispatcher, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{pool: pool, sink: sink, logger: logger}
}

func (l *Listener) Run(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("listen %s: %w", Channel, err)
	}
	l.logger.Info("listening for changes", zap.String("channel", Channel))

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			l.logger.Error("change feed stopped", zap.Error(err))
			return fmt.Errorf("wait for notification: %w", err)
		}
		c, err := ParseChange([]byte(n.Payload))
		if err != nil {
			l.logger.Warn("dropping malformed notification", zap.String("payload", n.Payload), zap.Error(err))
			continue
		}
		l.sink.Dispatch(SourceDatabase, c)
	}
}
