package redis

import (
	"context"
	"errors"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/okian/prix/pkg/metrics"
)

// MetricsHook implements goredis.Hook to record every command in pkg/metrics.
type MetricsHook struct{}

var _ goredis.Hook = (*MetricsHook)(nil)

// DialHook counts failed connection attempts.
func (h *MetricsHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			metrics.RecordErrorByComponent("redis", "dial_error")
		}
		return conn, err
	}
}

// ProcessHook times single commands.
func (h *MetricsHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		metrics.RecordRedisOperation(cmd.Name(), status(err), float64(time.Since(start).Milliseconds()))
		return err
	}
}

// ProcessPipelineHook times a pipeline as one operation.
func (h *MetricsHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		metrics.RecordRedisOperation("pipeline", status(err), float64(time.Since(start).Milliseconds()))
		return err
	}
}

func status(err error) string {
	if err != nil && !errors.Is(err, goredis.Nil) {
		return "error"
	}
	return "success"
}
