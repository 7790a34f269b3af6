package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// Pinger is the subset of a connection pool used for database probes.
// *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabasePing probes database connectivity. Intended as a readiness probe so
// the service stops taking traffic while the database is unreachable.
func DatabasePing(db Pinger) Check {
	return func(ctx context.Context) error {
		if err := db.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping database")
		}
		return nil
	}
}

// GoroutineCeiling probes for goroutine leaks; fails once the runtime exceeds
// the given count.
func GoroutineCeiling(max int) Check {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > max {
			return errors.Errorf("%d goroutines, ceiling is %d", n, max)
		}
		return nil
	}
}

// GCPauseCeiling probes recent stop-the-world pauses and fails when any
// exceeds the given duration.
func GCPauseCeiling(max time.Duration) Check {
	return func(_ context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		for _, pause := range stats.Pause {
			if pause > max {
				return errors.Errorf("GC pause %s, ceiling is %s", pause, max)
			}
		}
		return nil
	}
}
