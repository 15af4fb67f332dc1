package db

import (
	"context"
	"time"

	"github.com/unklstewy/flight-display/pkg/config"
	"github.com/unklstewy/flight-display/pkg/logger"
)

// maxReconnectDelay caps the exponential backoff between attempts.
const maxReconnectDelay = 60 * time.Second

// ReconnectWithRetry attempts to connect to the database with exponential backoff.
// This lets flight-display start before the collector database is up.
//
// Parameters:
//   - cfg: Database configuration
//   - maxRetries: Maximum number of connection attempts (0 = until ctx is done)
//   - initialDelay: Initial wait time between retries
//
// Returns: Connected database, or the last error once retries or ctx run out
func ReconnectWithRetry(ctx context.Context, cfg config.DatabaseConfig, maxRetries int, initialDelay time.Duration, log logger.Logger) (*DB, error) {
	delay := initialDelay
	attempt := 0

	for {
		attempt++
		log.Debug("Database connection attempt", "attempt", attempt, "host", cfg.Host)

		db, err := Connect(cfg)
		if err == nil {
			if attempt > 1 {
				log.Info("Database connected", "attempts", attempt)
			}
			return db, nil
		}

		if maxRetries > 0 && attempt >= maxRetries {
			log.Error("Database connection failed", "attempts", attempt, "error", err)
			return nil, classify(err)
		}

		log.Warn("Database connection failed, retrying", "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return nil, classify(ctx.Err())
		case <-time.After(delay):
		}

		delay = nextDelay(delay)
	}
}

// nextDelay doubles d up to maxReconnectDelay.
func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > maxReconnectDelay {
		d = maxReconnectDelay
	}
	return d
}

// HealthCheck reports whether the database answers a trivial query.
func HealthCheck(ctx context.Context, db *DB) bool {
	if db == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return false
	}
	return result == 1
}
