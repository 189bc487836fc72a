package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type staleExpirer interface {
	ExpireStale(ctx context.Context, before time.Time) (int64, error)
}

// runCleanup abandons clarification requests older than window every freq
// until stopCh is closed
func runCleanup(s staleExpirer, logger *zap.Logger, freq, window time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := s.ExpireStale(context.Background(), time.Now().Add(-window))
			if err != nil {
				logger.Error("Failed to expire stale clarification requests", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("Abandoned stale clarification requests", zap.Int64("expired_count", n))
			}
		case <-stopCh:
			return
		}
	}
}
