package storage

import (
	"context"
	"time"

	"github.com/dgellow/checkin-front/internal/log"
)

// CleanupManager handles periodic cleanup of expired sessions and states
type CleanupManager struct {
	sweeper  Sweeper
	interval time.Duration
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(sweeper Sweeper, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		sweeper:  sweeper,
		interval: interval,
	}
}

// Run sweeps immediately and then every interval until ctx is done
func (cm *CleanupManager) Run(ctx context.Context) error {
	log.LogInfoWithFields("cleanup", "Starting session cleanup manager", map[string]any{
		"interval": cm.interval.String(),
	})

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.cleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.cleanup(ctx)
		case <-ctx.Done():
			log.LogInfoWithFields("cleanup", "Session cleanup manager stopped", nil)
			return nil
		}
	}
}

// cleanup performs the actual cleanup operation
func (cm *CleanupManager) cleanup(ctx context.Context) {
	count, err := cm.sweeper.CleanupExpired(ctx)
	if err != nil {
		log.LogErrorWithFields("cleanup", "Failed to cleanup expired sessions", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if count > 0 {
		log.LogInfoWithFields("cleanup", "Cleaned up expired sessions", map[string]any{
			"count": count,
		})
	}
}
