package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	maintenanceInterval = 1 * time.Hour
	vacuumInterval      = 7 * 24 * time.Hour
)

func retentionCutoff(now time.Time, retentionDays int) time.Time {
	return now.AddDate(0, 0, -retentionDays)
}

func (s *SQLiteStore) maintenanceLoop(ctx context.Context) {
	defer close(s.maintenanceDone)

	lastVacuum := time.Now()
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.runMaintenanceCycle(now)

			if now.Sub(lastVacuum) >= vacuumInterval {
				if _, err := s.db.Exec("VACUUM"); err != nil {
					s.log.Error("VACUUM failed", zap.Error(err))
				} else {
					lastVacuum = now
				}
			}
		}
	}
}

// runMaintenanceCycle drops sessions older than the retention window.
func (s *SQLiteStore) runMaintenanceCycle(now time.Time) int {
	n := s.Delete(retentionCutoff(now, s.retentionDays))
	if n > 0 {
		s.log.Info("pruned old sessions", zap.Int("count", n))
	}
	return n
}
