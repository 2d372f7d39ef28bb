package scheduler

import (
	"context"
	"fmt"
	"time"
)

// HealthStatus represents the health of the backup scheduler.
type HealthStatus struct {
	// Status is the overall health status: "healthy", "warning", or "error"
	Status string

	// Message provides additional context about the status
	Message string

	// LastBackup is when the last successful backup completed
	LastBackup time.Time

	// NextBackup is when the next backup is scheduled
	NextBackup time.Time

	// TotalSnapshots is the number of snapshots currently stored
	TotalSnapshots int

	// StoreBytes is total payload bytes held by all snapshots
	StoreBytes int64
}

// Health returns the current health status of the scheduler and its store.
func (s *Scheduler) Health(ctx context.Context) (*HealthStatus, error) {
	s.mu.Lock()
	lastBackup := s.lastBackupTime
	nextBackup := s.nextBackupTime
	s.mu.Unlock()

	snapshots, err := s.snapshots.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var usage int64
	for _, snap := range snapshots {
		usage += int64(len(snap.Payload))
	}

	status := &HealthStatus{
		LastBackup:     lastBackup,
		NextBackup:     nextBackup,
		TotalSnapshots: len(snapshots),
		StoreBytes:     usage,
		Status:         "healthy",
	}

	now := s.clock.Now()
	switch {
	case lastBackup.IsZero():
		status.Message = "no backups yet"
	case now.Sub(lastBackup) > s.interval*2:
		status.Status = "warning"
		status.Message = fmt.Sprintf("backup overdue by %v", now.Sub(lastBackup)-s.interval)
	default:
		status.Message = fmt.Sprintf("last backup %v ago", now.Sub(lastBackup).Round(time.Second))
	}

	return status, nil
}
