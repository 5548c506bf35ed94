// Package main provides the eduflow janitor, the maintenance process that
// releases expired locks, compacts snapshot logs, and recovers orphaned
// executions.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dandpb/jung-edu-app-sub012/pkg/eventbus"
	"github.com/dandpb/jung-edu-app-sub012/pkg/events"
	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence"
)

// Janitor runs the periodic maintenance sweeps. It never runs executions
// itself; orphan recovery goes through the event bus so a worker picks the
// execution up under the normal locking rules.
type Janitor struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	locks       persistence.LockRepository
	bus         eventbus.EventPublisher
	keepLatest  int
	staleAfter  time.Duration
}

func NewJanitor(
	logger *slog.Logger,
	persist persistence.Persistence,
	locks persistence.LockRepository,
	bus eventbus.EventPublisher,
	keepLatest int,
	staleAfter time.Duration,
) *Janitor {
	return &Janitor{
		logger:      logger.With("module", "eduflow-janitor"),
		persistence: persist,
		locks:       locks,
		bus:         bus,
		keepLatest:  keepLatest,
		staleAfter:  staleAfter,
	}
}

// Start schedules the sweep and blocks until the process is signalled.
func (j *Janitor) Start(ctx context.Context, schedule string) error {
	scheduler := cron.New()

	_, err := scheduler.AddFunc(schedule, func() {
		j.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	scheduler.Start()

	j.logger.InfoContext(ctx, "Janitor started", "schedule", schedule,
		"keep_snapshots", j.keepLatest, "stale_after", j.staleAfter)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	j.logger.InfoContext(ctx, "Shutting down janitor...")

	// let an in-flight sweep finish
	<-scheduler.Stop().Done()

	return nil
}

// Sweep runs one maintenance pass.
func (j *Janitor) Sweep(ctx context.Context) {
	j.sweepLocks(ctx)
	j.compactSnapshots(ctx)
	j.recoverOrphans(ctx)
}

func (j *Janitor) sweepLocks(ctx context.Context) {
	released, err := j.locks.ReleaseExpired(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "Failed to release expired locks", "error", err)

		return
	}

	if released > 0 {
		j.logger.InfoContext(ctx, "Released expired locks", "count", released)
	}
}

func (j *Janitor) compactSnapshots(ctx context.Context) {
	for _, status := range []models.ExecutionStatus{
		models.ExecutionStatusCompleted,
		models.ExecutionStatusFailed,
	} {
		states, err := j.persistence.ExecutionRepository().ListByStatus(ctx, status)
		if err != nil {
			j.logger.ErrorContext(ctx, "Failed to list executions for compaction",
				"status", status, "error", err)

			continue
		}

		for _, st := range states {
			deleted, err := j.persistence.SnapshotRepository().Compact(ctx, st.ID, j.keepLatest)
			if err != nil {
				j.logger.ErrorContext(ctx, "Failed to compact snapshots",
					"execution_id", st.ID, "error", err)

				continue
			}

			if deleted > 0 {
				j.logger.InfoContext(ctx, "Compacted snapshots",
					"execution_id", st.ID, "deleted", deleted)
			}
		}
	}
}

// recoverOrphans publishes resume requests for executions whose state has not
// moved within the staleness window. A live run persists its state at every
// wave boundary, so staleAfter must comfortably exceed the longest wave.
func (j *Janitor) recoverOrphans(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-j.staleAfter)

	for _, status := range []models.ExecutionStatus{
		models.ExecutionStatusInitialized,
		models.ExecutionStatusRunning,
	} {
		states, err := j.persistence.ExecutionRepository().ListByStatus(ctx, status)
		if err != nil {
			j.logger.ErrorContext(ctx, "Failed to list executions for orphan recovery",
				"status", status, "error", err)

			continue
		}

		for _, st := range states {
			if st.UpdatedAt.After(cutoff) {
				continue
			}

			request := events.NewResumeRequested(st.WorkflowID, st.ID, events.ResumeReasonOrphanRecovery)

			if err := j.bus.Publish(ctx, st.WorkflowID, request); err != nil {
				j.logger.ErrorContext(ctx, "Failed to publish orphan recovery request",
					"execution_id", st.ID, "error", err)

				continue
			}

			j.logger.InfoContext(ctx, "Requested orphan recovery",
				"workflow_id", st.WorkflowID, "execution_id", st.ID,
				"status", st.Status, "last_update", st.UpdatedAt)
		}
	}
}
