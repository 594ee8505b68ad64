// Package worker recomputes derived state in response to ledger change
// notifications, plus a periodic reconcile pass for anything the bus missed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"conti/internal/amqp"
	"conti/internal/export"
	"conti/internal/insights"
	"conti/internal/ledger"
	"conti/internal/storage"
)

// RecomputeWorker consumes change messages and refreshes balance snapshots.
type RecomputeWorker struct {
	storage  *storage.SQLiteRepository
	exporter export.StatementWriter
	now      func() time.Time
}

// NewRecomputeWorker creates a worker. The exporter may be nil; snapshots are
// still refreshed, only the external statement trail is skipped.
func NewRecomputeWorker(repo *storage.SQLiteRepository, exporter export.StatementWriter) *RecomputeWorker {
	return &RecomputeWorker{
		storage:  repo,
		exporter: exporter,
		now:      time.Now,
	}
}

// HandleChange processes one change message from the bus.
func (w *RecomputeWorker) HandleChange(msg *amqp.ChangeMessage) error {
	ctx := context.Background()

	switch msg.Kind {
	case amqp.KindGroupChanged:
		return w.RecomputeGroup(ctx, msg.GroupID)
	case amqp.KindPersonalChanged:
		return w.refreshPersonal(ctx, msg.UserUID)
	default:
		// Unknown kinds were already rejected by message parsing; dropping
		// here keeps the queue moving if that ever changes.
		slog.WarnContext(ctx, "Dropping change message with unknown kind", "kind", msg.Kind)
		return nil
	}
}

// RecomputeGroup rebuilds a group's balance snapshot from the full ledger and
// appends a statement to the external trail when one is configured.
func (w *RecomputeWorker) RecomputeGroup(ctx context.Context, groupID string) error {
	group, err := w.storage.GetGroup(ctx, groupID)
	if errors.Is(err, storage.ErrNotFound) {
		// The group was deleted after the message was published.
		slog.WarnContext(ctx, "Skipping recompute for missing group", "group_id", groupID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load group: %w", err)
	}

	expenses, err := w.storage.ListGroupExpenses(ctx, groupID)
	if err != nil {
		return fmt.Errorf("load expenses: %w", err)
	}
	settlements, err := w.storage.ListSettlements(ctx, groupID)
	if err != nil {
		return fmt.Errorf("load settlements: %w", err)
	}

	started := w.now()
	debts := ledger.ComputeBalances(expenses, settlements, group.Members)

	snap := storage.BalanceSnapshot{
		GroupID:    groupID,
		Debts:      debts,
		ComputedAt: w.now(),
	}
	if err := w.storage.UpsertBalanceSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Balances recomputed",
		"group_id", groupID,
		"debts", len(debts),
		"expenses", len(expenses),
		"duration_ms", time.Since(started).Milliseconds())

	if w.exporter != nil {
		// Export failure must not requeue the message forever; the snapshot
		// is already stored and the next recompute retries the trail.
		if err := w.exporter.AppendStatement(ctx, groupID, group.Name, debts); err != nil {
			slog.ErrorContext(ctx, "Failed to append statement", "group_id", groupID, "error", err)
		}
	}

	return nil
}

// refreshPersonal runs recurrence detection for visibility. The API serves
// recurrence from its own cache, so there is nothing to persist; the log line
// gives operators a trace of detector behavior per change.
func (w *RecomputeWorker) refreshPersonal(ctx context.Context, userUID string) error {
	expenses, err := w.storage.ListPersonalExpenses(ctx, userUID)
	if err != nil {
		return fmt.Errorf("load personal expenses: %w", err)
	}

	res := insights.DetectRecurring(expenses)
	slog.InfoContext(ctx, "Recurrence refreshed",
		"user_uid", userUID,
		"expenses", len(expenses),
		"recurring_groups", len(res.Groups),
		"recurring_expenses", len(res.RecurringIDs))
	return nil
}

// ReconcileAll recomputes every group. Run periodically as a backstop for
// lost messages.
func (w *RecomputeWorker) ReconcileAll(ctx context.Context) error {
	ids, err := w.storage.ListGroupIDs(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}

	var failed int
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.RecomputeGroup(ctx, id); err != nil {
			failed++
			slog.ErrorContext(ctx, "Reconcile recompute failed", "group_id", id, "error", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("reconcile: %d of %d groups failed", failed, len(ids))
	}
	return nil
}
