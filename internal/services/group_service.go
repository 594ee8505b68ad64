// Package services orchestrates storage, the change bus, and the analytical
// cores behind the HTTP handlers.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"conti/internal/amqp"
	"conti/internal/cache"
	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/storage"
)

var (
	ErrForbidden = errors.New("caller is not a member of this group")
	ErrNotFound  = storage.ErrNotFound
)

// ChangePublisher publishes ledger change notifications. A nil publisher is
// tolerated: writes still succeed and the periodic reconcile pass catches up.
type ChangePublisher interface {
	PublishChange(ctx context.Context, msg *amqp.ChangeMessage) error
}

// GroupService owns the shared-group workflows: membership, expenses,
// settlements, and balance reads.
type GroupService struct {
	storage   *storage.SQLiteRepository
	publisher ChangePublisher
	balances  *cache.LRUCache[[]ledger.PairwiseDebt]
}

func NewGroupService(repo *storage.SQLiteRepository, publisher ChangePublisher, cacheTTL time.Duration) *GroupService {
	return &GroupService{
		storage:   repo,
		publisher: publisher,
		balances:  cache.NewLRUCache[[]ledger.PairwiseDebt](256, cacheTTL),
	}
}

// CreateGroup creates a group with the caller as its first member.
func (s *GroupService) CreateGroup(ctx context.Context, name string, creator core.Member) (core.Group, error) {
	g := core.Group{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedBy: creator.UID,
		Members:   []core.Member{creator},
		CreatedAt: time.Now().UTC(),
	}
	if err := g.Validate(); err != nil {
		return core.Group{}, err
	}
	if err := s.storage.CreateGroup(ctx, g); err != nil {
		return core.Group{}, fmt.Errorf("create group: %w", err)
	}

	slog.InfoContext(ctx, "Group created", "group_id", g.ID, "created_by", creator.UID)
	return g, nil
}

// GetGroup returns the group if the caller belongs to it.
func (s *GroupService) GetGroup(ctx context.Context, callerUID, groupID string) (core.Group, error) {
	return s.memberGroup(ctx, callerUID, groupID)
}

// ListGroups returns every group the caller belongs to.
func (s *GroupService) ListGroups(ctx context.Context, callerUID string) ([]core.Group, error) {
	return s.storage.ListGroupsForUser(ctx, callerUID)
}

// AddMember adds a member to a group the caller belongs to. Re-adding an
// existing member refreshes their stored display name.
func (s *GroupService) AddMember(ctx context.Context, callerUID, groupID string, m core.Member) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if _, err := s.memberGroup(ctx, callerUID, groupID); err != nil {
		return err
	}
	if err := s.storage.AddMember(ctx, groupID, m); err != nil {
		return fmt.Errorf("add member: %w", err)
	}

	s.invalidate(ctx, groupID)
	return nil
}

// AddExpense records a shared expense and triggers a balance recomputation.
func (s *GroupService) AddExpense(ctx context.Context, callerUID string, e core.GroupExpense) (core.GroupExpense, error) {
	group, err := s.memberGroup(ctx, callerUID, e.GroupID)
	if err != nil {
		return core.GroupExpense{}, err
	}

	e.ID = uuid.NewString()
	if err := e.Validate(); err != nil {
		return core.GroupExpense{}, err
	}
	if !group.HasMember(e.PaidBy) {
		return core.GroupExpense{}, ErrForbidden
	}

	if err := s.storage.CreateGroupExpense(ctx, e); err != nil {
		return core.GroupExpense{}, fmt.Errorf("create group expense: %w", err)
	}

	slog.InfoContext(ctx, "Group expense created",
		"group_id", e.GroupID,
		"expense_id", e.ID,
		"amount_cents", e.Amount.Cents)

	s.invalidate(ctx, e.GroupID)
	return e, nil
}

// ListExpenses returns the group's expenses, newest first.
func (s *GroupService) ListExpenses(ctx context.Context, callerUID, groupID string) ([]core.GroupExpense, error) {
	if _, err := s.memberGroup(ctx, callerUID, groupID); err != nil {
		return nil, err
	}
	return s.storage.ListGroupExpenses(ctx, groupID)
}

// DeleteExpense removes a shared expense. Expenses are immutable; deletion is
// the only edit.
func (s *GroupService) DeleteExpense(ctx context.Context, callerUID, groupID, expenseID string) error {
	if _, err := s.memberGroup(ctx, callerUID, groupID); err != nil {
		return err
	}

	e, err := s.storage.GetGroupExpense(ctx, expenseID)
	if err != nil {
		return err
	}
	if e.GroupID != groupID {
		return storage.ErrNotFound
	}

	if err := s.storage.DeleteGroupExpense(ctx, expenseID); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Group expense deleted", "group_id", groupID, "expense_id", expenseID)

	s.invalidate(ctx, groupID)
	return nil
}

// AddSettlement records a payment between two members. Display names are
// resolved and frozen at write time.
func (s *GroupService) AddSettlement(ctx context.Context, callerUID string, st core.Settlement) (core.Settlement, error) {
	group, err := s.memberGroup(ctx, callerUID, st.GroupID)
	if err != nil {
		return core.Settlement{}, err
	}

	st.ID = uuid.NewString()
	if err := st.Validate(); err != nil {
		return core.Settlement{}, err
	}
	if !group.HasMember(st.From) || !group.HasMember(st.To) {
		return core.Settlement{}, ErrForbidden
	}

	st.FromName = memberLabel(group, st.From)
	st.ToName = memberLabel(group, st.To)

	if err := s.storage.CreateSettlement(ctx, st); err != nil {
		return core.Settlement{}, fmt.Errorf("create settlement: %w", err)
	}

	slog.InfoContext(ctx, "Settlement recorded",
		"group_id", st.GroupID,
		"from", st.From,
		"to", st.To,
		"amount_cents", st.Amount.Cents)

	s.invalidate(ctx, st.GroupID)
	return st, nil
}

// ListSettlements returns the group's settlements in creation order.
func (s *GroupService) ListSettlements(ctx context.Context, callerUID, groupID string) ([]core.Settlement, error) {
	if _, err := s.memberGroup(ctx, callerUID, groupID); err != nil {
		return nil, err
	}
	return s.storage.ListSettlements(ctx, groupID)
}

// Balances returns the group's net pairwise debts, computed from the current
// ledger and cached until the next write.
func (s *GroupService) Balances(ctx context.Context, callerUID, groupID string) ([]ledger.PairwiseDebt, error) {
	group, err := s.memberGroup(ctx, callerUID, groupID)
	if err != nil {
		return nil, err
	}

	if debts, ok := s.balances.Get(groupID); ok {
		return debts, nil
	}

	expenses, err := s.storage.ListGroupExpenses(ctx, groupID)
	if err != nil {
		return nil, err
	}
	settlements, err := s.storage.ListSettlements(ctx, groupID)
	if err != nil {
		return nil, err
	}

	debts := ledger.ComputeBalances(expenses, settlements, group.Members)
	s.balances.Set(groupID, debts)
	return debts, nil
}

func (s *GroupService) memberGroup(ctx context.Context, callerUID, groupID string) (core.Group, error) {
	group, err := s.storage.GetGroup(ctx, groupID)
	if err != nil {
		return core.Group{}, err
	}
	if !group.HasMember(callerUID) {
		return core.Group{}, ErrForbidden
	}
	return group, nil
}

// invalidate drops the cached balances and notifies the worker.
func (s *GroupService) invalidate(ctx context.Context, groupID string) {
	s.balances.Delete(groupID)

	if s.publisher == nil {
		slog.WarnContext(ctx, "Change publisher not available, skipping notification", "group_id", groupID)
		return
	}
	if err := s.publisher.PublishChange(ctx, amqp.NewGroupChanged(groupID)); err != nil {
		// The write already succeeded; reconcile will catch up.
		slog.ErrorContext(ctx, "Failed to publish group change", "group_id", groupID, "error", err)
	}
}

func memberLabel(g core.Group, uid string) string {
	for _, m := range g.Members {
		if m.UID == uid {
			return m.Label()
		}
	}
	return core.UnknownName
}
