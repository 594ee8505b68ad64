package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/storage"
)

type fakePublisher struct {
	messages []*amqp.ChangeMessage
	err      error
}

func (f *fakePublisher) PublishChange(_ context.Context, msg *amqp.ChangeMessage) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func alice() core.Member {
	return core.Member{UID: "alice", DisplayName: "Alice", Email: "alice@example.com"}
}

func setupGroup(t *testing.T, svc *GroupService) core.Group {
	t.Helper()
	ctx := context.Background()
	g, err := svc.CreateGroup(ctx, "Trip", alice())
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := svc.AddMember(ctx, "alice", g.ID, core.Member{UID: "bob", DisplayName: "Bob"}); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	return g
}

func splitEvenly(amount int64, uids ...string) []core.Split {
	splits := make([]core.Split, len(uids))
	share := amount / int64(len(uids))
	rest := amount - share*int64(len(uids)-1)
	for i, uid := range uids {
		c := share
		if i == 0 {
			c = rest
		}
		splits[i] = core.Split{UID: uid, Amount: core.Money{Cents: c}}
	}
	return splits
}

func TestGroupService_CreateAndAccess(t *testing.T) {
	svc := NewGroupService(newTestRepo(t), &fakePublisher{}, time.Minute)
	ctx := context.Background()
	g := setupGroup(t, svc)

	got, err := svc.GetGroup(ctx, "alice", g.ID)
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if len(got.Members) != 2 {
		t.Errorf("members = %d, want 2", len(got.Members))
	}

	if _, err := svc.GetGroup(ctx, "mallory", g.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-member access error = %v, want ErrForbidden", err)
	}

	groups, err := svc.ListGroups(ctx, "bob")
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 1 {
		t.Errorf("groups for bob = %d, want 1", len(groups))
	}
}

func TestGroupService_AddExpensePublishesChange(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewGroupService(newTestRepo(t), pub, time.Minute)
	ctx := context.Background()
	g := setupGroup(t, svc)
	pub.messages = nil

	e := core.GroupExpense{
		GroupID:     g.ID,
		Description: "Dinner",
		Category:    "Food",
		PaidBy:      "alice",
		Amount:      core.Money{Cents: 5000},
		Date:        core.NewDate(2025, 3, 10),
		Splits:      splitEvenly(5000, "alice", "bob"),
	}

	created, err := svc.AddExpense(ctx, "alice", e)
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	if created.ID == "" {
		t.Error("expense should get an id")
	}

	if len(pub.messages) != 1 || pub.messages[0].Kind != amqp.KindGroupChanged || pub.messages[0].GroupID != g.ID {
		t.Errorf("published = %+v", pub.messages)
	}
}

func TestGroupService_AddExpenseValidation(t *testing.T) {
	svc := NewGroupService(newTestRepo(t), &fakePublisher{}, time.Minute)
	ctx := context.Background()
	g := setupGroup(t, svc)

	base := core.GroupExpense{
		GroupID:     g.ID,
		Description: "Dinner",
		PaidBy:      "alice",
		Amount:      core.Money{Cents: 5000},
		Date:        core.NewDate(2025, 3, 10),
		Splits:      splitEvenly(5000, "alice", "bob"),
	}

	t.Run("split mismatch rejected", func(t *testing.T) {
		e := base
		e.Splits = splitEvenly(4000, "alice", "bob")
		if _, err := svc.AddExpense(ctx, "alice", e); !errors.Is(err, core.ErrSplitMismatch) {
			t.Errorf("error = %v, want ErrSplitMismatch", err)
		}
	})

	t.Run("non-member caller rejected", func(t *testing.T) {
		if _, err := svc.AddExpense(ctx, "mallory", base); !errors.Is(err, ErrForbidden) {
			t.Errorf("error = %v, want ErrForbidden", err)
		}
	})

	t.Run("non-member payer rejected", func(t *testing.T) {
		e := base
		e.PaidBy = "mallory"
		e.Splits = splitEvenly(5000, "mallory", "bob")
		if _, err := svc.AddExpense(ctx, "alice", e); !errors.Is(err, ErrForbidden) {
			t.Errorf("error = %v, want ErrForbidden", err)
		}
	})
}

func TestGroupService_BalancesFlow(t *testing.T) {
	svc := NewGroupService(newTestRepo(t), &fakePublisher{}, time.Minute)
	ctx := context.Background()
	g := setupGroup(t, svc)

	e := core.GroupExpense{
		GroupID:     g.ID,
		Description: "Hotel",
		PaidBy:      "alice",
		Amount:      core.Money{Cents: 10000},
		Date:        core.NewDate(2025, 3, 10),
		Splits:      splitEvenly(10000, "alice", "bob"),
	}
	if _, err := svc.AddExpense(ctx, "alice", e); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}

	debts, err := svc.Balances(ctx, "bob", g.ID)
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if len(debts) != 1 {
		t.Fatalf("debts = %+v, want 1 entry", debts)
	}
	if debts[0].Debtor != "bob" || debts[0].Creditor != "alice" || debts[0].Amount.Cents != 5000 {
		t.Errorf("debt = %+v", debts[0])
	}
	if debts[0].DebtorName != "Bob" || debts[0].CreditorName != "Alice" {
		t.Errorf("names = %q/%q", debts[0].DebtorName, debts[0].CreditorName)
	}

	// Settling the full amount clears the pair.
	st := core.Settlement{
		GroupID: g.ID,
		From:    "bob",
		To:      "alice",
		Amount:  core.Money{Cents: 5000},
	}
	created, err := svc.AddSettlement(ctx, "bob", st)
	if err != nil {
		t.Fatalf("AddSettlement: %v", err)
	}
	if created.FromName != "Bob" || created.ToName != "Alice" {
		t.Errorf("settlement names = %q/%q, want frozen labels", created.FromName, created.ToName)
	}

	debts, err = svc.Balances(ctx, "alice", g.ID)
	if err != nil {
		t.Fatalf("Balances after settlement: %v", err)
	}
	if len(debts) != 0 {
		t.Errorf("debts after settlement = %+v, want none", debts)
	}
}

func TestGroupService_SettlementRequiresMembers(t *testing.T) {
	svc := NewGroupService(newTestRepo(t), &fakePublisher{}, time.Minute)
	ctx := context.Background()
	g := setupGroup(t, svc)

	st := core.Settlement{
		GroupID: g.ID,
		From:    "bob",
		To:      "mallory",
		Amount:  core.Money{Cents: 100},
	}
	if _, err := svc.AddSettlement(ctx, "bob", st); !errors.Is(err, ErrForbidden) {
		t.Errorf("error = %v, want ErrForbidden", err)
	}

	st.To = "bob"
	if _, err := svc.AddSettlement(ctx, "bob", st); !errors.Is(err, core.ErrSelfSettlement) {
		t.Errorf("error = %v, want ErrSelfSettlement", err)
	}
}

func TestGroupService_DeleteExpense(t *testing.T) {
	svc := NewGroupService(newTestRepo(t), &fakePublisher{}, time.Minute)
	ctx := context.Background()
	g := setupGroup(t, svc)

	e := core.GroupExpense{
		GroupID:     g.ID,
		Description: "Snacks",
		PaidBy:      "alice",
		Amount:      core.Money{Cents: 1000},
		Date:        core.NewDate(2025, 3, 11),
		Splits:      splitEvenly(1000, "alice", "bob"),
	}
	created, err := svc.AddExpense(ctx, "alice", e)
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}

	if err := svc.DeleteExpense(ctx, "bob", g.ID, created.ID); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}

	debts, err := svc.Balances(ctx, "alice", g.ID)
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if len(debts) != 0 {
		t.Errorf("debts after delete = %+v, want none", debts)
	}

	if err := svc.DeleteExpense(ctx, "bob", g.ID, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestGroupService_PublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := NewGroupService(newTestRepo(t), pub, time.Minute)
	ctx := context.Background()
	g := setupGroup(t, svc)

	e := core.GroupExpense{
		GroupID:     g.ID,
		Description: "Dinner",
		PaidBy:      "alice",
		Amount:      core.Money{Cents: 5000},
		Date:        core.NewDate(2025, 3, 10),
		Splits:      splitEvenly(5000, "alice", "bob"),
	}
	if _, err := svc.AddExpense(ctx, "alice", e); err != nil {
		t.Fatalf("AddExpense should not fail on publish error: %v", err)
	}
}
