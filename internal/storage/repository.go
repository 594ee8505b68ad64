// Package storage persists groups, ledger entries, and computed balance
// snapshots in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"conti/internal/core"
	"conti/internal/ledger"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

var ErrNotFound = errors.New("not found")

// BalanceSnapshot is the persisted output of a balance recomputation.
type BalanceSnapshot struct {
	GroupID    string
	Debts      []ledger.PairwiseDebt
	ComputedAt time.Time
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- Groups ---

func (r *SQLiteRepository) CreateGroup(ctx context.Context, g core.Group) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, created_by, created_at) VALUES (?, ?, ?, ?)`,
		g.ID, g.Name, g.CreatedBy, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}

	for _, m := range g.Members {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, uid, display_name, email) VALUES (?, ?, ?, ?)`,
			g.ID, m.UID, m.DisplayName, m.Email)
		if err != nil {
			return fmt.Errorf("insert member %s: %w", m.UID, err)
		}
	}

	return tx.Commit()
}

func (r *SQLiteRepository) GetGroup(ctx context.Context, id string) (core.Group, error) {
	var g core.Group
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_by, created_at FROM groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &g.CreatedBy, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Group{}, ErrNotFound
	}
	if err != nil {
		return core.Group{}, fmt.Errorf("get group: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT uid, display_name, email FROM group_members WHERE group_id = ? ORDER BY rowid`, id)
	if err != nil {
		return core.Group{}, fmt.Errorf("get members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m core.Member
		if err := rows.Scan(&m.UID, &m.DisplayName, &m.Email); err != nil {
			return core.Group{}, fmt.Errorf("scan member: %w", err)
		}
		g.Members = append(g.Members, m)
	}
	if err := rows.Err(); err != nil {
		return core.Group{}, fmt.Errorf("iterate members: %w", err)
	}

	return g, nil
}

func (r *SQLiteRepository) ListGroupsForUser(ctx context.Context, uid string) ([]core.Group, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.id FROM groups g
		 JOIN group_members gm ON gm.group_id = g.id
		 WHERE gm.uid = ?
		 ORDER BY g.created_at DESC`, uid)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}

	groups := make([]core.Group, 0, len(ids))
	for _, id := range ids {
		g, err := r.GetGroup(ctx, id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// ListGroupIDs returns every group id, used by the periodic reconcile pass.
func (r *SQLiteRepository) ListGroupIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM groups ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list group ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) AddMember(ctx context.Context, groupID string, m core.Member) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_members (group_id, uid, display_name, email) VALUES (?, ?, ?, ?)`,
		groupID, m.UID, m.DisplayName, m.Email)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Already a member; refresh the stored label instead.
		_, err = r.db.ExecContext(ctx,
			`UPDATE group_members SET display_name = ?, email = ? WHERE group_id = ? AND uid = ?`,
			m.DisplayName, m.Email, groupID, m.UID)
		if err != nil {
			return fmt.Errorf("update member: %w", err)
		}
	}
	return nil
}

// --- Group expenses ---

func (r *SQLiteRepository) CreateGroupExpense(ctx context.Context, e core.GroupExpense) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO group_expenses (id, group_id, description, category, paid_by, amount_cents, expense_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.GroupID, e.Description, e.Category, e.PaidBy, e.Amount.Cents, e.Date.Format(dateLayout))
	if err != nil {
		return fmt.Errorf("insert group expense: %w", err)
	}

	for i, s := range e.Splits {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO expense_splits (expense_id, uid, amount_cents, position) VALUES (?, ?, ?, ?)`,
			e.ID, s.UID, s.Amount.Cents, i)
		if err != nil {
			return fmt.Errorf("insert split %s: %w", s.UID, err)
		}
	}

	return tx.Commit()
}

func (r *SQLiteRepository) ListGroupExpenses(ctx context.Context, groupID string) ([]core.GroupExpense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, group_id, description, category, paid_by, amount_cents, expense_date
		 FROM group_expenses WHERE group_id = ?
		 ORDER BY expense_date DESC, created_at DESC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.GroupExpense
	for rows.Next() {
		e, err := scanGroupExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group expenses: %w", err)
	}

	for i := range expenses {
		splits, err := r.listSplits(ctx, expenses[i].ID)
		if err != nil {
			return nil, err
		}
		expenses[i].Splits = splits
	}

	return expenses, nil
}

func (r *SQLiteRepository) GetGroupExpense(ctx context.Context, id string) (core.GroupExpense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, group_id, description, category, paid_by, amount_cents, expense_date
		 FROM group_expenses WHERE id = ?`, id)

	e, err := scanGroupExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.GroupExpense{}, ErrNotFound
	}
	if err != nil {
		return core.GroupExpense{}, err
	}

	e.Splits, err = r.listSplits(ctx, e.ID)
	return e, err
}

func (r *SQLiteRepository) DeleteGroupExpense(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM group_expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete group expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroupExpense(row rowScanner) (core.GroupExpense, error) {
	var (
		e       core.GroupExpense
		rawDate string
	)
	err := row.Scan(&e.ID, &e.GroupID, &e.Description, &e.Category, &e.PaidBy, &e.Amount.Cents, &rawDate)
	if err != nil {
		return core.GroupExpense{}, err
	}
	e.Date, err = parseDate(rawDate)
	if err != nil {
		return core.GroupExpense{}, fmt.Errorf("expense %s: %w", e.ID, err)
	}
	return e, nil
}

func (r *SQLiteRepository) listSplits(ctx context.Context, expenseID string) ([]core.Split, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT uid, amount_cents FROM expense_splits WHERE expense_id = ? ORDER BY position`, expenseID)
	if err != nil {
		return nil, fmt.Errorf("list splits: %w", err)
	}
	defer rows.Close()

	var splits []core.Split
	for rows.Next() {
		var s core.Split
		if err := rows.Scan(&s.UID, &s.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan split: %w", err)
		}
		splits = append(splits, s)
	}
	return splits, rows.Err()
}

// --- Settlements ---

func (r *SQLiteRepository) CreateSettlement(ctx context.Context, s core.Settlement) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settlements (id, group_id, from_uid, from_name, to_uid, to_name, amount_cents)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.GroupID, s.From, s.FromName, s.To, s.ToName, s.Amount.Cents)
	if err != nil {
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListSettlements(ctx context.Context, groupID string) ([]core.Settlement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, group_id, from_uid, from_name, to_uid, to_name, amount_cents
		 FROM settlements WHERE group_id = ?
		 ORDER BY created_at, rowid`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []core.Settlement
	for rows.Next() {
		var s core.Settlement
		if err := rows.Scan(&s.ID, &s.GroupID, &s.From, &s.FromName, &s.To, &s.ToName, &s.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		settlements = append(settlements, s)
	}
	return settlements, rows.Err()
}

// --- Personal expenses ---

func (r *SQLiteRepository) CreatePersonalExpense(ctx context.Context, userUID string, e core.PersonalExpense) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO personal_expenses (id, user_uid, category, vendor, description, expense_date, amount_cents)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, userUID, e.Category, e.Vendor, e.Description, e.Date.Format(dateLayout), e.Amount.Cents)
	if err != nil {
		return fmt.Errorf("insert personal expense: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListPersonalExpenses(ctx context.Context, userUID string) ([]core.PersonalExpense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, category, vendor, description, expense_date, amount_cents
		 FROM personal_expenses WHERE user_uid = ?
		 ORDER BY expense_date DESC, created_at DESC`, userUID)
	if err != nil {
		return nil, fmt.Errorf("list personal expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.PersonalExpense
	for rows.Next() {
		var (
			e       core.PersonalExpense
			rawDate string
		)
		if err := rows.Scan(&e.ID, &e.Category, &e.Vendor, &e.Description, &rawDate, &e.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan personal expense: %w", err)
		}
		e.Date, err = parseDate(rawDate)
		if err != nil {
			return nil, fmt.Errorf("personal expense %s: %w", e.ID, err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (r *SQLiteRepository) DeletePersonalExpense(ctx context.Context, userUID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM personal_expenses WHERE id = ? AND user_uid = ?`, id, userUID)
	if err != nil {
		return fmt.Errorf("delete personal expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Balance snapshots ---

func (r *SQLiteRepository) UpsertBalanceSnapshot(ctx context.Context, snap BalanceSnapshot) error {
	debts, err := json.Marshal(snap.Debts)
	if err != nil {
		return fmt.Errorf("marshal debts: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO balance_snapshots (group_id, debts_json, computed_at) VALUES (?, ?, ?)
		 ON CONFLICT(group_id) DO UPDATE SET debts_json = excluded.debts_json, computed_at = excluded.computed_at`,
		snap.GroupID, string(debts), snap.ComputedAt)
	if err != nil {
		return fmt.Errorf("upsert balance snapshot: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetBalanceSnapshot(ctx context.Context, groupID string) (BalanceSnapshot, error) {
	var (
		snap BalanceSnapshot
		raw  string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT group_id, debts_json, computed_at FROM balance_snapshots WHERE group_id = ?`, groupID).
		Scan(&snap.GroupID, &raw, &snap.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return BalanceSnapshot{}, ErrNotFound
	}
	if err != nil {
		return BalanceSnapshot{}, fmt.Errorf("get balance snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(raw), &snap.Debts); err != nil {
		return BalanceSnapshot{}, fmt.Errorf("unmarshal debts: %w", err)
	}
	return snap, nil
}

func parseDate(raw string) (core.Date, error) {
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return core.Date{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return core.Date{Time: t}, nil
}
