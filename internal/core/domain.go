package core

import (
	"errors"
	"strings"
	"time"
)

// UnknownName is the placeholder used whenever a uid cannot be resolved to a
// display name, and the vendor value the parser emits when it could not
// extract one.
const UnknownName = "Unknown"

type (
	Date struct {
		time.Time
	}

	// Member is a participant in a group, owned by the group record.
	Member struct {
		UID         string
		DisplayName string
		Email       string
	}

	Group struct {
		ID        string
		Name      string
		CreatedBy string
		Members   []Member
		CreatedAt time.Time
	}

	// Split is one member's share of a group expense. A split whose UID
	// matches the payer contributes nothing to debt.
	Split struct {
		UID    string
		Amount Money
	}

	// GroupExpense is a single shared expenditure. Immutable once created
	// except for deletion; splits are never partially edited.
	GroupExpense struct {
		ID          string
		GroupID     string
		Description string
		Category    string
		PaidBy      string
		Amount      Money
		Splits      []Split
		Date        Date
	}

	// Settlement records a real-world payment reducing what From owes To.
	// Append-only: once created it is never mutated or deleted.
	Settlement struct {
		ID       string
		GroupID  string
		From     string
		FromName string
		To       string
		ToName   string
		Amount   Money
	}

	// PersonalExpense is one entry in a user's private ledger, produced by
	// the parsing collaborator and stored as-is.
	PersonalExpense struct {
		ID          string
		Category    string
		Vendor      string
		Description string
		Date        Date
		Amount      Money
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyUID         = errors.New("empty uid")
	ErrEmptyGroupName   = errors.New("empty group name")
	ErrNoSplits         = errors.New("expense has no splits")
	ErrSplitMismatch    = errors.New("split amounts do not sum to expense amount")
	ErrSelfSettlement   = errors.New("settlement from and to are the same member")
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrDescriptionLong  = errors.New("description too long (max 200 characters)")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// NewDate creates a Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// MonthKey returns the calendar month-year bucket key, e.g. "2025-03".
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

func (m Member) Validate() error {
	if strings.TrimSpace(m.UID) == "" {
		return ErrEmptyUID
	}
	return nil
}

// Label resolves a member to something printable, falling back to the email
// and then to the Unknown placeholder.
func (m Member) Label() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	if m.Email != "" {
		return m.Email
	}
	return UnknownName
}

func (g Group) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyGroupName
	}
	for _, m := range g.Members {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// HasMember reports whether uid belongs to the group.
func (g Group) HasMember(uid string) bool {
	for _, m := range g.Members {
		if m.UID == uid {
			return true
		}
	}
	return false
}

// Validate checks the creation-time invariants of a group expense, including
// that the split amounts sum to the expense amount. The check lives here at
// the write boundary; the balance engine trusts its inputs and must not crash
// when handed records that bypassed it.
func (e GroupExpense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return ErrDescriptionLong
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.PaidBy) == "" {
		return ErrEmptyUID
	}
	if len(e.Splits) == 0 {
		return ErrNoSplits
	}
	var sum int64
	for _, s := range e.Splits {
		if strings.TrimSpace(s.UID) == "" {
			return ErrEmptyUID
		}
		sum += s.Amount.Cents
	}
	if sum != e.Amount.Cents {
		return ErrSplitMismatch
	}
	return nil
}

func (s Settlement) Validate() error {
	if strings.TrimSpace(s.From) == "" || strings.TrimSpace(s.To) == "" {
		return ErrEmptyUID
	}
	if s.From == s.To {
		return ErrSelfSettlement
	}
	return s.Amount.Validate()
}

func (e PersonalExpense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return ErrDescriptionLong
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	return e.Amount.Validate()
}
