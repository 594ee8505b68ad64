package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"conti/internal/amqp"
	"conti/internal/cache"
	"conti/internal/core"
	"conti/internal/insights"
	"conti/internal/parse"
	"conti/internal/storage"
)

// InsightsService owns the personal ledger: text capture through the parser,
// CRUD, and recurrence detection.
type InsightsService struct {
	storage   *storage.SQLiteRepository
	publisher ChangePublisher
	parser    parse.ExpenseParser
	recurring *cache.LRUCache[insights.Result]
}

func NewInsightsService(repo *storage.SQLiteRepository, publisher ChangePublisher, parser parse.ExpenseParser, cacheTTL time.Duration) *InsightsService {
	return &InsightsService{
		storage:   repo,
		publisher: publisher,
		parser:    parser,
		recurring: cache.NewLRUCache[insights.Result](1024, cacheTTL),
	}
}

// CaptureExpense parses free-form text and stores the resulting expense.
// Parser failure taxonomy passes through untouched so the handler can map it
// to status codes.
func (s *InsightsService) CaptureExpense(ctx context.Context, userUID, text string) (core.PersonalExpense, error) {
	parsed, err := s.parser.Parse(ctx, text)
	if err != nil {
		return core.PersonalExpense{}, err
	}

	e := core.PersonalExpense{
		ID:          uuid.NewString(),
		Category:    parsed.Category,
		Vendor:      parsed.Vendor,
		Description: parsed.Description,
		Date:        parsed.Date,
		Amount:      parsed.Amount,
	}
	return s.addExpense(ctx, userUID, e)
}

// AddExpense stores an already-structured personal expense.
func (s *InsightsService) AddExpense(ctx context.Context, userUID string, e core.PersonalExpense) (core.PersonalExpense, error) {
	e.ID = uuid.NewString()
	return s.addExpense(ctx, userUID, e)
}

func (s *InsightsService) addExpense(ctx context.Context, userUID string, e core.PersonalExpense) (core.PersonalExpense, error) {
	if e.Vendor == "" {
		e.Vendor = core.UnknownName
	}
	if err := e.Validate(); err != nil {
		return core.PersonalExpense{}, err
	}

	if err := s.storage.CreatePersonalExpense(ctx, userUID, e); err != nil {
		return core.PersonalExpense{}, fmt.Errorf("create personal expense: %w", err)
	}

	slog.InfoContext(ctx, "Personal expense created",
		"user_uid", userUID,
		"expense_id", e.ID,
		"amount_cents", e.Amount.Cents)

	s.invalidate(ctx, userUID)
	return e, nil
}

// ListExpenses returns the user's expenses, newest first.
func (s *InsightsService) ListExpenses(ctx context.Context, userUID string) ([]core.PersonalExpense, error) {
	return s.storage.ListPersonalExpenses(ctx, userUID)
}

// DeleteExpense removes one of the user's own expenses.
func (s *InsightsService) DeleteExpense(ctx context.Context, userUID, expenseID string) error {
	if err := s.storage.DeletePersonalExpense(ctx, userUID, expenseID); err != nil {
		return err
	}
	s.invalidate(ctx, userUID)
	return nil
}

// Recurring returns the user's detected recurring charges, cached until the
// next write to their ledger.
func (s *InsightsService) Recurring(ctx context.Context, userUID string) (insights.Result, error) {
	if res, ok := s.recurring.Get(userUID); ok {
		return res, nil
	}

	expenses, err := s.storage.ListPersonalExpenses(ctx, userUID)
	if err != nil {
		return insights.Result{}, err
	}

	res := insights.DetectRecurring(expenses)
	s.recurring.Set(userUID, res)
	return res, nil
}

func (s *InsightsService) invalidate(ctx context.Context, userUID string) {
	s.recurring.Delete(userUID)

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishChange(ctx, amqp.NewPersonalChanged(userUID)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish personal change", "user_uid", userUID, "error", err)
	}
}
