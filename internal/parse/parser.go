// Package parse turns free-form expense text into structured personal expense
// records. Two implementations exist: a remote client for the hosted language
// model endpoint, and a local regex fallback used when no endpoint is
// configured or the endpoint is unreachable.
package parse

import (
	"context"
	"errors"

	"conti/internal/core"
)

var (
	// ErrNotAnExpense means the text does not describe a purchase at all.
	ErrNotAnExpense = errors.New("text does not describe an expense")
	// ErrInvalidAmount means an amount was present but could not be read as
	// a positive decimal.
	ErrInvalidAmount = errors.New("could not extract a valid amount")
	// ErrParse covers transport and malformed-response failures.
	ErrParse = errors.New("parse failed")
)

// ParsedExpense is the structured result of parsing one line of text. The
// caller validates and stores it; the parser never touches storage.
type ParsedExpense struct {
	Category    string
	Vendor      string
	Description string
	Date        core.Date
	Amount      core.Money
}

// ExpenseParser extracts a structured expense from free-form text.
type ExpenseParser interface {
	Parse(ctx context.Context, text string) (ParsedExpense, error)
}
