// Package export appends balance statements to an external spreadsheet so
// groups have a human-readable audit trail outside the service.
package export

import (
	"context"

	"conti/internal/ledger"
)

// StatementWriter records a group's computed balances somewhere external.
type StatementWriter interface {
	AppendStatement(ctx context.Context, groupID, groupName string, debts []ledger.PairwiseDebt) error
}
