// Package ledger computes net pairwise debts for a group from its shared
// expenses and recorded settlements. It is a pure computation: no I/O, no
// mutation of inputs, safe to call concurrently.
package ledger

import (
	"sort"

	"conti/internal/core"
)

// PairwiseDebt is the single resultant directional balance between two
// members after netting obligations in both directions. Amount is always
// positive; the member who owes more after netting is the debtor.
type PairwiseDebt struct {
	Debtor       string
	DebtorName   string
	Creditor     string
	CreditorName string
	Amount       core.Money
}

// accumulator tracks owed[debtor][creditor] in cents together with the order
// in which pairs were first seen, so the output is deterministic.
type accumulator struct {
	owed  map[string]map[string]int64
	order []string
	seen  map[string]bool
}

func newAccumulator() *accumulator {
	return &accumulator{
		owed: make(map[string]map[string]int64),
		seen: make(map[string]bool),
	}
}

func (a *accumulator) ensure(debtor, creditor string) {
	if a.owed[debtor] == nil {
		a.owed[debtor] = make(map[string]int64)
	}
	key := pairKey(debtor, creditor)
	if !a.seen[key] {
		a.seen[key] = true
		a.order = append(a.order, key)
	}
}

func (a *accumulator) add(debtor, creditor string, cents int64) {
	a.ensure(debtor, creditor)
	a.owed[debtor][creditor] += cents
}

// settle reduces the forward debt from->to, floored at zero. A settlement
// never nets against the reverse direction and never inverts a debt; it only
// shrinks what from owes to. Settlements larger than the outstanding forward
// debt are accepted silently.
func (a *accumulator) settle(from, to string, cents int64) {
	a.ensure(from, to)
	remaining := a.owed[from][to] - cents
	if remaining < 0 {
		remaining = 0
	}
	a.owed[from][to] = remaining
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// ComputeBalances converts a group's expenses and settlements into a minimal
// deduplicated list of net pairwise debts, sorted by amount descending.
//
// Members are used only to resolve display names; a uid missing from members
// resolves to the Unknown placeholder rather than failing. The computation is
// idempotent and deterministic: identical inputs always yield identical output.
func ComputeBalances(expenses []core.GroupExpense, settlements []core.Settlement, members []core.Member) []PairwiseDebt {
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.UID] = m.Label()
	}
	label := func(uid string) string {
		if n, ok := names[uid]; ok {
			return n
		}
		return core.UnknownName
	}

	acc := newAccumulator()

	for _, exp := range expenses {
		for _, split := range exp.Splits {
			// The payer's own share is self-funded; non-positive splits
			// carry no obligation.
			if split.UID == exp.PaidBy || split.Amount.Cents <= 0 {
				continue
			}
			acc.add(split.UID, exp.PaidBy, split.Amount.Cents)
		}
	}

	for _, s := range settlements {
		acc.settle(s.From, s.To, s.Amount.Cents)
	}

	var debts []PairwiseDebt
	visited := make(map[string]bool)

	for _, key := range acc.order {
		if visited[key] {
			continue
		}
		visited[key] = true

		a, b := splitPairKey(key)
		if a == b {
			continue
		}

		net := acc.owed[a][b] - acc.owed[b][a]

		// Amounts are exact cents, so anything below one cent nets to
		// exactly zero: the pair is fully settled.
		if net == 0 {
			continue
		}

		debtor, creditor := a, b
		if net < 0 {
			debtor, creditor = b, a
			net = -net
		}
		debts = append(debts, PairwiseDebt{
			Debtor:       debtor,
			DebtorName:   label(debtor),
			Creditor:     creditor,
			CreditorName: label(creditor),
			Amount:       core.Money{Cents: net},
		})
	}

	// Largest debts first; stable so ties keep discovery order.
	sort.SliceStable(debts, func(i, j int) bool {
		return debts[i].Amount.Cents > debts[j].Amount.Cents
	})

	return debts
}

func splitPairKey(key string) (string, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
