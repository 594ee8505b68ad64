// Package insights classifies which personal expenses belong to a recurring
// pattern (rent, subscriptions) and summarizes each pattern. Like the ledger
// package it is a pure computation over in-memory records.
package insights

import (
	"math"
	"sort"
	"strings"

	"conti/internal/core"
)

const (
	// minMonths is the number of distinct calendar months a pattern must
	// span before it counts as recurring.
	minMonths = 2

	// minMeanCents filters trivial amounts: a pattern whose mean is below
	// 10 currency units is noise, not a subscription.
	minMeanCents = 10 * 100

	// maxCV is the coefficient-of-variation ceiling. It admits typical
	// rent/subscription consistency while rejecting incidental repeat
	// purchases at the same vendor with wildly different amounts.
	maxCV = 0.5
)

// RecurringGroup summarizes one detected recurring pattern.
type RecurringGroup struct {
	Name              string
	Category          string
	AvgAmount         core.Money
	MonthCount        int
	TypicalDayOfMonth int
}

// Result holds the detector output: the ids of every expense that belongs to
// a recurring pattern, and one summary per pattern sorted by average amount
// descending.
type Result struct {
	RecurringIDs map[string]struct{}
	Groups       []RecurringGroup
}

type bucket struct {
	name     string
	category string
	months   map[string]bool
	ids      []string
	amounts  []int64
	days     []int
}

// normalizedIdentity prefers the vendor as the grouping identity because
// vendors are more stable than free-text descriptions. When no vendor was
// extracted, the first two tokens of the description approximate it.
func normalizedIdentity(e core.PersonalExpense) string {
	if e.Vendor != "" && e.Vendor != core.UnknownName {
		return strings.ToLower(strings.TrimSpace(e.Vendor))
	}
	tokens := strings.Fields(strings.ToLower(e.Description))
	if len(tokens) > 2 {
		tokens = tokens[:2]
	}
	return strings.Join(tokens, " ")
}

// DetectRecurring groups expenses by (category, normalized identity) and
// flags groups that recur across distinct calendar months with stable
// amounts. It never returns an error: records missing a category or date
// simply fail qualification and are excluded.
func DetectRecurring(expenses []core.PersonalExpense) Result {
	buckets := make(map[string]*bucket)
	var order []string

	for _, e := range expenses {
		if e.Date.IsZero() {
			continue
		}
		identity := normalizedIdentity(e)
		key := e.Category + "::" + identity
		b, ok := buckets[key]
		if !ok {
			b = &bucket{
				name:     identity,
				category: e.Category,
				months:   make(map[string]bool),
			}
			buckets[key] = b
			order = append(order, key)
		}
		b.months[e.Date.MonthKey()] = true
		b.ids = append(b.ids, e.ID)
		b.amounts = append(b.amounts, e.Amount.Cents)
		b.days = append(b.days, e.Date.Day())
	}

	result := Result{RecurringIDs: make(map[string]struct{})}

	for _, key := range order {
		b := buckets[key]
		if len(b.months) < minMonths {
			continue
		}

		mean := meanCents(b.amounts)
		if mean < minMeanCents {
			continue
		}
		// Population standard deviation over the mean. The minimum-mean
		// threshold above guarantees the divisor is nonzero.
		if coefficientOfVariation(b.amounts, mean) > maxCV {
			continue
		}

		for _, id := range b.ids {
			result.RecurringIDs[id] = struct{}{}
		}
		result.Groups = append(result.Groups, RecurringGroup{
			Name:              b.name,
			Category:          b.category,
			AvgAmount:         core.Money{Cents: int64(math.Round(mean))},
			MonthCount:        len(b.months),
			TypicalDayOfMonth: medianDay(b.days),
		})
	}

	sort.SliceStable(result.Groups, func(i, j int) bool {
		return result.Groups[i].AvgAmount.Cents > result.Groups[j].AvgAmount.Cents
	})

	return result
}

func meanCents(amounts []int64) float64 {
	var sum int64
	for _, a := range amounts {
		sum += a
	}
	return float64(sum) / float64(len(amounts))
}

func coefficientOfVariation(amounts []int64, mean float64) float64 {
	var sq float64
	for _, a := range amounts {
		d := float64(a) - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(amounts))) / mean
}

// medianDay returns the median day-of-month across all occurrences. For even
// counts the two middle values are averaged and rounded to the nearest day.
func medianDay(days []int) int {
	if len(days) == 0 {
		return 0
	}
	sorted := append([]int(nil), days...)
	sort.Ints(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return int(math.Round(float64(sorted[n/2-1]+sorted[n/2]) / 2))
}
