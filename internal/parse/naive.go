package parse

import (
	"context"
	"regexp"
	"strings"
	"time"

	"conti/internal/core"
)

// NaiveParser is a regex-based local fallback. It extracts the last
// currency-looking token as the amount and guesses a category from keywords.
type NaiveParser struct {
	amountRegex *regexp.Regexp
	now         func() time.Time
}

// Matches: $1, 1$, €5, 5€, $10.50, 10,50€, plus bare decimals like 12.34.
const amountPattern = `(?:(\$|€|EUR|USD)\s*)?(\d+(?:[.,]\d{1,2})?)\s*(\$|€|EUR|USD)?`

// categoryKeywords maps lowercased substrings to a category guess. First
// match wins; order matters for overlapping terms.
var categoryKeywords = []struct {
	keyword  string
	category string
}{
	{"netflix", "Entertainment"},
	{"spotify", "Entertainment"},
	{"cinema", "Entertainment"},
	{"rent", "Housing"},
	{"electricity", "Utilities"},
	{"internet", "Utilities"},
	{"phone", "Utilities"},
	{"grocer", "Groceries"},
	{"supermarket", "Groceries"},
	{"restaurant", "Dining"},
	{"dinner", "Dining"},
	{"lunch", "Dining"},
	{"coffee", "Dining"},
	{"uber", "Transport"},
	{"taxi", "Transport"},
	{"train", "Transport"},
	{"fuel", "Transport"},
	{"gym", "Health"},
	{"pharmacy", "Health"},
}

func NewNaiveParser() *NaiveParser {
	return &NaiveParser{
		amountRegex: regexp.MustCompile(amountPattern),
		now:         time.Now,
	}
}

// Parse extracts an expense from one line of text.
// Examples:
//   - "Coffee 3.50€"        -> Dining, vendor "Coffee", 350 cents
//   - "Netflix 6,49"        -> Entertainment, vendor "Netflix", 649 cents
//   - "thanks for the ride" -> ErrNotAnExpense
func (p *NaiveParser) Parse(_ context.Context, text string) (ParsedExpense, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ParsedExpense{}, ErrNotAnExpense
	}

	matches := p.amountRegex.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return ParsedExpense{}, ErrNotAnExpense
	}

	// The last amount-looking token is usually the price.
	match := matches[len(matches)-1]
	amountStr := text[match[4]:match[5]]

	cents, err := core.ParseDecimalToCents(amountStr)
	if err != nil {
		return ParsedExpense{}, ErrInvalidAmount
	}

	description := strings.TrimSpace(text[:match[0]] + text[match[1]:])
	description = strings.Join(strings.Fields(description), " ")
	if description == "" {
		return ParsedExpense{}, ErrNotAnExpense
	}

	now := p.now()
	return ParsedExpense{
		Category:    guessCategory(description),
		Vendor:      guessVendor(description),
		Description: description,
		Date:        core.NewDate(now.Year(), int(now.Month()), now.Day()),
		Amount:      core.Money{Cents: cents},
	}, nil
}

func guessCategory(description string) string {
	lower := strings.ToLower(description)
	for _, kw := range categoryKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.category
		}
	}
	return "Other"
}

// guessVendor takes the first word when it looks like a proper noun,
// otherwise reports the vendor as unknown and lets the detector fall back to
// the description.
func guessVendor(description string) string {
	fields := strings.Fields(description)
	if len(fields) == 0 {
		return core.UnknownName
	}
	first := fields[0]
	r := rune(first[0])
	if r >= 'A' && r <= 'Z' {
		return first
	}
	return core.UnknownName
}
