package insights

import (
	"testing"

	"conti/internal/core"
)

func pe(id, category, vendor, description string, cents int64, year, month, day int) core.PersonalExpense {
	return core.PersonalExpense{
		ID:          id,
		Category:    category,
		Vendor:      vendor,
		Description: description,
		Amount:      core.Money{Cents: cents},
		Date:        core.NewDate(year, month, day),
	}
}

func TestDetectRecurring_Subscription(t *testing.T) {
	// Same vendor, same amount, three consecutive months: one group with
	// all three ids flagged.
	expenses := []core.PersonalExpense{
		pe("e1", "Subscriptions", "Netflix", "netflix monthly", 64900, 2025, 1, 5),
		pe("e2", "Subscriptions", "Netflix", "netflix monthly", 64900, 2025, 2, 5),
		pe("e3", "Subscriptions", "Netflix", "netflix monthly", 64900, 2025, 3, 5),
	}

	res := DetectRecurring(expenses)

	if len(res.Groups) != 1 {
		t.Fatalf("got %d groups, want 1: %+v", len(res.Groups), res.Groups)
	}
	g := res.Groups[0]
	if g.Name != "netflix" {
		t.Errorf("name = %q, want %q", g.Name, "netflix")
	}
	if g.Category != "Subscriptions" {
		t.Errorf("category = %q", g.Category)
	}
	if g.AvgAmount.Cents != 64900 {
		t.Errorf("avg = %d, want 64900", g.AvgAmount.Cents)
	}
	if g.MonthCount != 3 {
		t.Errorf("monthCount = %d, want 3", g.MonthCount)
	}
	if g.TypicalDayOfMonth != 5 {
		t.Errorf("typicalDayOfMonth = %d, want 5", g.TypicalDayOfMonth)
	}
	for _, id := range []string{"e1", "e2", "e3"} {
		if _, ok := res.RecurringIDs[id]; !ok {
			t.Errorf("id %s missing from recurring set", id)
		}
	}
}

func TestDetectRecurring_CVThreshold(t *testing.T) {
	base := []core.PersonalExpense{
		pe("e1", "Subscriptions", "Netflix", "", 64900, 2025, 1, 5),
		pe("e2", "Subscriptions", "Netflix", "", 64900, 2025, 2, 5),
		pe("e3", "Subscriptions", "Netflix", "", 64900, 2025, 3, 5),
	}

	// A fourth outlier at 5000 units shifts the mean to 1736.75 and pushes
	// the coefficient of variation to about 1.08: the group disqualifies.
	withOutlier := append(append([]core.PersonalExpense(nil), base...),
		pe("e4", "Subscriptions", "Netflix", "", 500000, 2025, 4, 5))

	res := DetectRecurring(withOutlier)
	if len(res.Groups) != 0 {
		t.Errorf("outlier should disqualify the group via CV, got %+v", res.Groups)
	}
	if len(res.RecurringIDs) != 0 {
		t.Errorf("no ids should be flagged, got %v", res.RecurringIDs)
	}

	// A mild fourth charge (price bump to 699) keeps CV around 0.03 and the
	// group stays recurring with the outlier included in the average.
	withBump := append(append([]core.PersonalExpense(nil), base...),
		pe("e4", "Subscriptions", "Netflix", "", 69900, 2025, 4, 5))

	res = DetectRecurring(withBump)
	if len(res.Groups) != 1 {
		t.Fatalf("price bump should stay recurring, got %+v", res.Groups)
	}
	if got := res.Groups[0].AvgAmount.Cents; got != 66150 {
		t.Errorf("avg = %d, want 66150", got)
	}
	if res.Groups[0].MonthCount != 4 {
		t.Errorf("monthCount = %d, want 4", res.Groups[0].MonthCount)
	}
}

func TestDetectRecurring_SingleMonthExcluded(t *testing.T) {
	expenses := []core.PersonalExpense{
		pe("e1", "Food", "Migros", "", 4500, 2025, 1, 3),
		pe("e2", "Food", "Migros", "", 4500, 2025, 1, 17),
	}
	res := DetectRecurring(expenses)
	if len(res.Groups) != 0 {
		t.Errorf("single-month group must not qualify, got %+v", res.Groups)
	}
}

func TestDetectRecurring_TrivialMeanExcluded(t *testing.T) {
	// Mean below 10 currency units is filtered out regardless of cadence.
	expenses := []core.PersonalExpense{
		pe("e1", "Food", "Kiosk", "", 500, 2025, 1, 3),
		pe("e2", "Food", "Kiosk", "", 500, 2025, 2, 3),
		pe("e3", "Food", "Kiosk", "", 500, 2025, 3, 3),
	}
	res := DetectRecurring(expenses)
	if len(res.Groups) != 0 {
		t.Errorf("trivial amounts must not qualify, got %+v", res.Groups)
	}
}

func TestDetectRecurring_DescriptionFallback(t *testing.T) {
	// No vendor extracted: the first two description tokens form the
	// identity, so differing trailing text still groups together.
	expenses := []core.PersonalExpense{
		pe("e1", "Housing", core.UnknownName, "Monthly Rent apartment 4b", 120000, 2025, 1, 1),
		pe("e2", "Housing", "", "monthly rent transfer", 120000, 2025, 2, 1),
	}
	res := DetectRecurring(expenses)
	if len(res.Groups) != 1 {
		t.Fatalf("description fallback should group both, got %+v", res.Groups)
	}
	if res.Groups[0].Name != "monthly rent" {
		t.Errorf("name = %q, want %q", res.Groups[0].Name, "monthly rent")
	}
}

func TestDetectRecurring_VendorCaseInsensitive(t *testing.T) {
	expenses := []core.PersonalExpense{
		pe("e1", "Subscriptions", "Spotify", "", 1099, 2025, 1, 12),
		pe("e2", "Subscriptions", " spotify ", "", 1099, 2025, 2, 12),
	}
	res := DetectRecurring(expenses)
	if len(res.Groups) != 1 {
		t.Errorf("vendor match must ignore case and whitespace, got %+v", res.Groups)
	}
}

func TestDetectRecurring_CategorySeparatesGroups(t *testing.T) {
	// Same vendor under different categories never merges.
	expenses := []core.PersonalExpense{
		pe("e1", "Food", "Amazon", "", 3000, 2025, 1, 2),
		pe("e2", "Food", "Amazon", "", 3000, 2025, 2, 2),
		pe("e3", "Shopping", "Amazon", "", 3000, 2025, 1, 2),
		pe("e4", "Shopping", "Amazon", "", 3000, 2025, 2, 2),
	}
	res := DetectRecurring(expenses)
	if len(res.Groups) != 2 {
		t.Errorf("got %d groups, want 2: %+v", len(res.Groups), res.Groups)
	}
}

func TestDetectRecurring_SortedByAvgDescending(t *testing.T) {
	expenses := []core.PersonalExpense{
		pe("e1", "Subscriptions", "Spotify", "", 1099, 2025, 1, 12),
		pe("e2", "Subscriptions", "Spotify", "", 1099, 2025, 2, 12),
		pe("e3", "Housing", "Landlord", "", 120000, 2025, 1, 1),
		pe("e4", "Housing", "Landlord", "", 120000, 2025, 2, 1),
	}
	res := DetectRecurring(expenses)
	if len(res.Groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(res.Groups))
	}
	if res.Groups[0].Name != "landlord" || res.Groups[1].Name != "spotify" {
		t.Errorf("groups not sorted by avg descending: %+v", res.Groups)
	}
}

func TestDetectRecurring_MissingDateExcluded(t *testing.T) {
	expenses := []core.PersonalExpense{
		{ID: "e1", Category: "Housing", Vendor: "Landlord", Amount: core.Money{Cents: 120000}},
		pe("e2", "Housing", "Landlord", "", 120000, 2025, 2, 1),
	}
	res := DetectRecurring(expenses)
	if len(res.Groups) != 0 {
		t.Errorf("dateless record must not help a group qualify, got %+v", res.Groups)
	}
}

func TestMedianDay(t *testing.T) {
	tests := []struct {
		name string
		days []int
		want int
	}{
		{"odd count", []int{5, 1, 28}, 5},
		{"even count averages middle", []int{1, 4, 6, 28}, 5},
		{"even count rounds to nearest", []int{1, 2, 3, 28}, 3},
		{"single", []int{15}, 15},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := medianDay(tt.days); got != tt.want {
				t.Errorf("medianDay(%v) = %d, want %d", tt.days, got, tt.want)
			}
		})
	}
}

func TestDetectRecurring_Empty(t *testing.T) {
	res := DetectRecurring(nil)
	if len(res.Groups) != 0 || len(res.RecurringIDs) != 0 {
		t.Errorf("empty input must yield empty result, got %+v", res)
	}
}
