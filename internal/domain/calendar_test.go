package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMonthBounds(t *testing.T) {
	loc := time.UTC
	start, end := MonthBounds(time.Date(2025, 2, 14, 10, 0, 0, 0, loc), loc)

	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2025, 2, 28, 23, 59, 59, int(999*time.Millisecond), loc), end)

	// Leap year
	_, end = MonthBounds(time.Date(2024, 2, 1, 0, 0, 0, 0, loc), loc)
	assert.Equal(t, 29, end.Day())
}

func TestMonthBounds_UsesLocation(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// 2025-01-31 23:30 UTC is already February in Berlin.
	start, _ := MonthBounds(time.Date(2025, 1, 31, 23, 30, 0, 0, time.UTC), berlin)
	assert.Equal(t, time.February, start.Month())
	assert.Equal(t, berlin, start.Location())
}

func TestEndOfDay(t *testing.T) {
	day := time.Date(2025, 3, 10, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 10, 23, 59, 59, int(999*time.Millisecond), time.UTC), EndOfDay(day, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), StartOfDay(day, time.UTC))
}

func TestParseMonth(t *testing.T) {
	for _, in := range []string{"2025-01", "2025-01-17", "2025-01-17T08:00:00Z"} {
		got, err := ParseMonth(in, time.UTC)
		require.NoError(t, err, in)
		assert.Equal(t, 2025, got.Year())
		assert.Equal(t, time.January, got.Month())
	}

	_, err := ParseMonth("", time.UTC)
	assert.True(t, errors.Is(err, ErrInvalidDate))

	_, err = ParseMonth("January", time.UTC)
	assert.True(t, errors.Is(err, ErrInvalidDate))

	_, err = ParseMonth("1900-01", time.UTC)
	assert.True(t, errors.Is(err, ErrInvalidDate))
}

func TestPlanAssignment_EndsBefore(t *testing.T) {
	loc := time.UTC
	p := PlanAssignment{
		PlanStartDate: time.Date(2025, 1, 6, 12, 0, 0, 0, loc),
		PlanEndDate:   time.Date(2025, 1, 12, 8, 0, 0, 0, loc),
	}

	assert.False(t, p.EndsBefore(time.Date(2025, 1, 12, 23, 59, 59, 0, loc), loc), "end is taken at end of day")
	assert.False(t, p.EndsBefore(time.Date(2025, 1, 12, 0, 0, 0, 0, loc), loc))
	assert.True(t, p.EndsBefore(time.Date(2025, 1, 13, 0, 0, 0, 0, loc), loc))
}

func TestSummarizeCharges(t *testing.T) {
	loc := time.UTC
	start, end := MonthBounds(time.Date(2025, 1, 1, 0, 0, 0, 0, loc), loc)
	entries := []LedgerEntry{
		{Date: time.Date(2025, 1, 5, 0, 0, 0, 0, loc), Amount: decimal.NewFromInt(10), Reason: ReasonMissedWorkout},
		{Date: time.Date(2025, 1, 12, 0, 0, 0, 0, loc), Amount: decimal.NewFromInt(50), Reason: ReasonWeeklyPlanCost},
		{Date: time.Date(2025, 1, 20, 0, 0, 0, 0, loc), Amount: decimal.NewFromInt(10), Reason: ReasonMissedWorkout},
		{Date: time.Date(2025, 2, 1, 0, 0, 0, 0, loc), Amount: decimal.NewFromInt(99), Reason: ReasonMissedWorkout},
		{Date: end, Amount: decimal.NewFromInt(1), Reason: ReasonMissedWorkout},
		{Date: start.Add(-time.Millisecond), Amount: decimal.NewFromInt(1000), Reason: ReasonMissedWorkout},
		{Date: time.Date(2025, 1, 9, 0, 0, 0, 0, loc), Amount: decimal.NewFromInt(7), Reason: ChargeReason("Late cancellation")},
	}

	sum := SummarizeCharges(entries, start, end)
	assert.True(t, sum.Penalties.Equal(decimal.NewFromInt(21)), sum.Penalties.String())
	assert.True(t, sum.PlanCosts.Equal(decimal.NewFromInt(50)))
	assert.True(t, sum.Excluded.Equal(decimal.NewFromInt(7)))
	assert.True(t, sum.Total().Equal(decimal.NewFromInt(71)))
}

func TestClientLedger_FindPlanAndUnbilledTotal(t *testing.T) {
	planID := primitive.NewObjectID()
	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := ClientLedger{
		PlanHistory: []PlanAssignment{
			{PlanID: planID, AssignedAt: first},
			{PlanID: primitive.NewObjectID(), AssignedAt: first.Add(time.Hour)},
			{PlanID: planID, AssignedAt: first.Add(2 * time.Hour)},
		},
		ChargeHistory: []LedgerEntry{
			{Amount: decimal.NewFromInt(5), RecordedAt: first},
			// Stamped before the first entry but appended after the reset.
			{Amount: decimal.NewFromInt(3), RecordedAt: first.Add(-time.Minute)},
		},
		BilledEntries: 1,
	}

	p, ok := l.FindPlan(planID)
	require.True(t, ok)
	assert.Equal(t, first.Add(2*time.Hour), p.AssignedAt)

	_, ok = l.FindPlan(primitive.NewObjectID())
	assert.False(t, ok)

	assert.True(t, l.UnbilledTotal().Equal(decimal.NewFromInt(3)))

	l.BilledEntries = 0
	assert.True(t, l.UnbilledTotal().Equal(decimal.NewFromInt(8)))
	l.BilledEntries = 5
	assert.True(t, l.UnbilledTotal().IsZero(), "a marker past the end bills everything")
}
