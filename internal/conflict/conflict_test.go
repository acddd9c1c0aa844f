package conflict_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedcal/internal/conflict"
	"schedcal/internal/datekey"
	"schedcal/internal/model"
)

// ---- helpers ---------------------------------------------------------------

func ev(id, date, start, end string) model.Event {
	return model.Event{ID: id, Date: datekey.Key(date), StartTime: start, EndTime: end, Title: id}
}

// ---- FindConflict ----------------------------------------------------------

func TestFindConflict_containedCandidate(t *testing.T) {
	a := ev("a", "2024-06-01", "09:00", "10:00")

	got, err := conflict.FindConflict(ev("c", "2024-06-01", "09:30", "09:45"), []model.Event{a}, "")

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.ID)
}

func TestFindConflict_touchingEndIsFree(t *testing.T) {
	a := ev("a", "2024-06-01", "09:00", "10:00")

	got, err := conflict.FindConflict(ev("c", "2024-06-01", "10:00", "11:00"), []model.Event{a}, "")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindConflict_otherDateIgnored(t *testing.T) {
	a := ev("a", "2024-06-01", "09:00", "10:00")

	got, err := conflict.FindConflict(ev("c", "2024-06-02", "09:00", "10:00"), []model.Event{a}, "")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindConflict_excludeSelf(t *testing.T) {
	a := ev("a", "2024-06-01", "09:00", "10:00")
	edited := ev("a", "2024-06-01", "09:15", "10:15")

	got, err := conflict.FindConflict(edited, []model.Event{a}, "a")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindConflict_firstInInputOrderWins(t *testing.T) {
	existing := []model.Event{
		ev("late", "2024-06-01", "11:00", "12:00"),
		ev("other-day", "2024-06-02", "08:00", "09:00"),
		ev("early", "2024-06-01", "08:00", "10:30"),
	}

	got, err := conflict.FindConflict(ev("c", "2024-06-01", "10:00", "11:30"), existing, "")

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "late", got.ID)
}

func TestFindConflict_missingTimesNotComparable(t *testing.T) {
	a := ev("a", "2024-06-01", "09:00", "10:00")

	got, err := conflict.FindConflict(ev("c", "2024-06-01", "", "10:00"), []model.Event{a}, "")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = conflict.FindConflict(ev("c", "2024-06-01", "09:00", ""), []model.Event{a}, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindConflict_validation(t *testing.T) {
	good := ev("a", "2024-06-01", "09:00", "10:00")

	tests := []struct {
		name      string
		candidate model.Event
		existing  []model.Event
	}{
		{"malformed candidate", ev("c", "2024-06-01", "9:00", "10:00"), []model.Event{good}},
		{"inverted candidate", ev("c", "2024-06-01", "10:00", "09:00"), []model.Event{good}},
		{"empty candidate interval", ev("c", "2024-06-01", "10:00", "10:00"), nil},
		{"malformed same-day event", ev("c", "2024-06-01", "12:00", "13:00"), []model.Event{good, ev("b", "2024-06-01", "xx:yy", "13:00")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := conflict.FindConflict(tt.candidate, tt.existing, "")
			assert.Nil(t, got)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}
}

func TestFindConflict_malformedOtherDayOrExcludedIgnored(t *testing.T) {
	existing := []model.Event{
		ev("bad-other-day", "2024-06-02", "nope", "10:00"),
		ev("self", "2024-06-01", "broken", "10:00"),
	}

	got, err := conflict.FindConflict(ev("self", "2024-06-01", "09:00", "10:00"), existing, "self")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindConflict_malformedDate(t *testing.T) {
	good := ev("a", "2024-06-10", "09:00", "10:00")

	tests := []struct {
		name      string
		candidate model.Event
		existing  []model.Event
		wantID    string
	}{
		{"unpadded candidate date", ev("c", "2024-6-10", "09:30", "09:45"), []model.Event{ev("a", "2024-6-10", "09:00", "10:00")}, "c"},
		{"candidate without times", ev("c", "garbage", "", ""), []model.Event{good}, "c"},
		{"existing event on another day", ev("c", "2024-06-10", "12:00", "13:00"), []model.Event{good, ev("b", "June 11", "09:00", "10:00")}, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := conflict.FindConflict(tt.candidate, tt.existing, "")
			assert.Nil(t, got)

			var ve *model.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, "date", ve.Field)
			assert.Equal(t, tt.wantID, ve.EventID)

			all, err := conflict.FindAll(tt.candidate, tt.existing, "")
			assert.Nil(t, all)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}
}

func TestFindAll(t *testing.T) {
	existing := []model.Event{
		ev("a", "2024-06-01", "08:00", "09:30"),
		ev("b", "2024-06-01", "09:30", "10:00"),
		ev("c", "2024-06-01", "10:00", "10:30"),
	}

	got, err := conflict.FindAll(ev("x", "2024-06-01", "09:00", "10:00"), existing, "")

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestFindConflict_doesNotMutateInput(t *testing.T) {
	existing := []model.Event{
		ev("b", "2024-06-01", "11:00", "12:00"),
		ev("a", "2024-06-01", "09:00", "10:00"),
	}
	before := model.Clone(existing)

	_, err := conflict.FindConflict(ev("c", "2024-06-01", "09:30", "11:30"), existing, "")

	require.NoError(t, err)
	assert.Equal(t, before, existing)
}

// ---- overlap rule equivalence ------------------------------------------------

// overlapsByClauses is the three-clause form of the overlap rule: the
// candidate starts during, ends during, or fully contains the existing
// interval.
func overlapsByClauses(s1, e1, s2, e2 int) bool {
	return (s1 >= s2 && s1 < e2) ||
		(e1 > s2 && e1 <= e2) ||
		(s1 <= s2 && e1 >= e2)
}

func TestOverlapRuleEquivalence(t *testing.T) {
	clock := func(m int) string { return model.Clock(m).String() }

	// Every valid interval pair on a 15-minute lattice over six hours.
	const step, span = 15, 6 * 60
	for s1 := 0; s1 < span; s1 += step {
		for e1 := s1 + step; e1 <= span; e1 += step {
			for s2 := 0; s2 < span; s2 += step {
				for e2 := s2 + step; e2 <= span; e2 += step {
					want := overlapsByClauses(s1, e1, s2, e2)

					existing := []model.Event{ev("x", "2024-06-01", clock(s2), clock(e2))}
					got, err := conflict.FindConflict(ev("c", "2024-06-01", clock(s1), clock(e1)), existing, "")
					require.NoError(t, err)
					require.Equal(t, want, got != nil, "[%d,%d) vs [%d,%d)", s1, e1, s2, e2)
				}
			}
		}
	}
}
