package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refNow = time.Date(2025, 1, 10, 15, 4, 5, 0, time.UTC)

func TestParseDate(t *testing.T) {
	cases := map[string]string{
		"today":                   "2025-01-10",
		" Today ":                 "2025-01-10",
		"tomorrow":                "2025-01-11",
		"yesterday":               "2025-01-09",
		"day after tomorrow":      "2025-01-12",
		"The  day after tomorrow": "2025-01-12",
		"day before yesterday":    "2025-01-08",
		"in 3 days":               "2025-01-13",
		"in 1 day":                "2025-01-11",
		"25 days from now":        "2025-02-04",
		"10 days ago":             "2024-12-31",
		"2025-03-07":              "2025-03-07",
		"2024-2-29":               "2024-02-29",
		"12-25":                   "2025-12-25",
		"1-5":                     "2025-01-05",
	}
	for expr, want := range cases {
		got, err := ParseDate(expr, refNow)
		require.NoError(t, err, expr)
		assert.Equal(t, want, FormatDate(got), expr)
		assert.Equal(t, 0, got.Hour(), expr)
	}
}

func TestParseDateErrors(t *testing.T) {
	for _, expr := range []string{"", "next blursday", "2025-02-30", "13-01", "2025-13-01", "in many days"} {
		_, err := ParseDate(expr, refNow)
		assert.Error(t, err, expr)
	}
	_, err := ParseDate("someday", refNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `could not parse date "someday"`)
}

type rec struct {
	ID    string
	Title string
	Span  Interval
}

func recTitle(r rec) string { return r.Title }

func TestMatchTitlesAmbiguousNeverPicks(t *testing.T) {
	records := []rec{{ID: "1", Title: "Team Sync"}, {ID: "2", Title: "Team Standup"}, {ID: "3", Title: "Lunch"}}

	res := MatchTitles(records, "team", recTitle)
	assert.Equal(t, OutcomeAmbiguous, res.Outcome)
	assert.Len(t, res.Matches, 2)
	_, ok := res.Unique()
	assert.False(t, ok)
}

func TestMatchTitlesUnique(t *testing.T) {
	records := []rec{{ID: "1", Title: "Team Sync"}, {ID: "3", Title: "Lunch"}}

	res := MatchTitles(records, "SYNC", recTitle)
	got, ok := res.Unique()
	require.True(t, ok)
	assert.Equal(t, "1", got.ID)

	// the search term may contain the title
	res = MatchTitles(records, "lunch with Ana", recTitle)
	got, ok = res.Unique()
	require.True(t, ok)
	assert.Equal(t, "3", got.ID)
}

func TestMatchTitlesNone(t *testing.T) {
	res := MatchTitles([]rec{{ID: "1", Title: "Team Sync"}}, "dentist", recTitle)
	assert.Equal(t, OutcomeNone, res.Outcome)
	assert.Empty(t, res.Matches)

	res = MatchTitles([]rec{{ID: "1", Title: ""}}, "dentist", recTitle)
	assert.Equal(t, OutcomeNone, res.Outcome)
}

func TestParseInterval(t *testing.T) {
	iv, err := ParseInterval("10:00", "11:30")
	require.NoError(t, err)
	assert.Equal(t, Clock(600), iv.Start)
	assert.Equal(t, "10:00-11:30", iv.String())

	iv, err = ParseInterval("23", "24:00")
	require.NoError(t, err)
	assert.Equal(t, Clock(24*60), iv.End)

	for _, c := range [][2]string{{"11:00", "10:00"}, {"10:00", "10:00"}, {"25:00", "26:00"}, {"10:61", "11:00"}, {"ten", "11:00"}} {
		_, err := ParseInterval(c[0], c[1])
		assert.Error(t, err, c)
	}
}

func TestOverlapsIsSymmetric(t *testing.T) {
	clocks := []Clock{0, 30, 60, 90, 120, 150}
	var ivs []Interval
	for _, s := range clocks {
		for _, e := range clocks {
			if e > s {
				ivs = append(ivs, Interval{Start: s, End: e})
			}
		}
	}
	for _, a := range ivs {
		for _, b := range ivs {
			assert.Equal(t, a.Overlaps(b), b.Overlaps(a), "%s vs %s", a, b)
		}
	}

	assert.False(t, Interval{Start: 600, End: 660}.Overlaps(Interval{Start: 660, End: 720}))
	assert.True(t, Interval{Start: 600, End: 660}.Overlaps(Interval{Start: 630, End: 690}))
	assert.True(t, Interval{Start: 600, End: 720}.Overlaps(Interval{Start: 630, End: 660}))
}

func TestFindConflicts(t *testing.T) {
	sync, _ := ParseInterval("10:00", "11:00")
	lunch, _ := ParseInterval("12:00", "13:00")
	records := []rec{{ID: "1", Title: "Team Sync", Span: sync}, {ID: "2", Title: "Lunch", Span: lunch}}
	span := func(r rec) (Interval, bool) { return r.Span, true }

	candidate, _ := ParseInterval("10:30", "11:30")
	conflicts := FindConflicts(candidate, records, span, nil)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "Team Sync", conflicts[0].Title)

	// the record being updated is excluded
	conflicts = FindConflicts(candidate, records, span, func(r rec) bool { return r.ID == "1" })
	assert.Empty(t, conflicts)
}
