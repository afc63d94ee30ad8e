package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slabworks/gradepipe/internal/model"
)

func TestNaturalKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		card model.Card
		want string
	}{
		{
			"full identification",
			model.Card{PlayerName: "Ken Griffey Jr.", Year: "1989", CardNumber: "1", SetName: "Upper Deck"},
			"ken griffey jr.|1989|1|upper deck",
		},
		{
			"whitespace and case are cosmetic",
			model.Card{PlayerName: "  KEN   Griffey  jr. ", Year: "1989", CardNumber: "1", SetName: "UPPER DECK"},
			"ken griffey jr.|1989|1|upper deck",
		},
		{
			"name alone is not enough",
			model.Card{PlayerName: "Ken Griffey Jr."},
			"",
		},
		{
			"no name, no key",
			model.Card{Year: "1989", CardNumber: "1"},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NaturalKey(tt.card))
		})
	}
}

func TestSheetKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		card model.Card
		want string
	}{
		{
			"natural key when identifiable",
			model.Card{PlayerName: "Ken Griffey Jr.", Year: "1989", SheetRowID: "sheet-3"},
			"ken griffey jr.|1989||",
		},
		{
			"row provenance fallback",
			model.Card{PlayerName: "Ken Griffey Jr.", SheetRowID: "sheet-3"},
			"row|sheet-3",
		},
		{
			"no identity at all",
			model.Card{Summary: "a card"},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SheetKey(tt.card))
		})
	}
}

func TestMerge_FuzzyIdentityFallback(t *testing.T) {
	t.Parallel()

	local := []model.Card{{
		ID:         "a",
		Status:     model.StatusNeedsReview,
		CreatedAt:  time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		PlayerName: "X",
		Year:       "1990",
		CardNumber: "1",
		Grades:     &model.GradeReport{Overall: 8},
	}}
	imported := []model.Card{{
		ID:         "sheet-0",
		PlayerName: "X",
		Year:       "1990",
		CardNumber: "1",
		Summary:    "From the spreadsheet.",
		SheetRowID: "sheet-0",
	}}

	out := Merge(local, imported, MergeOptions{SyntheticTimestamps: true})

	require.Len(t, out, 1, "fuzzy match must not duplicate")
	assert.Equal(t, "a", out[0].ID, "local id wins")
	assert.Equal(t, model.StatusNeedsReview, out[0].Status, "local status preserved")
	assert.Equal(t, "From the spreadsheet.", out[0].Summary, "incoming supplies what it has")
	require.NotNil(t, out[0].Grades)
	assert.Equal(t, 8.0, out[0].Grades.Overall, "sparse incoming never clears local fields")
	assert.Equal(t, "sheet-0", out[0].SheetRowID)
}

func TestMerge_IdMatchBeatsKey(t *testing.T) {
	t.Parallel()

	local := []model.Card{{ID: "a", Status: model.StatusReviewed, PlayerName: "X", Year: "1990", CardNumber: "1"}}
	incoming := []model.Card{{ID: "a", Summary: "updated"}}

	out := Merge(local, incoming, MergeOptions{})

	require.Len(t, out, 1)
	assert.Equal(t, "updated", out[0].Summary)
	assert.Equal(t, "X", out[0].PlayerName)
}

func TestMerge_UnmatchedAppends(t *testing.T) {
	t.Parallel()

	local := []model.Card{{ID: "a", Status: model.StatusReviewed, CreatedAt: time.Now().UTC(), PlayerName: "X", Year: "1990", CardNumber: "1"}}
	incoming := []model.Card{{ID: "b", Status: model.StatusReviewed, CreatedAt: time.Now().UTC(), PlayerName: "Y", Year: "1991", CardNumber: "2"}}

	out := Merge(local, incoming, MergeOptions{})
	assert.Len(t, out, 2)
}

func TestMerge_Idempotent(t *testing.T) {
	t.Parallel()

	local := []model.Card{{ID: "a", Status: model.StatusReviewed, CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), PlayerName: "X", Year: "1990", CardNumber: "1"}}
	incoming := []model.Card{
		{ID: "sheet-0", PlayerName: "X", Year: "1990", CardNumber: "1", SheetRowID: "sheet-0"},
		{ID: "sheet-1", PlayerName: "Z", Year: "1955", CardNumber: "164", SheetRowID: "sheet-1", Grades: &model.GradeReport{Overall: 4}},
	}
	opts := MergeOptions{SyntheticTimestamps: true}

	once := Merge(local, incoming, opts)
	twice := Merge(once, incoming, opts)

	assert.Equal(t, once, twice, "re-running the same merge must be a no-op")
	assert.Len(t, twice, 2)
}

func TestMerge_SyntheticTimestampsPreserveRowOrder(t *testing.T) {
	t.Parallel()

	anchor := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	local := []model.Card{{ID: "a", Status: model.StatusReviewed, CreatedAt: anchor, PlayerName: "A", Year: "2000", CardNumber: "9"}}
	incoming := []model.Card{
		{ID: "sheet-0", PlayerName: "Row One", Year: "1990", CardNumber: "1"},
		{ID: "sheet-1", PlayerName: "Row Two", Year: "1991", CardNumber: "2"},
		{ID: "sheet-2", PlayerName: "Row Three", Year: "1992", CardNumber: "3"},
	}

	out := Merge(local, incoming, MergeOptions{SyntheticTimestamps: true})

	require.Len(t, out, 4)
	// Newest-first: the real card leads, then sheet rows in source order.
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "sheet-0", out[1].ID)
	assert.Equal(t, "sheet-1", out[2].ID)
	assert.Equal(t, "sheet-2", out[3].ID)
	for _, c := range out[1:] {
		assert.True(t, c.CreatedAt.Before(anchor), "synthetic timestamps stay behind real ones")
	}
}

func TestMerge_StatuslessImportsGetDefaults(t *testing.T) {
	t.Parallel()

	incoming := []model.Card{
		{ID: "sheet-0", PlayerName: "Graded", Year: "1990", CardNumber: "1", Grades: &model.GradeReport{Overall: 7}},
		{ID: "sheet-1", PlayerName: "Ungraded", Year: "1991", CardNumber: "2"},
	}

	out := Merge(nil, incoming, MergeOptions{SyntheticTimestamps: true})

	require.Len(t, out, 2)
	assert.Equal(t, model.StatusReviewed, out[model.FindCard(out, "sheet-0")].Status)
	assert.Equal(t, model.StatusNeedsReview, out[model.FindCard(out, "sheet-1")].Status)
}

func TestMerge_DirtyAndStatusSurviveRemotePull(t *testing.T) {
	t.Parallel()

	local := []model.Card{{
		ID:        "a",
		Status:    model.StatusGradingFailed,
		Dirty:     true,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ErrorMessage: "boom",
	}}
	remote := []model.Card{{
		ID:        "a",
		Status:    model.StatusReviewed,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Summary:   "remote copy",
	}}

	out := Merge(local, remote, MergeOptions{})

	require.Len(t, out, 1)
	assert.Equal(t, model.StatusGradingFailed, out[0].Status, "local status wins over remote")
	assert.True(t, out[0].Dirty)
	assert.Equal(t, "remote copy", out[0].Summary)
}

func TestMerge_CustomIdentityKey(t *testing.T) {
	t.Parallel()

	bySheetRow := func(c model.Card) string { return c.SheetRowID }

	local := []model.Card{{ID: "a", Status: model.StatusReviewed, CreatedAt: time.Now().UTC(), SheetRowID: "row-7"}}
	incoming := []model.Card{{ID: "other", SheetRowID: "row-7", Summary: "matched by row"}}

	out := Merge(local, incoming, MergeOptions{Key: bySheetRow})

	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "matched by row", out[0].Summary)
}
