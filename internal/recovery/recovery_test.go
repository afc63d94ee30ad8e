package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slabworks/gradepipe/internal/model"
)

func TestReclassify_InterruptedStatuses(t *testing.T) {
	t.Parallel()

	cards := []model.Card{
		{ID: "a", Status: model.StatusGrading},
		{ID: "b", Status: model.StatusChallenging, PendingDirection: model.DirectionHigher},
		{ID: "c", Status: model.StatusFetchingValue},
		{ID: "d", Status: model.StatusNeedsReview},
		{ID: "e", Status: model.StatusReviewed},
	}

	out, n := Reclassify(cards)

	assert.Equal(t, 3, n)
	for _, id := range []string{"a", "b", "c"} {
		card := out[model.FindCard(out, id)]
		assert.Equal(t, model.StatusGradingFailed, card.Status, "card %s", id)
		assert.Equal(t, InterruptedMessage, card.ErrorMessage, "card %s", id)
		assert.Equal(t, model.ErrorKindRecovery, card.ErrorKind, "card %s", id)
		assert.True(t, card.Dirty, "card %s", id)
	}

	// The challenge direction does not survive the crash.
	assert.Equal(t, model.DirectionNone, out[model.FindCard(out, "b")].PendingDirection)

	// Resting cards are untouched.
	assert.Equal(t, model.StatusNeedsReview, out[model.FindCard(out, "d")].Status)
	assert.Equal(t, model.StatusReviewed, out[model.FindCard(out, "e")].Status)
	assert.Empty(t, out[model.FindCard(out, "d")].ErrorMessage)
}

func TestReclassify_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	cards := []model.Card{{ID: "a", Status: model.StatusGrading}}
	out, n := Reclassify(cards)

	require.Equal(t, 1, n)
	assert.Equal(t, model.StatusGrading, cards[0].Status)
	assert.Equal(t, model.StatusGradingFailed, out[0].Status)
}

func TestReclassify_Idempotent(t *testing.T) {
	t.Parallel()

	cards := []model.Card{{ID: "a", Status: model.StatusGrading}}
	once, n1 := Reclassify(cards)
	twice, n2 := Reclassify(once)

	assert.Equal(t, 1, n1)
	assert.Equal(t, 0, n2, "second pass finds nothing to reclaim")
	assert.Equal(t, once, twice)
}
