package reconcile

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/slabworks/gradepipe/internal/model"
)

// IdentityKey derives a stable natural key for a card, used to match entries
// from sources that do not share ids (a spreadsheet row has no idea which
// local card it describes). Returns "" when the card does not carry enough
// identification to match safely; empty keys never match anything.
type IdentityKey func(card model.Card) string

// NaturalKey is the default identity key: normalized player name, year, card
// number, and set name. The name plus at least one other component must be
// present, otherwise matching would collapse unrelated cards.
func NaturalKey(card model.Card) string {
	name := normalizeField(card.PlayerName)
	if name == "" {
		return ""
	}

	year := normalizeField(card.Year)
	number := normalizeField(card.CardNumber)
	set := normalizeField(card.SetName)
	if year == "" && number == "" && set == "" {
		return ""
	}

	return strings.Join([]string{name, year, number, set}, "|")
}

// SheetKey is the identity key for tabular imports: natural identity when
// the row carries enough of it, otherwise the row's provenance id, so
// re-importing the same file never duplicates even anonymous rows.
func SheetKey(card model.Card) string {
	if k := NaturalKey(card); k != "" {
		return k
	}
	if card.SheetRowID != "" {
		return "row|" + card.SheetRowID
	}
	return ""
}

var keyFolder = cases.Fold()

// normalizeField case-folds, NFKC-normalizes, and collapses runs of
// whitespace so cosmetic differences between sources do not defeat matching.
func normalizeField(s string) string {
	s = norm.NFKC.String(s)
	s = keyFolder.String(s)
	return strings.Join(strings.Fields(s), " ")
}
