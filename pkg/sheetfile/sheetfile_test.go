package sheetfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/slabworks/gradepipe/internal/model"
)

func writeSheet(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Cards")
	require.NoError(t, err)
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, c := range cells {
			row.AddCell().SetString(c)
		}
	}
	require.NoError(t, f.Save(path))
}

func TestFetchRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.xlsx")
	writeSheet(t, path, [][]string{
		{"Player", "Year", "Set", "Number", "Grade", "Label", "Value", "Summary"},
		{"Ken Griffey Jr.", "1989", "Upper Deck", "1", "8.5", "NM-MT+", "$1,200.00", "The rookie."},
		{"Frank Thomas", "1990", "Leaf", "300", "", "", "", ""},
		{"", "", "", "", "", "", "", ""},
	})

	cards, err := FetchRows(path)
	require.NoError(t, err)
	require.Len(t, cards, 2, "blank row is skipped")

	griffey := cards[0]
	assert.Equal(t, "Ken Griffey Jr.", griffey.PlayerName)
	assert.Equal(t, "1989", griffey.Year)
	assert.Equal(t, "sheet-1", griffey.SheetRowID)
	assert.NotEmpty(t, griffey.ID)
	assert.True(t, griffey.CreatedAt.IsZero(), "timestamps are assigned at merge")
	assert.Empty(t, griffey.Status, "status is assigned at merge")
	require.NotNil(t, griffey.Grades)
	assert.Equal(t, 8.5, griffey.Grades.Overall)
	assert.Equal(t, "NM-MT+", griffey.Grades.Label)
	require.NotNil(t, griffey.Valuation)
	assert.Equal(t, 1200.0, griffey.Valuation.MidUSD)

	thomas := cards[1]
	assert.Equal(t, "sheet-2", thomas.SheetRowID)
	assert.Nil(t, thomas.Grades)
	assert.Nil(t, thomas.Valuation)
}

func TestFetchRows_HeaderAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.xlsx")
	writeSheet(t, path, [][]string{
		{"Name", "Card Number", "Set Name", "Overall", "Notes"},
		{"Nolan Ryan", "34", "Topps", "7", "Well centered."},
	})

	cards, err := FetchRows(path)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "Nolan Ryan", cards[0].PlayerName)
	assert.Equal(t, "34", cards[0].CardNumber)
	assert.Equal(t, "Topps", cards[0].SetName)
	assert.Equal(t, "Well centered.", cards[0].Summary)
	require.NotNil(t, cards[0].Grades)
	assert.Equal(t, 7.0, cards[0].Grades.Overall)
}

func TestFetchRows_MissingPlayerColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	writeSheet(t, path, [][]string{
		{"Grade", "Value"},
		{"8", "100"},
	})

	_, err := FetchRows(path)
	assert.Error(t, err)
}

func TestAppendRows_CreatesFileAndRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.xlsx")

	card := model.NewCard("front.jpg", "back.jpg")
	card.Status = model.StatusReviewed
	card.PlayerName = "Mike Piazza"
	card.Year = "1992"
	card.SetName = "Bowman"
	card.CardNumber = "461"
	card.Grades = &model.GradeReport{Overall: 9, Label: "MINT 9"}
	card.Valuation = &model.Valuation{MidUSD: 350}
	card.Summary = "A clean example."

	n, err := AppendRows(path, []model.Card{card})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := FetchRows(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Mike Piazza", got[0].PlayerName)
	require.NotNil(t, got[0].Grades)
	assert.Equal(t, 9.0, got[0].Grades.Overall)
	require.NotNil(t, got[0].Valuation)
	assert.Equal(t, 350.0, got[0].Valuation.MidUSD)
}

func TestAppendRows_SkipsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.xlsx")

	card := model.NewCard("front.jpg", "")
	card.PlayerName = "Cal Ripken Jr."
	card.Year = "1982"
	card.SetName = "Topps"

	n, err := AppendRows(path, []model.Card{card})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Same identity again: nothing new lands.
	n, err = AppendRows(path, []model.Card{card})
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := FetchRows(path)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
