// Package sheetfile reads and writes the card collection as an XLSX
// spreadsheet, the interchange format collectors already keep their
// inventories in.
package sheetfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/slabworks/gradepipe/internal/model"
	"github.com/slabworks/gradepipe/internal/reconcile"
)

// exportHeader is the canonical column order written on export and accepted
// (in any order, with aliases) on import.
var exportHeader = []string{"player", "year", "set", "number", "grade", "label", "value", "summary"}

// columnAliases maps header spellings seen in the wild to canonical names.
var columnAliases = map[string]string{
	"player":      "player",
	"player name": "player",
	"name":        "player",
	"year":        "year",
	"set":         "set",
	"set name":    "set",
	"number":      "number",
	"card number": "number",
	"#":           "number",
	"no":          "number",
	"grade":       "grade",
	"overall":     "grade",
	"label":       "label",
	"grade label": "label",
	"value":       "value",
	"value usd":   "value",
	"mid value":   "value",
	"summary":     "summary",
	"notes":       "summary",
}

// FetchRows reads the first sheet of an XLSX file into cards. Rows carry no
// CreatedAt and no Status; the merge assigns both. SheetRowID records the
// row's position so re-imports stay idempotent.
func FetchRows(path string) ([]model.Card, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sheetfile: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("sheetfile: %s has no sheets", path)
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return []model.Card{}, nil
	}

	cols, err := mapHeader(rowToStrings(sheet.Rows[0]))
	if err != nil {
		return nil, err
	}

	cards := []model.Card{}
	for i, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		card, ok := rowToCard(cells, cols, i+1)
		if !ok {
			continue
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// AppendRows adds cards to an XLSX file, creating it with a header row when
// absent. Cards already present (matched by natural identity or row
// provenance) are skipped. Returns the number of rows appended.
func AppendRows(path string, cards []model.Card) (int, error) {
	var (
		f     *xlsx.File
		sheet *xlsx.Sheet
	)

	existing := map[string]struct{}{}
	if _, err := os.Stat(path); err == nil {
		f, err = xlsx.OpenFile(path)
		if err != nil {
			return 0, eris.Wrapf(err, "sheetfile: open %s", path)
		}
		if len(f.Sheets) == 0 {
			return 0, eris.Errorf("sheetfile: %s has no sheets", path)
		}
		sheet = f.Sheets[0]

		present, err := FetchRows(path)
		if err != nil {
			return 0, err
		}
		for i := range present {
			if k := reconcile.SheetKey(present[i]); k != "" {
				existing[k] = struct{}{}
			}
		}
	} else {
		f = xlsx.NewFile()
		sheet, err = f.AddSheet("Cards")
		if err != nil {
			return 0, eris.Wrap(err, "sheetfile: add sheet")
		}
		header := sheet.AddRow()
		for _, col := range exportHeader {
			header.AddCell().SetString(col)
		}
	}

	appended := 0
	for i := range cards {
		if k := reconcile.SheetKey(cards[i]); k != "" {
			if _, dup := existing[k]; dup {
				continue
			}
			existing[k] = struct{}{}
		}
		writeCardRow(sheet.AddRow(), cards[i])
		appended++
	}

	if err := f.Save(path); err != nil {
		return 0, eris.Wrapf(err, "sheetfile: save %s", path)
	}
	return appended, nil
}

func mapHeader(cells []string) (map[string]int, error) {
	cols := map[string]int{}
	for i, cell := range cells {
		name := strings.ToLower(strings.TrimSpace(cell))
		if canonical, ok := columnAliases[name]; ok {
			if _, dup := cols[canonical]; !dup {
				cols[canonical] = i
			}
		}
	}
	if _, ok := cols["player"]; !ok {
		return nil, eris.New("sheetfile: header row has no player column")
	}
	return cols, nil
}

func rowToCard(cells []string, cols map[string]int, rowNum int) (model.Card, bool) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}

	card := model.Card{
		ID:         uuid.New().String(),
		SheetRowID: fmt.Sprintf("sheet-%d", rowNum),
		PlayerName: get("player"),
		Year:       get("year"),
		SetName:    get("set"),
		CardNumber: get("number"),
		Summary:    get("summary"),
	}

	if grade := parseNumber(get("grade")); grade > 0 {
		card.Grades = &model.GradeReport{Overall: grade, Label: get("label")}
	}
	if value := parseNumber(get("value")); value > 0 {
		card.Valuation = &model.Valuation{MidUSD: value}
	}

	empty := card.PlayerName == "" && card.Year == "" && card.SetName == "" &&
		card.CardNumber == "" && card.Summary == "" && card.Grades == nil && card.Valuation == nil
	return card, !empty
}

func writeCardRow(row *xlsx.Row, card model.Card) {
	row.AddCell().SetString(card.PlayerName)
	row.AddCell().SetString(card.Year)
	row.AddCell().SetString(card.SetName)
	row.AddCell().SetString(card.CardNumber)

	if card.Grades != nil && card.Grades.Overall > 0 {
		row.AddCell().SetString(strconv.FormatFloat(card.Grades.Overall, 'f', 1, 64))
		row.AddCell().SetString(card.Grades.Label)
	} else {
		row.AddCell().SetString("")
		row.AddCell().SetString("")
	}

	if card.Valuation != nil && card.Valuation.MidUSD > 0 {
		row.AddCell().SetString(strconv.FormatFloat(card.Valuation.MidUSD, 'f', 2, 64))
	} else {
		row.AddCell().SetString("")
	}

	row.AddCell().SetString(card.Summary)
}

// parseNumber tolerates currency formatting in grade and value cells.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
