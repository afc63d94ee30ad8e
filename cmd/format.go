package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"

	"github.com/slabworks/gradepipe/internal/model"
)

// formatCardsList writes a tabular list of cards to w.
func formatCardsList(out io.Writer, cards []model.Card) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tPLAYER\tYEAR\tGRADE\tVALUE\tSYNC")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t----\t-----\t-----\t----")

	for _, c := range cards {
		grade := ""
		if c.Grades != nil && c.Grades.Overall > 0 {
			grade = fmt.Sprintf("%.1f", c.Grades.Overall)
		}
		value := ""
		if c.Valuation != nil && c.Valuation.MidUSD > 0 {
			value = fmt.Sprintf("$%.0f", c.Valuation.MidUSD)
		}
		sync := ""
		if c.Dirty {
			sync = "pending"
		}

		player := c.PlayerName
		if len(player) > 24 {
			player = player[:21] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(c.ID), c.Status, player, c.Year, grade, value, sync)
	}
	_ = w.Flush()
}

// formatCard writes the full detail view of one card to w.
func formatCard(out io.Writer, c model.Card) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ID:\t%s\n", c.ID)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", c.Status)
	_, _ = fmt.Fprintf(w, "Created:\t%s\n", c.CreatedAt.Format("2006-01-02 15:04"))
	if c.PlayerName != "" {
		_, _ = fmt.Fprintf(w, "Player:\t%s\n", c.PlayerName)
	}
	if c.Year != "" {
		_, _ = fmt.Fprintf(w, "Year:\t%s\n", c.Year)
	}
	if c.SetName != "" {
		_, _ = fmt.Fprintf(w, "Set:\t%s\n", c.SetName)
	}
	if c.CardNumber != "" {
		_, _ = fmt.Fprintf(w, "Number:\t%s\n", c.CardNumber)
	}
	if c.Brand != "" {
		_, _ = fmt.Fprintf(w, "Brand:\t%s\n", c.Brand)
	}
	if c.Variant != "" {
		_, _ = fmt.Fprintf(w, "Variant:\t%s\n", c.Variant)
	}
	if g := c.Grades; g != nil {
		_, _ = fmt.Fprintf(w, "Grade:\t%.1f (%s)\n", g.Overall, g.Label)
		if g.Centering > 0 {
			_, _ = fmt.Fprintf(w, "  Centering:\t%.1f\n", g.Centering)
			_, _ = fmt.Fprintf(w, "  Corners:\t%.1f\n", g.Corners)
			_, _ = fmt.Fprintf(w, "  Edges:\t%.1f\n", g.Edges)
			_, _ = fmt.Fprintf(w, "  Surface:\t%.1f\n", g.Surface)
			_, _ = fmt.Fprintf(w, "  Eye appeal:\t%.1f\n", g.EyeAppeal)
		}
	}
	if v := c.Valuation; v != nil {
		_, _ = fmt.Fprintf(w, "Value:\t$%.0f ($%.0f - $%.0f)\n", v.MidUSD, v.LowUSD, v.HighUSD)
	}
	if c.Summary != "" {
		_, _ = fmt.Fprintf(w, "Summary:\t%s\n", c.Summary)
	}
	if c.ErrorMessage != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s (%s)\n", c.ErrorMessage, c.ErrorKind)
	}
	if c.StatusNote != "" {
		_, _ = fmt.Fprintf(w, "Note:\t%s\n", c.StatusNote)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// resolveCardID expands an id prefix to the full id, erroring on ambiguity.
func resolveCardID(cards []model.Card, prefix string) (string, error) {
	var matches []string
	for _, c := range cards {
		if c.ID == prefix {
			return c.ID, nil
		}
		if strings.HasPrefix(c.ID, prefix) {
			matches = append(matches, c.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", eris.Errorf("no card matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", eris.Errorf("%q is ambiguous (%d matches)", prefix, len(matches))
	}
}
