package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"moments/feed"
	"moments/models"
)

// printRows renders a feed snapshot, one moment per block
func printRows(w io.Writer, rows []feed.Row) {
	for _, row := range rows {
		if row.IsLoader() {
			fmt.Fprintln(w, "… loading")
			continue
		}
		printMoment(w, row.Moment)
	}
}

func printMoment(w io.Writer, m models.Moment) {
	fmt.Fprintln(w, m.Text)
	fmt.Fprintln(w, "  "+m.Byline())
	fmt.Fprintln(w)
}

// printJSON writes each moment as a JSON object on a single line
func printJSON(w io.Writer, moments []models.Moment) error {
	encoder := json.NewEncoder(w)
	for _, m := range moments {
		if err := encoder.Encode(m.ToPayload()); err != nil {
			return err
		}
	}
	return nil
}
