package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/audionotes/internal/client/notesclient"
	"github.com/dustin/go-humanize"
)

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	a.printf("%s\n", b)
	return nil
}

func (a *App) printNotes(notes []notesclient.Note) error {
	if len(notes) == 0 {
		a.printf("No notes\n")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tTAGS\tCREATED")
	for _, n := range notes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", n.ID, n.Title, n.Status, strings.Join(n.Tags, ","), humanize.Time(n.CreatedAt))
	}
	return w.Flush()
}
