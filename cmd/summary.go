package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/JakeFAU/journal-ingest/internal/ingest"
)

// renderSummary writes the end-of-run report as a table.
func renderSummary(w io.Writer, s ingest.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Run " + s.RunID)

	failed := "none"
	if len(s.FailedPages) > 0 {
		pages := make([]string, 0, len(s.FailedPages))
		for _, p := range s.FailedPages {
			pages = append(pages, strconv.Itoa(p))
		}
		failed = strings.Join(pages, ", ")
	}

	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Pages", fmt.Sprintf("%d-%d", s.StartPage, s.StopPage)},
		{"Uploaded", s.PagesUploaded},
		{"Already stored", s.PagesExisting},
		{"Articles", s.ArticlesUploaded},
		{"Failed pages", failed},
		{"Duration", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond).String()},
	})
	t.Render()
}
