package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/sadopc/bankql/internal/history"
)

// runHistory opens only the history store, so it works without a database
// connection.
func runHistory(ctx context.Context, configPath string, w io.Writer, search string, limit int, clear bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	path, err := cfg.HistoryPath()
	if err != nil {
		return err
	}
	h, err := history.Open(path, slog.New(slog.DiscardHandler))
	if err != nil {
		return err
	}
	defer h.Close()

	if clear {
		if err := h.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(w, "History cleared.")
		return nil
	}

	var entries []history.Entry
	if search != "" {
		entries, err = h.Search(ctx, search, limit)
	} else {
		entries, err = h.Recent(ctx, limit)
	}
	if err != nil {
		return err
	}
	printHistory(w, entries)
	return nil
}

func printHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tSTATUS\tROWS\tQUESTION\tSQL")
	for _, e := range entries {
		status := e.Status
		if e.Fallback {
			status += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			e.ExecutedAt.Local().Format(time.DateTime), status, e.RowCount, e.Question, e.SQL)
	}
	tw.Flush()
}
