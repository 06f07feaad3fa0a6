package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/eventstore"
)

// HistoryCmd lists recorded builds.
type HistoryCmd struct {
	Limit  int  `short:"n" name:"limit" default:"10" help:"Number of builds to show"`
	Issues bool `name:"issues" help:"Show recorded issue lines"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	cacheDir := cfg.Path(cfg.CacheDir)
	w := g.out()
	if _, err := os.Stat(filepath.Join(cacheDir, eventstore.HistoryFile)); os.IsNotExist(err) {
		_, _ = fmt.Fprintln(w, "No builds recorded yet.")
		return nil
	}

	store, err := eventstore.Open(cacheDir)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.List(context.Background(), h.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "No builds recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STARTED\tBUILD\tKIND\tOUTCOME\tDURATION\tRENDERED\tWRITTEN\tFAILED\tWARNINGS\tEXEC")
	for _, r := range records {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d/%d\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.BuildID[:min(len(r.BuildID), 8)],
			r.Kind, r.Outcome, r.Duration.Truncate(time.Millisecond),
			r.Rendered, r.Written, r.Failed, r.Warnings,
			r.Executions, r.CacheHits+r.Executions)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if h.Issues {
		for _, r := range records {
			for _, line := range r.Issues {
				_, _ = fmt.Fprintf(w, "%s  %s\n", r.BuildID[:min(len(r.BuildID), 8)], line)
			}
		}
	}
	return nil
}
