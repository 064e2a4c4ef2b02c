package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/wippyai/syngen/store"
)

func listRuns(ctx context.Context, a *store.Archive, w io.Writer) error {
	runs, err := a.List(ctx, 0)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No archived runs.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tNETWORK\tENVIRONMENT\tKEYS")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			run.ID, run.CreatedAt.Local().Format(time.DateTime),
			run.Network, run.Environment, run.Report.Len())
	}
	return tw.Flush()
}

func showRun(ctx context.Context, a *store.Archive, id string) (store.Run, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return store.Run{}, fmt.Errorf("run id %q: %w", id, err)
	}
	run, ok, err := a.Get(ctx, parsed)
	if err != nil {
		return store.Run{}, err
	}
	if !ok {
		return store.Run{}, fmt.Errorf("run %s not found", id)
	}
	return run, nil
}
