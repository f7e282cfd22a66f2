package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fpang/artframe/internal/cli"
	"github.com/fpang/artframe/internal/export"
	"github.com/fpang/artframe/internal/pipeline"
	"github.com/fpang/artframe/internal/progress"
)

var (
	colorFlag     string
	thicknessFlag int
	forceFlag     bool
	dataFlag      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once and print progress",
	RunE:  runOnce,
}

func init() {
	runCmd.Flags().StringVar(&colorFlag, "color", "000000", "Frame color as hex (rrggbb)")
	runCmd.Flags().IntVar(&thicknessFlag, "thickness", 30, "Frame thickness in pixels")
	runCmd.Flags().BoolVar(&forceFlag, "force", false, "Re-download every attachment, ignoring the download log")
	runCmd.Flags().StringVar(&dataFlag, "data", "", "Use an existing export data file instead of running the exporter")
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var exporter export.Exporter
	if dataFlag != "" {
		path, err := cli.ResolveFile(dataFlag)
		if err != nil {
			return err
		}
		exporter = export.FileExporter{Path: path}
	}
	a, err := newApp(ctx, "run", exporter)
	if err != nil {
		return err
	}

	m := pipeline.NewManager(a.pipeline)
	run, err := m.Start(ctx, pipeline.Options{Color: colorFlag, Thickness: thicknessFlag, Force: forceFlag})
	if err != nil {
		return err
	}
	if err := printEvents(context.Background(), run, cmd.OutOrStdout()); err != nil {
		return err
	}
	out, err := run.Wait(context.Background())
	if err != nil {
		return err
	}
	var size int64
	if out.Archive != "" {
		size = m.Archive().Size
	}
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, cli.RunSummary(out.Downloaded, out.Framed, size, out.Duration))
	if out.ArchiveURL != "" {
		fmt.Fprintf(w, "Archive URL: %s\n", out.ArchiveURL)
	}
	return nil
}

func printEvents(ctx context.Context, run *pipeline.Run, w io.Writer) error {
	events, err := run.Events(ctx)
	if err != nil {
		return err
	}
	for ev := range events {
		prefix := ""
		if ev.Level != progress.LevelInfo {
			prefix = string(ev.Level) + ": "
		}
		fmt.Fprintf(w, "%s%s\n", prefix, ev.Text)
	}
	return nil
}
