package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/structs/internal/host"
	"github.com/alfredjeanlab/structs/internal/scenario"
	"github.com/alfredjeanlab/structs/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run <scenario>...",
	Short: "Run scenario files against one host",
	Long: `Run scenario files in order against a single host. The configured
template paths are loaded first; declarations and struct names from one
scenario remain visible to the next.`,
	GroupID: "runtime",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := host.FromConfig(cfg)
		if err != nil {
			return err
		}
		defer h.Close()

		reports, err := h.LoadTemplates()
		if err != nil {
			return err
		}
		for _, r := range reports {
			if err := r.Err(); err != nil {
				slog.Warn("sk: configured templates rejected", "source", r.Source, "err", err)
			}
		}
		if cfg.SweepInterval > 0 {
			h.StartSweeper(&host.SweeperConfig{Interval: cfg.SweepInterval})
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		var results []scenarioResult
		for _, path := range args {
			sc, err := scenario.LoadFile(path)
			if err != nil {
				return err
			}
			outcomes, runErr := scenario.NewRunner(h, filepath.Dir(path)).Run(ctx, sc)
			res := scenarioResult{File: path, Name: sc.Name, Steps: outcomes, Passed: runErr == nil}
			if runErr != nil {
				res.Error = runErr.Error()
			}
			if jsonOutput {
				results = append(results, res)
			} else {
				printOutcomes(out, res)
			}
			if runErr != nil {
				return failRun(out, path, results, runErr)
			}
		}
		if jsonOutput {
			return printJSON(out, results)
		}
		return nil
	},
}

// failRun reports the scenario at path as failed, printing the results so
// far first under --json.
func failRun(w io.Writer, path string, results []scenarioResult, runErr error) error {
	err := fmt.Errorf("%s: %w", path, runErr)
	if jsonOutput {
		if perr := printJSON(w, results); perr != nil {
			return errors.Join(err, perr)
		}
	}
	return err
}

type scenarioResult struct {
	File   string             `json:"file"`
	Name   string             `json:"name,omitempty"`
	Passed bool               `json:"passed"`
	Error  string             `json:"error,omitempty"`
	Steps  []scenario.Outcome `json:"steps"`
}

func printOutcomes(w io.Writer, res scenarioResult) {
	title := res.Name
	if title == "" {
		title = res.File
	}
	fmt.Fprintln(w, ui.RenderAccent(title))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, o := range res.Steps {
		detail := fmt.Sprintf("count=%d", o.Count)
		if len(o.Values) > 0 {
			detail += fmt.Sprintf(" %v", o.Values)
		}
		if o.Ignored > 0 {
			detail += " " + ui.RenderWarn(fmt.Sprintf("ignored=%d", o.Ignored))
		}
		if o.Error != "" {
			detail += " " + ui.RenderMuted(o.Error)
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\n", o.Step, o.Op, o.Struct, detail)
	}
	tw.Flush()
	if res.Passed {
		fmt.Fprintln(w, ui.RenderOK("passed"))
	} else {
		fmt.Fprintln(w, ui.RenderError("failed: "+res.Error))
	}
}
