package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/structs/internal/decl"
	"github.com/alfredjeanlab/structs/internal/host"
	"github.com/alfredjeanlab/structs/internal/ui"
)

var errRejected = errors.New("declarations rejected")

var checkCmd = &cobra.Command{
	Use:     "check <path>...",
	Short:   "Load declaration files and report their templates or errors",
	GroupID: "decls",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h := host.New(host.WithIDPrefix(cfg.IDPrefix))
		defer h.Close()

		reports, err := loadDecls(h, args)
		if err != nil {
			return err
		}
		rejected := 0
		for _, r := range reports {
			rejected += len(r.Errors)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			var result struct {
				Reports   []reportView   `json:"reports"`
				Templates []templateView `json:"templates"`
			}
			result.Reports = make([]reportView, 0, len(reports))
			result.Templates = []templateView{}
			for _, r := range reports {
				result.Reports = append(result.Reports, viewReport(r))
			}
			_ = h.Do(func(s *host.Session) error {
				for _, t := range s.Templates().Templates() {
					result.Templates = append(result.Templates, viewTemplate(t))
				}
				return nil
			})
			if err := printJSON(out, result); err != nil {
				return err
			}
		} else {
			for _, r := range reports {
				printReport(out, r)
			}
			_ = h.Do(func(s *host.Session) error {
				for _, t := range s.Templates().Templates() {
					printTemplate(out, t)
				}
				return nil
			})
			if rejected == 0 {
				fmt.Fprintln(out, ui.RenderOK("ok"))
			}
		}
		if rejected > 0 {
			return fmt.Errorf("%w: %d template(s)", errRejected, rejected)
		}
		return nil
	},
}

// loadDecls loads every path into h.
func loadDecls(h *host.Host, paths []string) ([]*decl.Report, error) {
	var reports []*decl.Report
	err := h.Do(func(s *host.Session) error {
		var err error
		reports, err = s.Loader().LoadPaths(paths...)
		return err
	})
	return reports, err
}
