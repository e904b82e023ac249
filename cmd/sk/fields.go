package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/structs/internal/access"
	"github.com/alfredjeanlab/structs/internal/host"
	"github.com/alfredjeanlab/structs/internal/types"
	"github.com/alfredjeanlab/structs/internal/ui"
)

var allModes = []types.ChangeMode{types.Set, types.Add, types.Remove, types.RemoveAll, types.Delete, types.Reset}

// fieldsView is what a script compiler knows about a field name before it
// sees any struct.
type fieldsView struct {
	Name       string          `json:"name"`
	Candidates []candidateView `json:"candidates"`
	ReturnType string          `json:"return_type"`
	Single     bool            `json:"single"`
	Constant   bool            `json:"constant"`
	Accepts    []string        `json:"accepts"`
}

type candidateView struct {
	Template string    `json:"template"`
	Field    fieldView `json:"field"`
}

func viewAccess(a *access.Access) fieldsView {
	v := fieldsView{
		Name:       a.Name(),
		ReturnType: a.ReturnType().NameFor(a.Single()),
		Single:     a.Single(),
		Constant:   a.AllConstant(),
		Accepts:    []string{},
	}
	for _, c := range a.Candidates() {
		v.Candidates = append(v.Candidates, candidateView{Template: c.Template.Name(), Field: viewField(c.Field)})
	}
	for _, m := range allModes {
		if a.AcceptChange(m) == nil {
			v.Accepts = append(v.Accepts, m.String())
		}
	}
	return v
}

var fieldsCmd = &cobra.Command{
	Use:     "fields <name> <path>...",
	Short:   "Show every template defining a field name and what scripts may do with it",
	GroupID: "decls",
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h := host.New(host.WithIDPrefix(cfg.IDPrefix))
		defer h.Close()

		if _, err := loadDecls(h, args[1:]); err != nil {
			return err
		}
		var v fieldsView
		err := h.Do(func(s *host.Session) error {
			a, err := s.Resolve(args[0])
			if err != nil {
				return err
			}
			v = viewAccess(a)
			return nil
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, v)
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TEMPLATE\tTYPE\tMODIFIERS\tDEFAULT")
		for _, c := range v.Candidates {
			mods := ""
			switch {
			case c.Field.Dynamic:
				mods = "dynamic"
			case c.Field.Constant:
				mods = "constant"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ui.RenderAccent(c.Template), c.Field.Type, mods, c.Field.Default)
		}
		tw.Flush()
		fmt.Fprintf(out, "\nreturns %s", v.ReturnType)
		if v.Constant {
			fmt.Fprint(out, ", constant")
		}
		fmt.Fprintf(out, "; accepts %v\n", v.Accepts)
		return nil
	},
}
