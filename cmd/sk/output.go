package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"

	"github.com/alfredjeanlab/structs/internal/decl"
	"github.com/alfredjeanlab/structs/internal/model"
	"github.com/alfredjeanlab/structs/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// templateView is the JSON shape of a loaded template.
type templateView struct {
	Name        string      `json:"name"`
	Fingerprint string      `json:"fingerprint"`
	Fields      []fieldView `json:"fields"`
}

type fieldView struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Single   bool   `json:"single"`
	Constant bool   `json:"constant,omitempty"`
	Dynamic  bool   `json:"dynamic,omitempty"`
	Default  string `json:"default,omitempty"`
}

func viewTemplate(t *model.Template) templateView {
	v := templateView{Name: t.Name(), Fingerprint: t.Fingerprint()}
	for _, f := range t.Fields() {
		v.Fields = append(v.Fields, viewField(f))
	}
	return v
}

func viewField(f *model.Field) fieldView {
	return fieldView{
		Name:     f.Name(),
		Type:     f.Type().NameFor(f.Single()),
		Single:   f.Single(),
		Constant: f.Constant(),
		Dynamic:  f.Dynamic(),
		Default:  f.DefaultSource(),
	}
}

// reportView is the JSON shape of a decl.Report.
type reportView struct {
	Source   string   `json:"source"`
	Loaded   []string `json:"loaded"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func viewReport(r *decl.Report) reportView {
	v := reportView{Source: r.Source, Loaded: r.Loaded, Warnings: r.Warnings}
	if v.Loaded == nil {
		v.Loaded = []string{}
	}
	for _, err := range r.Errors {
		v.Errors = append(v.Errors, err.Error())
	}
	return v
}

func printReport(w io.Writer, r *decl.Report) {
	fmt.Fprintf(w, "%s: %d loaded\n", r.Source, len(r.Loaded))
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  %s %s\n", ui.RenderWarn("warning:"), warn)
	}
	for _, err := range r.Errors {
		fmt.Fprintf(w, "  %s %s\n", ui.RenderError("error:"), err)
	}
}

func printTemplate(w io.Writer, t *model.Template) {
	fmt.Fprintf(w, "%s %s\n", ui.RenderAccent(t.Name()), ui.RenderMuted(t.Fingerprint()))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, f := range t.Fields() {
		var mods []string
		if f.Dynamic() {
			mods = append(mods, "dynamic")
		} else if f.Constant() {
			mods = append(mods, "constant")
		}
		def := f.DefaultSource()
		if def != "" {
			def = "= " + def
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", f.Name(), f.Type().NameFor(f.Single()), strings.Join(mods, " "), def)
	}
	tw.Flush()
}
