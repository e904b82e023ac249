package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/alfredjeanlab/structs/internal/events"
	"github.com/alfredjeanlab/structs/internal/scenario"
	"github.com/alfredjeanlab/structs/internal/ui"
)

// execute runs the root command with args and an empty environment.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{"STRUCTS_CONFIG", "STRUCTS_NATS_URL", "STRUCTS_TEMPLATE_PATHS", "STRUCTS_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")
	jsonOutput = false
	noColor = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const shapes = `
[[template]]
name = "vector2"
fields = ["x: number = 0", "y: number = 0", "dynamic length: number = sqrt(this->x^2 + this->y^2)"]

[[template]]
name = "counter"
fields = ["x: integer = 0", "const label: string = \"c\""]
`

func TestCheck_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "shapes.toml", shapes)
	out, err := execute(t, "check", "--json", path)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	var result struct {
		Reports   []reportView   `json:"reports"`
		Templates []templateView `json:"templates"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(result.Reports) != 1 || len(result.Reports[0].Loaded) != 2 {
		t.Errorf("reports = %+v", result.Reports)
	}
	if len(result.Templates) != 2 || result.Templates[0].Name != "counter" {
		t.Fatalf("templates = %+v", result.Templates)
	}
	vec := result.Templates[1]
	if len(vec.Fields) != 3 || !vec.Fields[2].Dynamic || vec.Fields[2].Type != "number" {
		t.Errorf("vector2 = %+v", vec)
	}
}

func TestCheck_Rejected(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.toml", "[[template]]\nname = \"bad\"\nfields = [\"x: nosuch\"]\n")
	out, err := execute(t, "check", path)
	if !errors.Is(err, errRejected) {
		t.Fatalf("check error = %v, want errRejected", err)
	}
	if !strings.Contains(out, "error:") || !strings.Contains(out, "nosuch") {
		t.Errorf("output = %q", out)
	}
}

func TestFields(t *testing.T) {
	path := writeFile(t, t.TempDir(), "shapes.toml", shapes)
	out, err := execute(t, "fields", "--json", "x", path)
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	var v fieldsView
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatal(err)
	}
	if len(v.Candidates) != 2 || v.ReturnType != "number" || !v.Single || v.Constant {
		t.Errorf("fields x = %+v", v)
	}
	if len(v.Accepts) != 6 {
		t.Errorf("accepts = %v, want every mode", v.Accepts)
	}

	out, err = execute(t, "fields", "label", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "constant") || !strings.Contains(out, "[reset]") {
		t.Errorf("label output = %q", out)
	}

	if _, err := execute(t, "fields", "nosuch", path); err == nil {
		t.Error("unknown field resolved")
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shapes.toml", shapes)
	path := writeFile(t, dir, "s.yaml", `
name: shapes
steps:
  - {op: load, file: shapes.toml, count: 2}
  - {op: create, template: vector2, as: v, initial: {x: 3, y: 4}}
  - {op: get, struct: v, field: length, expect: [5]}
`)
	out, err := execute(t, "run", path)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "passed") {
		t.Errorf("output = %q", out)
	}

	failing := writeFile(t, dir, "f.yaml", "steps:\n  - {op: sweep, count: 3}\n")
	out, err = execute(t, "run", "--json", failing)
	if !scenario.IsExpectation(err) {
		t.Fatalf("run error = %v, want expectation failure", err)
	}
	var results []scenarioResult
	if err := json.Unmarshal([]byte(out), &results); err != nil || len(results) != 1 || results[0].Passed {
		t.Errorf("results = %+v, %v", results, err)
	}
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestFailRun_ReportsOutputError(t *testing.T) {
	jsonOutput = true
	t.Cleanup(func() { jsonOutput = false })
	runErr := errors.New("step 2 (get): values [1], want [2]")

	err := failRun(brokenWriter{}, "a.yaml", []scenarioResult{{File: "a.yaml"}}, runErr)
	if !errors.Is(err, runErr) || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("failRun with broken output = %v, want both errors", err)
	}

	var out bytes.Buffer
	err = failRun(&out, "a.yaml", []scenarioResult{{File: "a.yaml"}}, runErr)
	if !errors.Is(err, runErr) || strings.Contains(err.Error(), "disk full") {
		t.Errorf("failRun = %v", err)
	}
	if !strings.Contains(out.String(), `"file": "a.yaml"`) {
		t.Errorf("results not printed: %q", out.String())
	}
}

func TestWatch_RequiresURL(t *testing.T) {
	if _, err := execute(t, "watch"); err == nil {
		t.Fatal("watch without a NATS URL succeeded")
	}
}

func TestWatch(t *testing.T) {
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	ui.ForceNoColor()

	var buf bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- watch(context.Background(), &buf, srv.ClientURL(), events.TopicAll, 1) }()

	pub, err := events.NewNATSPublisher(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()
	// The subscription may not exist yet; publish until watch has seen one.
	deadline := time.After(5 * time.Second)
	for {
		_ = pub.Publish(context.Background(), events.TopicStructCreated, events.StructCreated{ID: "st-1", Template: "p"})
		select {
		case err := <-done:
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(buf.String(), events.TopicStructCreated) || !strings.Contains(buf.String(), "st-1") {
				t.Errorf("output = %q", buf.String())
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("watch never printed an event")
		}
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := newLogger(io.Discard, "loud", "text"); err == nil {
		t.Error("bad level accepted")
	}
	if _, err := newLogger(io.Discard, "info", "xml"); err == nil {
		t.Error("bad format accepted")
	}
	var buf bytes.Buffer
	l, err := newLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatal(err)
	}
	l.Info("hidden")
	l.Warn("shown", "k", 1)
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"k":1`) {
		t.Errorf("log output = %q", buf.String())
	}
}

func TestColorizeHelpOutput(t *testing.T) {
	in := "Runtime:\n  run  Run scenarios\nFlags:\n      --log-level string   log level (default \"info\")\n"
	got := colorizeHelpOutput(in)
	if ui.ColorEnabled() {
		if !strings.Contains(got, "\x1b[") {
			t.Errorf("no escapes in %q", got)
		}
		return
	}
	if got != in {
		t.Errorf("colorize with color disabled changed text: %q", got)
	}
}
