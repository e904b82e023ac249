package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/structs/internal/config"
	"github.com/alfredjeanlab/structs/internal/ui"
)

var (
	jsonOutput bool
	logLevel   string
	noColor    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "sk <command>",
	Short:         "Check, inspect and exercise struct template declarations",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			c.LogLevel = logLevel
		}
		logger, err := newLogger(cmd.ErrOrStderr(), c.LogLevel, c.LogFormat)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		cfg = c
		if c.Path != "" {
			slog.Debug("sk: config loaded", "path", c.Path)
		}
		return nil
	},
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lv}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("log format %q: want text or json", format)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "decls", Title: "Declarations:"},
		&cobra.Group{ID: "runtime", Title: "Runtime:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Declarations
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(fieldsCmd)

	// Runtime
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderError("Error: "+err.Error()))
		os.Exit(1)
	}
}
