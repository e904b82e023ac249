package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor reports whether ANSI colors should be used on stdout.
// NO_COLOR wins over CLICOLOR_FORCE, which wins over CLICOLOR and TTY
// detection.
func ShouldUseColor() bool {
	return shouldUseColor(os.Stdout)
}

// ShouldUseColorOn is ShouldUseColor for an arbitrary output file.
func ShouldUseColorOn(f *os.File) bool {
	return shouldUseColor(f)
}

func shouldUseColor(f *os.File) bool {
	// https://no-color.org
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	return f != nil && term.IsTerminal(int(f.Fd()))
}
