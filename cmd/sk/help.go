package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/structs/internal/ui"
)

// flagTypes are the value placeholders cobra prints after a flag name.
var flagTypes = map[string]bool{"string": true, "int": true, "duration": true, "strings": true}

// colorizedHelpFunc renders cobra's usage text and styles it when color is
// enabled.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		if noColor || !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		fmt.Fprint(out, colorizeHelpOutput(buf.String()))
	}
}

// colorizeHelpOutput styles section headers, command names, flag value
// types and defaults, one line at a time.
func colorizeHelpOutput(s string) string {
	lines := strings.SplitAfter(s, "\n")
	for i, line := range lines {
		body := strings.TrimRight(line, "\n")
		nl := line[len(body):]
		switch {
		case body == "":
		case body[0] != ' ' && strings.HasSuffix(strings.TrimSpace(body), ":"):
			lines[i] = ui.RenderAccent(strings.TrimSpace(body)) + nl
		case strings.HasPrefix(strings.TrimLeft(body, " "), "-"):
			lines[i] = styleFlagLine(body) + nl
		case len(body) > 2 && strings.HasPrefix(body, "  ") && body[2] != ' ':
			name, rest, ok := strings.Cut(body[2:], "  ")
			if ok {
				lines[i] = "  " + ui.RenderCommand(name) + "  " + rest + nl
			}
		}
	}
	return strings.Join(lines, "")
}

func styleFlagLine(line string) string {
	words := strings.Split(line, " ")
	for j := 1; j < len(words); j++ {
		if flagTypes[words[j]] && strings.HasPrefix(words[j-1], "-") {
			words[j] = ui.RenderMuted(words[j])
			break
		}
	}
	line = strings.Join(words, " ")
	if k := strings.LastIndex(line, "(default "); k >= 0 && strings.HasSuffix(line, ")") {
		line = line[:k] + ui.RenderMuted(line[k:])
	}
	return line
}
