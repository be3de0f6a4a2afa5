package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the ASCII art banner for Weave to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text, color string
	}{
		{" __      __                      ", "#34d399"},
		{" \\ \\    / /__  __ ___ _____ ", "#2dd4bf"},
		{"  \\ \\/\\/ / -_)/ _` \\ V / -_)", "#22d3ee"},
		{"   \\_/\\_/\\___|\\__,_|\\_/\\___|", "#38bdf8"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}

// EventStyle colors an event line by its type for terminal output.
func EventStyle(kind, msg string) string {
	p := termenv.ColorProfile()
	color := "#a1a1aa"
	switch kind {
	case "tension":
		color = "#fbbf24"
	case "resolve":
		color = "#34d399"
	case "metaweave":
		color = "#c084fc"
	}
	return termenv.String(msg).Foreground(p.Color(color)).String()
}
