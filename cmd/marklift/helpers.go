package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"marklift/internal/textutil"
)

const (
	ansiGreen  = "\x1b[32m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiReset  = "\x1b[0m"
)

func looksLikeURL(arg string) bool {
	lowered := strings.ToLower(strings.TrimSpace(arg))
	return strings.HasPrefix(lowered, "http://") || strings.HasPrefix(lowered, "https://")
}

// itemLabel renders an item name as a readable title with the raw source in
// parentheses, falling back to the name alone when the title adds nothing.
func itemLabel(name string) string {
	title := textutil.DisplayTitle(name)
	if title == "" || title == name {
		return name
	}
	return fmt.Sprintf("%s (%s)", title, name)
}

func formatBytes(n int64) string {
	switch {
	case n <= 0:
		return "-"
	case n < 1<<10:
		return fmt.Sprintf("%d B", n)
	case n < 1<<20:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	case n < 1<<30:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	default:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	}
}

func colorizeStatus(status string, colorize bool) string {
	if !colorize {
		return status
	}
	switch status {
	case "completed":
		return ansiGreen + status + ansiReset
	case "error":
		return ansiRed + status + ansiReset
	case "cancelled":
		return ansiYellow + status + ansiReset
	default:
		return status
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
