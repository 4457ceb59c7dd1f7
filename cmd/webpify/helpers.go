package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// pauseForEnter keeps the console window open so drag-and-drop launches can
// read the summary before the window closes. It is a no-op when stdin is not
// a terminal.
func pauseForEnter(cmd *cobra.Command, enabled bool) {
	if !enabled || !isatty.IsTerminal(os.Stdin.Fd()) {
		return
	}
	fmt.Fprint(cmd.OutOrStdout(), "Press Enter to exit...")
	reader := bufio.NewReader(cmd.InOrStdin())
	_, _ = reader.ReadString('\n')
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	return value[:max] + "…"
}

func formatBytes(value int64) string {
	const (
		kiB = 1024
		miB = kiB * 1024
		giB = miB * 1024
	)
	switch {
	case value >= giB:
		return fmt.Sprintf("%.2f GiB", float64(value)/float64(giB))
	case value >= miB:
		return fmt.Sprintf("%.2f MiB", float64(value)/float64(miB))
	case value >= kiB:
		return fmt.Sprintf("%.2f KiB", float64(value)/float64(kiB))
	default:
		return fmt.Sprintf("%d B", value)
	}
}

// sizeCell renders a byte count for a table cell, leaving zero blank so
// failed rows do not read as zero-byte conversions.
func sizeCell(value int64) string {
	if value <= 0 {
		return ""
	}
	return formatBytes(value)
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

// savedPercent reports the size reduction from in to out, blank when the
// inputs cannot support a meaningful ratio.
func savedPercent(in, out int64) string {
	if in <= 0 || out <= 0 {
		return ""
	}
	return fmt.Sprintf("%.1f%%", (1-float64(out)/float64(in))*100)
}
