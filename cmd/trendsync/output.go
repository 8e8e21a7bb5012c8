package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kalambet/trendsync/internal/breaker"
	"github.com/kalambet/trendsync/internal/pipeline"
	"github.com/kalambet/trendsync/internal/trend"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// Status lines go to stderr so stdout stays machine-readable.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorCyan, "→ "+msg))
}

const maxTitleWidth = 48

func formatTrendRow(r trend.Row) string {
	growth := "   new"
	if r.GrowthRate != nil {
		growth = fmt.Sprintf("%+6.1f%%", *r.GrowthRate)
	}
	tags := "untagged"
	if r.Genre != nil && r.Vibe != nil {
		tags = *r.Genre + "/" + *r.Vibe
	}
	title := []rune(r.Title)
	if len(title) > maxTitleWidth {
		title = append(title[:maxTitleWidth], []rune("...")...)
	}
	return fmt.Sprintf("%3d  %s  %s - %s  %s  %s",
		r.Rank,
		colorize(colorCyan, growth),
		colorize(colorBold, string(title)),
		r.Author,
		tags,
		colorize(colorYellow, r.ID),
	)
}

func formatSnapshot(s trend.Snapshot) string {
	return fmt.Sprintf("%s  rank %3d  plays %d",
		time.UnixMilli(s.SnapshotAt).UTC().Format(time.RFC3339),
		s.Rank,
		s.PlayCount,
	)
}

// breakerLabel renders a breaker as closed, open with its remaining
// cooldown, or half-open once the cooldown has elapsed.
func breakerLabel(s breaker.State) string {
	if !s.IsOpen {
		return colorize(colorGreen, fmt.Sprintf("closed (%d failures)", s.FailureCount))
	}
	if s.TimeUntilReset <= 0 {
		return colorize(colorYellow, "half-open")
	}
	return colorize(colorRed, fmt.Sprintf("open, retry in %s", s.TimeUntilReset.Round(time.Second)))
}

func runStatusLabel(status string) string {
	switch status {
	case pipeline.StatusSuccess:
		return colorize(colorGreen, status)
	case pipeline.StatusWarning:
		return colorize(colorYellow, status)
	default:
		return colorize(colorRed, status)
	}
}
