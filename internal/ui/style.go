package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Sprint color functions for building styled strings.
var (
	Bold        = color.New(color.Bold).SprintFunc()
	Dim         = color.New(color.Faint).SprintFunc()
	Cyan        = color.New(color.FgCyan).SprintFunc()
	Green       = color.New(color.FgGreen).SprintFunc()
	Red         = color.New(color.FgRed).SprintFunc()
	Yellow      = color.New(color.FgYellow).SprintFunc()
	BoldCyan    = color.New(color.Bold, color.FgCyan).SprintFunc()
	BoldGreen   = color.New(color.Bold, color.FgGreen).SprintFunc()
	BoldRed     = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldYellow  = color.New(color.Bold, color.FgYellow).SprintFunc()
	BoldMagenta = color.New(color.Bold, color.FgMagenta).SprintFunc()
	BoldWhite   = color.New(color.Bold, color.FgWhite).SprintFunc()
)

// PrintBanner renders the chainloom banner.
func PrintBanner(w io.Writer) {
	frame := color.New(color.FgCyan)
	links := color.New(color.FgYellow)
	brand := color.New(color.Bold, color.FgMagenta)

	fmt.Fprintln(w)
	frame.Fprintln(w, "   +--------------------------------+")
	links.Fprintln(w, "   |  o==o==o==o==o==o==o==o==o==o  |")
	brand.Fprintln(w, "   |   C  H  A  I  N  L  O  O  M    |")
	links.Fprintln(w, "   |  o==o==o==o==o==o==o==o==o==o  |")
	frame.Fprintln(w, "   +--------------------------------+")
	fmt.Fprintf(w, "   %s\n\n", Dim("Critical chain scheduling"))
}

// taskColors is a palette of distinct bold colors for differentiating tasks.
var taskColors = []func(a ...interface{}) string{
	BoldMagenta,
	BoldCyan,
	BoldYellow,
	BoldGreen,
	color.New(color.Bold, color.FgHiBlue).SprintFunc(),
	color.New(color.Bold, color.FgHiRed).SprintFunc(),
}

// taskColorIndex hashes a task ID to a palette index.
func taskColorIndex(taskID string) int {
	var h uint32
	for _, c := range taskID {
		h = h*31 + uint32(c)
	}
	return int(h % uint32(len(taskColors)))
}

// TaskLabel returns the task ID in its palette color, so the same task
// reads the same way across chains.
func TaskLabel(taskID string) string {
	return taskColors[taskColorIndex(taskID)](taskID)
}

// ZoneBadge returns a colored buffer zone label.
func ZoneBadge(zone string) string {
	switch zone {
	case "GREEN":
		return BoldGreen("● GREEN")
	case "YELLOW":
		return BoldYellow("● YELLOW")
	case "RED":
		return BoldRed("● RED")
	default:
		return Dim("◌ " + zone)
	}
}

// CriticalMark returns a marker for critical tasks and a blank otherwise.
func CriticalMark(critical bool) string {
	if critical {
		return BoldYellow("⚡")
	}
	return " "
}

// Minutes formats a minute count as e.g. "2h05m" or "45m".
func Minutes(m int) string {
	sign := ""
	if m < 0 {
		sign, m = "-", -m
	}
	if m < 60 {
		return fmt.Sprintf("%s%dm", sign, m)
	}
	return fmt.Sprintf("%s%dh%02dm", sign, m/60, m%60)
}
