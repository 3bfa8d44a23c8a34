package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func init() {
	color.NoColor = true
}

func TestMinutes(t *testing.T) {
	tests := map[int]string{
		0:   "0m",
		45:  "45m",
		60:  "1h00m",
		125: "2h05m",
		-30: "-30m",
		-90: "-1h30m",
	}
	for in, want := range tests {
		if got := Minutes(in); got != want {
			t.Errorf("Minutes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestTaskColorIndex_Stable(t *testing.T) {
	a := taskColorIndex("task-42")
	for i := 0; i < 10; i++ {
		if got := taskColorIndex("task-42"); got != a {
			t.Fatalf("index changed: %d != %d", got, a)
		}
	}
	if a < 0 || a >= len(taskColors) {
		t.Fatalf("index %d out of range", a)
	}
}

func TestZoneBadge(t *testing.T) {
	for _, z := range []string{"GREEN", "YELLOW", "RED", "PURPLE"} {
		if got := ZoneBadge(z); !strings.Contains(got, z) {
			t.Errorf("ZoneBadge(%q) = %q", z, got)
		}
	}
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	if !strings.Contains(buf.String(), "C  H  A  I  N  L  O  O  M") {
		t.Errorf("banner missing brand:\n%s", buf.String())
	}
}
