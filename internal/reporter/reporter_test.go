package reporter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/joshharrison/chainloom/internal/buffer"
	"github.com/joshharrison/chainloom/internal/chain"
	"github.com/joshharrison/chainloom/internal/graph"
)

func init() {
	color.NoColor = true
}

func makeAnalysis(t *testing.T) *chain.Analysis {
	t.Helper()
	a, err := chain.NewAnalyzer(chain.DefaultPolicy(), nil)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	result, err := a.Analyze("proj",
		[]graph.Task{
			{ID: "A", EffortMinutes: graph.Minutes(60), ResourceIDs: []string{"ann"}},
			{ID: "B", EffortMinutes: graph.Minutes(120)},
			{ID: "C", EffortMinutes: graph.Minutes(30)},
			{ID: "D", EffortMinutes: graph.Minutes(30), ResourceIDs: []string{"ann"}},
		},
		[]graph.Dependency{
			{PredecessorID: "A", SuccessorID: "B"},
			{PredecessorID: "C", SuccessorID: "B"},
		},
	)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	return result
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "text": FormatText, "JSON": FormatJSON, "yaml": FormatYAML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestPrintAnalysis(t *testing.T) {
	var buf bytes.Buffer
	PrintAnalysis(&buf, makeAnalysis(t))
	out := buf.String()

	for _, want := range []string{
		"Critical chain analysis",
		"A → B",
		"Buffer:    1h07m",
		"Feeding chains",
		"C → B",
		"Resource leveling",
		"A → D",
		"WAVE 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintAnalysis_Warning(t *testing.T) {
	a := makeAnalysis(t)
	a.Warnings = append(a.Warnings, chain.Warning{Code: chain.WarningLevelingDidNotConverge, Message: "stopped"})

	var buf bytes.Buffer
	PrintAnalysis(&buf, a)
	if !strings.Contains(buf.String(), "ResourceLevelingDidNotConverge: stopped") {
		t.Errorf("warning not rendered:\n%s", buf.String())
	}
}

func TestEncode_JSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, FormatJSON, makeAnalysis(t).Report()); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["projectBufferMinutes"] != float64(67) {
		t.Errorf("projectBufferMinutes = %v", decoded["projectBufferMinutes"])
	}
	if _, ok := decoded["feedingChains"]; !ok {
		t.Error("missing feedingChains")
	}
}

func TestEncode_YAMLStatus(t *testing.T) {
	statuses := []buffer.BufferStatus{{
		Buffer:             buffer.Buffer{ID: "b1", Type: buffer.TypeFeeding, SizeMinutes: 10, ConsumedMinutes: 5, MergeTaskID: "B"},
		ConsumptionPercent: 50,
		Zone:               buffer.ZoneYellow,
	}}
	var buf bytes.Buffer
	if err := Encode(&buf, FormatYAML, statuses); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var decoded []map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(decoded))
	}
	if decoded[0]["zone"] != "YELLOW" || decoded[0]["mergeTaskId"] != "B" || decoded[0]["consumptionPercent"] != 50 {
		t.Errorf("unexpected yaml entry %v", decoded[0])
	}
}

func TestEncode_TextRejected(t *testing.T) {
	if err := Encode(&bytes.Buffer{}, FormatText, 1); err == nil {
		t.Error("expected error for text format")
	}
}

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	PrintStatus(&buf, "proj", []buffer.BufferStatus{
		{Buffer: buffer.Buffer{ID: "p1", Type: buffer.TypeProject, SizeMinutes: 60, ConsumedMinutes: 45}, ConsumptionPercent: 75, Zone: buffer.ZoneRed},
		{Buffer: buffer.Buffer{ID: "f1", Type: buffer.TypeFeeding, SizeMinutes: 15, MergeTaskID: "B"}, ConsumptionPercent: 0, Zone: buffer.ZoneGreen},
	})
	out := buf.String()
	for _, want := range []string{"RED", "75%", "project end", "GREEN", "before B"} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q:\n%s", want, out)
		}
	}
}

func TestPrintStatus_Empty(t *testing.T) {
	var buf bytes.Buffer
	PrintStatus(&buf, "proj", nil)
	if !strings.Contains(buf.String(), "no active buffers") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestPrintDependencies(t *testing.T) {
	var buf bytes.Buffer
	PrintDependencies(&buf, []graph.Dependency{
		{ID: "d1", PredecessorID: "a", SuccessorID: "b", Type: graph.StartToStart, LagMinutes: 90},
	})
	if out := buf.String(); !strings.Contains(out, "a → b  SS lag 1h30m") {
		t.Errorf("unexpected output:\n%s", out)
	}
}
