package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/sift/internal/points"
)

func sampleSummary() *Summary {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s := &Summary{
		RunID:      "run-1",
		Query:      "tide pools",
		URLs:       3,
		Pages:      2,
		Paragraphs: 5,
		Kept:       3,
		Discarded:  2,
		StartTime:  now,
		EndTime:    now.Add(4 * time.Second),
		Duration:   4 * time.Second,
		Points: points.Results([]points.Paragraph{
			{Text: "Tide pools form in rocky intertidal zones.", Source: "https://www.ocean.example/pools"},
			{Text: `Anemones "close" at low tide, <b>retaining</b> water.`, Source: "https://ocean.example/anemones"},
			{Text: "Sea stars, like many echinoderms, regrow arms.", Source: "https://bio.example/stars"},
		}),
	}
	s.CountSources()
	return s
}

func TestCountSources(t *testing.T) {
	s := sampleSummary()
	if s.Sources["ocean.example"] != 2 {
		t.Errorf("expected 2 ocean.example points, got %d", s.Sources["ocean.example"])
	}
	top := s.TopSources()
	if len(top) != 2 || top[0].Name != "ocean.example" {
		t.Errorf("expected ocean.example first, got %+v", top)
	}
}

func TestWriteText(t *testing.T) {
	s := sampleSummary()
	s.Degraded = true
	s.DegradedReason = "embedding backend unavailable"

	var buf bytes.Buffer
	if err := WriteText(&buf, s); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"sift: tide pools",
		"3 discovered, 2 with content",
		"5 extracted, 3 kept, 2 duplicates",
		"DEGRADED:      embedding backend unavailable",
		"ocean.example: 2",
		"[1] ocean.example",
		"Sea stars, like many echinoderms, regrow arms.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected text report to contain %q\n%s", want, out)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleSummary()); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var decoded struct {
		RunID  string `json:"run_id"`
		Points []struct {
			Paragraph  string `json:"paragraph"`
			Source     string `json:"source"`
			SourceName string `json:"source_name"`
		} `json:"points"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.RunID != "run-1" || len(decoded.Points) != 3 {
		t.Errorf("unexpected decode: %+v", decoded)
	}
	if decoded.Points[0].SourceName != "ocean.example" {
		t.Errorf("expected source_name ocean.example, got %s", decoded.Points[0].SourceName)
	}
}

func TestWriteHTML_EscapesContent(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, sampleSummary()); err != nil {
		t.Fatalf("WriteHTML failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<title>sift: tide pools</title>") {
		t.Errorf("expected title in HTML output")
	}
	if strings.Contains(out, "<b>retaining</b>") {
		t.Errorf("expected paragraph markup to be escaped")
	}
	if !strings.Contains(out, "&lt;b&gt;retaining&lt;/b&gt;") {
		t.Errorf("expected escaped paragraph text")
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleSummary()); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(records))
	}
	if records[0][0] != "index" || records[2][1] != "ocean.example" {
		t.Errorf("unexpected CSV content: %v", records)
	}
	if records[3][3] != "Sea stars, like many echinoderms, regrow arms." {
		t.Errorf("expected comma-containing paragraph to round-trip, got %q", records[3][3])
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "yaml", sampleSummary()); err == nil {
		t.Fatal("expected error for unknown format")
	}
	for _, f := range Formats {
		buf.Reset()
		if err := Write(&buf, f, sampleSummary()); err != nil {
			t.Errorf("format %s: %v", f, err)
		}
	}
}
