// Package report renders the summary of a pipeline run.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"sort"
	"text/template"
	"time"

	"github.com/FranksOps/sift/internal/points"
)

// Summary describes one pipeline run and its results.
type Summary struct {
	RunID string `json:"run_id"`
	Query string `json:"query"`
	// Cached is true when the results came from the cache.
	Cached bool `json:"cached"`
	// Degraded is true when dedup could not run as configured.
	Degraded       bool   `json:"degraded"`
	DegradedReason string `json:"degraded_reason,omitempty"`

	URLs       int `json:"urls"`
	Pages      int `json:"pages"` // URLs that produced paragraphs
	Paragraphs int `json:"paragraphs"`
	Kept       int `json:"kept"`
	Discarded  int `json:"discarded"`
	Failed     int `json:"failed"`

	// Sources counts result points per source name.
	Sources   map[string]int `json:"sources"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	Duration  time.Duration  `json:"duration_ns"`

	Points []points.ResultPoint `json:"points"`
}

// SourceCount is one row of the per-source breakdown.
type SourceCount struct {
	Name  string
	Count int
}

// CountSources fills Sources from Points.
func (s *Summary) CountSources() {
	s.Sources = make(map[string]int)
	for _, p := range s.Points {
		s.Sources[p.SourceName]++
	}
}

// TopSources returns Sources ordered by count, then name.
func (s *Summary) TopSources() []SourceCount {
	out := make([]SourceCount, 0, len(s.Sources))
	for name, n := range s.Sources {
		out = append(out, SourceCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Formats lists the names accepted by Write.
var Formats = []string{"text", "json", "html", "csv"}

// Write renders summary in the named format.
func Write(w io.Writer, format string, summary *Summary) error {
	switch format {
	case "", "text":
		return WriteText(w, summary)
	case "json":
		return WriteJSON(w, summary)
	case "html":
		return WriteHTML(w, summary)
	case "csv":
		return WriteCSV(w, summary)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary *Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary *Summary) error {
	const textTmpl = `sift: {{.Query}}
------------------
Run:           {{.RunID}}{{if .Cached}} (cached){{end}}
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
URLs:          {{.URLs}} discovered, {{.Pages}} with content
Paragraphs:    {{.Paragraphs}} extracted, {{.Kept}} kept, {{.Discarded}} duplicates, {{.Failed}} unusable
{{- if .Degraded}}
DEGRADED:      {{.DegradedReason}}
{{- end}}

Sources:
{{- range .TopSources}}
  {{.Name}}: {{.Count}}
{{- else}}
  None
{{- end}}
{{range $i, $p := .Points}}
[{{inc $i}}] {{$p.SourceName}}
{{$p.Paragraph}}
  {{$p.Source}}
{{end}}`

	t, err := template.New("textReport").Funcs(template.FuncMap{"inc": inc}).Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}

	return nil
}

// WriteHTML writes a basic HTML report to the provided writer. Page text is
// escaped.
func WriteHTML(w io.Writer, summary *Summary) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>sift: {{.Query}}</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; max-width: 60em; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 120px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  .degraded { color: #b00; font-weight: bold; }
  blockquote { border-left: 4px solid #ccc; margin: 16px 0; padding-left: 12px; }
  cite { display: block; font-size: 0.9em; color: #666; }
</style>
</head>
<body>
  <h1>{{.Query}}</h1>
  <p><strong>Run:</strong> {{.RunID}}{{if .Cached}} (cached){{end}} &middot; {{.StartTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>
  {{- if .Degraded}}
  <p class="degraded">Degraded: {{.DegradedReason}}</p>
  {{- end}}

  <div class="stat-card"><div>URLs</div><div class="stat-val">{{.URLs}}</div></div>
  <div class="stat-card"><div>Paragraphs</div><div class="stat-val">{{.Paragraphs}}</div></div>
  <div class="stat-card"><div>Kept</div><div class="stat-val">{{.Kept}}</div></div>
  <div class="stat-card"><div>Duplicates</div><div class="stat-val">{{.Discarded}}</div></div>

  <h3>Points</h3>
  {{- range .Points}}
  <blockquote>
    <p>{{.Paragraph}}</p>
    <cite><a href="{{.Source}}">{{.SourceName}}</a></cite>
  </blockquote>
  {{- else}}
  <p>No points found.</p>
  {{- end}}
</body>
</html>
`
	t, err := htmltemplate.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse html template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}

	return nil
}

// csvHeaders defines the CSV column order
var csvHeaders = []string{"index", "source_name", "source", "paragraph"}

// WriteCSV writes one row per result point.
func WriteCSV(w io.Writer, summary *Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, p := range summary.Points {
		if err := cw.Write([]string{fmt.Sprint(i + 1), p.SourceName, p.Source, p.Paragraph}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func inc(i int) int { return i + 1 }
