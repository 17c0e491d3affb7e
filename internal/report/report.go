package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/codescout/internal/serp"
	"github.com/FranksOps/codescout/internal/storage"
)

// Summary contains aggregated metrics about the requests of one or more runs.
type Summary struct {
	TotalRequests   int
	TotalDegraded   int
	TotalDetections int
	ByStage         map[storage.Stage]int
	ByOutcome       map[storage.Outcome]int
	StatusCodes     map[int]int
	DetectionsBySrc map[string]int
	TotalBytes      int64
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}

// GenerateSummary folds a slice of fetch records into summary metrics.
func GenerateSummary(records []*storage.FetchRecord) Summary {
	s := Summary{
		ByStage:         make(map[storage.Stage]int),
		ByOutcome:       make(map[storage.Outcome]int),
		StatusCodes:     make(map[int]int),
		DetectionsBySrc: make(map[string]int),
	}

	if len(records) == 0 {
		return s
	}

	s.StartTime = records[0].CreatedAt
	s.EndTime = records[0].CreatedAt

	for _, r := range records {
		s.TotalRequests++
		s.ByStage[r.Stage]++
		s.ByOutcome[r.Outcome]++
		if r.Outcome.Degraded() {
			s.TotalDegraded++
		}
		if r.DetectedBot {
			s.TotalDetections++
			s.DetectionsBySrc[r.DetectionSrc]++
		}
		if r.StatusCode > 0 {
			s.StatusCodes[r.StatusCode]++
		}
		s.TotalBytes += r.Bytes

		if r.CreatedAt.Before(s.StartTime) {
			s.StartTime = r.CreatedAt
		}
		if r.CreatedAt.After(s.EndTime) {
			s.EndTime = r.CreatedAt
		}
	}

	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

var summaryTmpl = template.Must(template.New("summary").Parse(`codescout Fetch Summary
-----------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Total Fetch:   {{.TotalRequests}} requests
Total Bytes:   {{.TotalBytes}} bytes
Degraded:      {{.TotalDegraded}}

Stages:
{{- range $stage, $count := .ByStage}}
  {{$stage}}: {{$count}}
{{- else}}
  None
{{- end}}

Outcomes:
{{- range $outcome, $count := .ByOutcome}}
  {{$outcome}}: {{$count}}
{{- else}}
  None
{{- end}}

Status Codes:
{{- range $code, $count := .StatusCodes}}
  {{$code}}: {{$count}}
{{- else}}
  None
{{- end}}

Detections: {{.TotalDetections}}
{{- range $src, $count := .DetectionsBySrc}}
  {{$src}}: {{$count}}
{{- else}}
  None
{{- end}}
`))

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	if err := summaryTmpl.Execute(w, summary); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	return nil
}

// WriteResultsJSON writes results as a JSON array indented by four spaces.
// Markup in snippets is written literally. A nil slice is written as [].
func WriteResultsJSON(w io.Writer, results []serp.SearchResult) error {
	if results == nil {
		results = []serp.SearchResult{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

// WriteResultsText writes a numbered console listing of results, one block
// per result separated by blank lines, with code snippets fenced.
func WriteResultsText(w io.Writer, results []serp.SearchResult) error {
	ew := &errWriter{w: w}
	if len(results) == 0 {
		ew.printf("No results found.\n")
		return ew.err
	}
	for i, r := range results {
		if i > 0 {
			ew.printf("\n")
		}
		ew.printf("%d. %s\n   %s\n   %s\n", i+1, r.Title, r.Link, r.Snippet)
		if len(r.CodeSnippets) == 0 {
			continue
		}
		ew.printf("   Extracted Code:\n")
		for _, code := range r.CodeSnippets {
			ew.printf("   ```\n%s\n   ```\n", code)
		}
	}
	return ew.err
}

// errWriter keeps the first write error and drops later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	if _, err := fmt.Fprintf(e.w, format, args...); err != nil {
		e.err = fmt.Errorf("write results: %w", err)
	}
}
