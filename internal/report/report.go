// Package report summarizes the exchange audit trail.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/template"
	"time"

	"github.com/FranksOps/partscout/internal/storage"
)

// VendorSummary aggregates the exchanges of one vendor.
type VendorSummary struct {
	Vendor      string         `json:"vendor"`
	Requests    int            `json:"requests"`
	Degraded    int            `json:"degraded"`
	Detections  int            `json:"detections"`
	Bytes       int64          `json:"bytes"`
	ByOperation map[string]int `json:"by_operation"`
	// AvgDuration covers completed calls only.
	AvgDuration time.Duration `json:"avg_duration"`

	completed int
	total     time.Duration
}

// Summary aggregates a set of exchanges.
type Summary struct {
	TotalRequests   int             `json:"total_requests"`
	TotalDegraded   int             `json:"total_degraded"`
	TotalDetections int             `json:"total_detections"`
	StatusCodes     map[int]int     `json:"status_codes"`
	DetectionsBySrc map[string]int  `json:"detections_by_src"`
	TotalBytes      int64           `json:"total_bytes"`
	Vendors         []VendorSummary `json:"vendors"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	Duration        time.Duration   `json:"duration"`
}

// GenerateSummary folds exchanges into a Summary. Vendors are sorted by name.
func GenerateSummary(exchanges []*storage.Exchange) Summary {
	s := Summary{
		StatusCodes:     make(map[int]int),
		DetectionsBySrc: make(map[string]int),
		Vendors:         []VendorSummary{},
	}
	if len(exchanges) == 0 {
		return s
	}

	s.StartTime = exchanges[0].CreatedAt
	s.EndTime = exchanges[0].CreatedAt
	byVendor := make(map[string]*VendorSummary)

	for _, e := range exchanges {
		v, ok := byVendor[e.Vendor]
		if !ok {
			v = &VendorSummary{Vendor: e.Vendor, ByOperation: make(map[string]int)}
			byVendor[e.Vendor] = v
		}

		s.TotalRequests++
		v.Requests++
		v.ByOperation[e.Operation]++
		if e.Error != "" {
			s.TotalDegraded++
			v.Degraded++
		} else {
			v.completed++
			v.total += e.Duration
		}
		if e.DetectedBot {
			s.TotalDetections++
			v.Detections++
			s.DetectionsBySrc[e.DetectionSrc]++
		}
		if e.Status > 0 {
			s.StatusCodes[e.Status]++
		}
		s.TotalBytes += e.Bytes
		v.Bytes += e.Bytes

		if e.CreatedAt.Before(s.StartTime) {
			s.StartTime = e.CreatedAt
		}
		if e.CreatedAt.After(s.EndTime) {
			s.EndTime = e.CreatedAt
		}
	}

	for _, v := range byVendor {
		if v.completed > 0 {
			v.AvgDuration = v.total / time.Duration(v.completed)
		}
		s.Vendors = append(s.Vendors, *v)
	}
	sort.Slice(s.Vendors, func(i, j int) bool { return s.Vendors[i].Vendor < s.Vendors[j].Vendor })

	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// WriteJSON writes the summary as indented JSON.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: encode: %w", err)
	}
	return nil
}

const textTmpl = `Vendor Exchange Summary
-----------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Total Calls:   {{.TotalRequests}} requests
Total Bytes:   {{.TotalBytes}} bytes
Degraded:      {{.TotalDegraded}}

Vendors:
{{- range .Vendors}}
  {{.Vendor}}: {{.Requests}} calls, {{.Degraded}} degraded, {{.Detections}} detections, avg {{.AvgDuration}}
  {{- range $op, $count := .ByOperation}}
    {{$op}}: {{$count}}
  {{- end}}
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
`

var textReport = template.Must(template.New("textReport").Parse(textTmpl))

// WriteText writes a human-readable summary.
func WriteText(w io.Writer, summary Summary) error {
	if err := textReport.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render: %w", err)
	}
	return nil
}
