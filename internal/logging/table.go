// Package logging builds the zap logger and writes per-file mastering reports.
//
// This file holds the aligned comparison table used by the report
// (Input → Rough → Final).
package logging

import (
	"fmt"
	"math"
	"strings"
)

// MetricRow is one labelled row of pre-formatted values.
type MetricRow struct {
	Label  string
	Values []string // one per header
	Unit   string
	Note   string // optional trailing comment
}

// MetricTable formats aligned columns for metric comparison.
type MetricTable struct {
	Headers []string
	Rows    []MetricRow
}

// String renders the table. Labels are left-aligned, values right-aligned,
// units follow the last value column and the note column only appears when a
// row has one.
func (t *MetricTable) String() string {
	if len(t.Rows) == 0 {
		return ""
	}

	hasNote := false
	labelWidth, unitWidth := 0, 0
	valueWidths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		valueWidths[i] = len(h)
	}
	for _, row := range t.Rows {
		hasNote = hasNote || row.Note != ""
		labelWidth = max(labelWidth, len(row.Label))
		unitWidth = max(unitWidth, len(row.Unit))
		for i, v := range row.Values {
			if i < len(valueWidths) {
				valueWidths[i] = max(valueWidths[i], len(v))
			}
		}
	}

	var sb strings.Builder

	sb.WriteString(strings.Repeat(" ", labelWidth+2))
	for i, h := range t.Headers {
		fmt.Fprintf(&sb, "%*s  ", valueWidths[i], h)
	}
	if hasNote {
		sb.WriteString(strings.Repeat(" ", unitWidth+1))
		sb.WriteString("Note")
	}
	sb.WriteString("\n")

	for _, row := range t.Rows {
		fmt.Fprintf(&sb, "%-*s  ", labelWidth, row.Label)
		for i := range t.Headers {
			val := MissingValue
			if i < len(row.Values) && row.Values[i] != "" {
				val = row.Values[i]
			}
			fmt.Fprintf(&sb, "%*s  ", valueWidths[i], val)
		}
		if unitWidth > 0 {
			fmt.Fprintf(&sb, "%-*s ", unitWidth, row.Unit)
		}
		if hasNote {
			sb.WriteString(row.Note)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// NewMetricTable creates a table with the Input/Rough/Final stage headers.
func NewMetricTable() *MetricTable {
	return &MetricTable{Headers: []string{"Input", "Rough", "Final"}}
}

// AddRow appends a row of pre-formatted values.
func (t *MetricTable) AddRow(label string, values []string, unit, note string) {
	t.Rows = append(t.Rows, MetricRow{Label: label, Values: values, Unit: unit, Note: note})
}

// AddLUFSRow appends loudness values; NaN marks a stage that was not measured.
func (t *MetricTable) AddLUFSRow(label string, input, rough, final float64, unit string) {
	t.AddRow(label, []string{
		formatMetricLUFS(input, 1),
		formatMetricLUFS(rough, 1),
		formatMetricLUFS(final, 1),
	}, unit, "")
}

// AddMetricRow appends plain numeric values.
func (t *MetricTable) AddMetricRow(label string, input, rough, final float64, decimals int, unit string) {
	t.AddRow(label, []string{
		formatMetric(input, decimals),
		formatMetric(rough, decimals),
		formatMetric(final, decimals),
	}, unit, "")
}

// MissingValue stands in for unavailable measurements.
const MissingValue = "-"

// LUFSMeasurementFloor is the absolute gate of BS.1770; anything quieter reads as silence.
const LUFSMeasurementFloor = -70.0

// DigitalSilenceThreshold is the dBFS level treated as digital zero.
const DigitalSilenceThreshold = -120.0

// formatMetric formats a value, switching to scientific notation for tiny
// non-zero values. NaN and ±Inf are missing.
func formatMetric(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return MissingValue
	}
	if value != 0 && math.Abs(value) < 0.0001 {
		return fmt.Sprintf("%.2e", value)
	}
	return fmt.Sprintf("%.*f", decimals, value)
}

// formatMetricLUFS shows "< -70" below the gate, including -Inf from silence.
func formatMetricLUFS(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 1) {
		return MissingValue
	}
	if value < LUFSMeasurementFloor {
		return "< -70"
	}
	return fmt.Sprintf("%.*f", decimals, value)
}

// formatMetricDB shows "< -120" for digital silence.
func formatMetricDB(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 1) {
		return MissingValue
	}
	if math.IsInf(value, -1) || value <= DigitalSilenceThreshold {
		return "< -120"
	}
	return fmt.Sprintf("%.*f", decimals, value)
}

// formatMetricSigned always prints the sign, for gains.
func formatMetricSigned(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return MissingValue
	}
	return fmt.Sprintf("%+.*f", decimals, value)
}
