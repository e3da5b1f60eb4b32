// Package csvparse reads connectivity-node uploads. Lines are parsed one at a time; a double
// quote toggles quoted mode and commas inside quotes are literal.
package csvparse

import (
	"fmt"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Column names every upload must carry
const (
	ColumnNodeName       = "node_name"
	ColumnWebsite        = "website"
	ColumnEntityName     = "entity_name"
	ColumnNodeCategory   = "node_category"
	ColumnDirection      = "direction"
	ColumnNotes          = "notes"
	ColumnConnectTargets = "connect_targets"
	ColumnProtocols      = "protocols_supported"
	ColumnDataTypes      = "data_types_supported"
)

var RequiredHeaders = []string{
	ColumnNodeName,
	ColumnWebsite,
	ColumnEntityName,
	ColumnNodeCategory,
	ColumnDirection,
	ColumnNotes,
	ColumnConnectTargets,
	ColumnProtocols,
	ColumnDataTypes,
}

const utf8BOM = "\ufeff"

// Row is one data line keyed by header. Line is 1-indexed with the header on line 1.
type Row struct {
	Line   int
	Fields map[string]string
}

// Get returns the trimmed value of column, or "" when absent
func (r Row) Get(column string) string {
	return r.Fields[column]
}

// Result is the outcome of parsing one document
type Result struct {
	Headers []string
	Rows    []Row
	// Skipped holds the line numbers dropped because their field count did not match the header
	Skipped []int
}

// Parse splits text into header-keyed rows. It fails when the document has no data line or
// lacks a required header.
func Parse(text string) (*Result, error) {
	text = strings.TrimPrefix(text, utf8BOM)

	lines := make([]string, 0)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}

	if len(lines) < 2 {
		return nil, &models.ParseError{Reason: "CSV must contain a header row and at least one data row"}
	}

	headers := ParseLine(lines[0])
	if err := requireHeaders(headers); err != nil {
		return nil, err
	}

	result := &Result{
		Headers: headers,
		Rows:    make([]Row, 0, len(lines)-1),
	}

	for i, line := range lines[1:] {
		lineNumber := i + 2
		values := ParseLine(line)
		if len(values) != len(headers) {
			result.Skipped = append(result.Skipped, lineNumber)
			continue
		}

		fields := make(map[string]string, len(headers))
		for j, header := range headers {
			fields[header] = values[j]
		}
		result.Rows = append(result.Rows, Row{Line: lineNumber, Fields: fields})
	}

	return result, nil
}

// ParseLine splits one line into trimmed fields
func ParseLine(line string) []string {
	fields := make([]string, 0)
	var current strings.Builder
	inQuotes := false

	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))

	return fields
}

func requireHeaders(headers []string) error {
	present := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		present[h] = struct{}{}
	}

	missing := make([]string, 0)
	for _, required := range RequiredHeaders {
		if _, ok := present[required]; !ok {
			missing = append(missing, required)
		}
	}

	if len(missing) > 0 {
		return &models.ParseError{Reason: fmt.Sprintf("missing required headers: %s", strings.Join(missing, ", "))}
	}
	return nil
}
