// Package sanitizer turns validated upload rows into typed, normalized staging candidates
package sanitizer

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/fern/pkg/csvparse"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

var entityNameChain = []string{
	"lowercase",
	"trim",
	"strip_corporate_suffix",
	"strip_web_artifacts",
	"collapse_whitespace",
	"strip_corporate_suffix",
	"title_case",
}

var listSeparators = regexp.MustCompile(`[,;|]`)

// SanitizeRow converts one validated row into its typed form
func SanitizeRow(row csvparse.Row) models.SanitizedRow {
	notes := row.Get(csvparse.ColumnNotes)

	return models.SanitizedRow{
		RowNumber:      row.Line,
		NodeName:       SanitizeNodeName(row.Get(csvparse.ColumnNodeName)),
		EntityName:     SanitizeEntityName(row.Get(csvparse.ColumnEntityName)),
		Website:        normalizers.NormalizeWebsite(row.Get(csvparse.ColumnWebsite)),
		Category:       models.NodeCategory(row.Get(csvparse.ColumnNodeCategory)),
		Direction:      models.Direction(row.Get(csvparse.ColumnDirection)),
		ConnectTargets: SplitList(row.Get(csvparse.ColumnConnectTargets)),
		Protocols:      ParseProtocols(row.Get(csvparse.ColumnProtocols)),
		DataTypes:      ParseDataTypes(row.Get(csvparse.ColumnDataTypes)),
		Notes:          notes,
		Tags:           ExtractTags(notes),
		Raw:            copyFields(row.Fields),
	}
}

// SanitizeEntityName produces the canonical, title-cased company name
func SanitizeEntityName(name string) string {
	sanitized := normalizers.ApplyChain(name, entityNameChain...)
	if sanitized == "" {
		return normalizers.CollapseWhitespace(name)
	}
	return sanitized
}

// SanitizeNodeName strips trailing corporate forms but keeps the original casing
func SanitizeNodeName(name string) string {
	return normalizers.StripCorporateSuffixes(normalizers.CollapseWhitespace(name))
}

// SplitList splits on comma, semicolon or pipe and drops empty tokens
func SplitList(value string) []string {
	parts := listSeparators.Split(value, -1)
	parts = ectolinq.Map(parts, strings.TrimSpace)
	return ectolinq.Filter(parts, func(p string) bool { return p != "" })
}

// ParseProtocols keeps only tokens that are members of the protocol enum
func ParseProtocols(value string) []models.Protocol {
	tokens := ectolinq.Map(SplitList(value), func(s string) models.Protocol { return models.Protocol(s) })
	return dedupe(ectolinq.Filter(tokens, models.Protocol.IsValid))
}

// ParseDataTypes keeps only tokens that are members of the data type enum
func ParseDataTypes(value string) []models.DataType {
	tokens := ectolinq.Map(SplitList(value), func(s string) models.DataType { return models.DataType(s) })
	return dedupe(ectolinq.Filter(tokens, models.DataType.IsValid))
}

var (
	keywordRe      = regexp.MustCompile(`(?i)\b(pms|crs|channel manager|booking engine|ota|api|xml|json|soap|rest)\b`)
	countRe        = regexp.MustCompile(`(?i)\b(\d[\d,]*)\s*\+?\s*(hotels?|properties|property|rooms?)\b`)
	connectivityRe = regexp.MustCompile(`(?i)\b(connected to|integrates with|partners with)\s+([a-z0-9][a-z0-9&' \-]*(?:\.[a-z0-9]+)*)`)
)

// ExtractTags finds technology keywords, size mentions and partner phrases in free-text notes
func ExtractTags(notes string) []string {
	tags := make([]string, 0)

	for _, m := range keywordRe.FindAllStringSubmatch(notes, -1) {
		tags = append(tags, strings.ToLower(m[1]))
	}

	for _, m := range countRe.FindAllStringSubmatch(notes, -1) {
		count := strings.ReplaceAll(m[1], ",", "")
		tags = append(tags, count+" "+pluralUnit(strings.ToLower(m[2])))
	}

	for _, m := range connectivityRe.FindAllStringSubmatch(notes, -1) {
		target := strings.TrimSpace(m[2])
		if i := strings.Index(strings.ToLower(target), " and "); i >= 0 {
			target = target[:i]
		}
		if target == "" {
			continue
		}
		tags = append(tags, strings.ToLower(m[1])+" "+strings.ToLower(target))
	}

	return dedupe(tags)
}

func pluralUnit(unit string) string {
	switch unit {
	case "hotel":
		return "hotels"
	case "property":
		return "properties"
	case "room":
		return "rooms"
	}
	return unit
}

// ConfidenceScore is the advisory per-row quality score shown to reviewers
func ConfidenceScore(row models.SanitizedRow, hasDuplicates bool) float64 {
	score := 1.0
	if hasDuplicates {
		score -= 0.3
	}
	if strings.Contains(row.Website, ".") {
		score += 0.1
	}
	if utf8.RuneCountInString(row.EntityName) > 3 && !strings.Contains(strings.ToLower(row.EntityName), "unknown") {
		score += 0.1
	}
	score += 0.05 * float64(min(len(row.Tags), 4))

	return max(0, min(1, score))
}

func dedupe[T comparable](values []T) []T {
	seen := make(map[T]struct{}, len(values))
	out := make([]T, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func copyFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
