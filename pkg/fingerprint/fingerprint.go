// Package fingerprint derives stable identities for source rows
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Generate is the SHA256 of the canonical JSON form of data
func Generate(data map[string]any) string {
	hash := sha256.Sum256([]byte(canonicalize(data)))
	return hex.EncodeToString(hash[:])
}

// ForRow fingerprints the identity of a sanitized row: who operates it, what it is called, where it
// lives and what kind of node it is. Notes, tags and list fields do not change the fingerprint.
func ForRow(row models.SanitizedRow) string {
	return Generate(map[string]any{
		"entity_name": normalizers.MatchKey(row.EntityName),
		"node_name":   normalizers.MatchKey(row.NodeName),
		"website":     normalizers.NormalizeWebsite(row.Website),
		"category":    string(row.Category),
		"direction":   string(row.Direction),
	})
}

// HasChanged reports whether two fingerprints differ
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}

func canonicalize(data any) string {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			key, _ := json.Marshal(k)
			parts = append(parts, string(key)+":"+canonicalize(v[k]))
		}
		return "{" + strings.Join(parts, ",") + "}"
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, canonicalize(item))
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
