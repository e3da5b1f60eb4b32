// Package normalizers provides named string normalizers for names and domains
package normalizers

import (
	"regexp"
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("website", NormalizeWebsite)
	Register("strip_corporate_suffix", StripCorporateSuffixes)
	Register("strip_web_artifacts", StripWebArtifacts)
	Register("title_case", TitleCase)
	Register("match_key", MatchKey)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names leave the value unchanged.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

var spaceRe = regexp.MustCompile(`\s+`)

// CollapseWhitespace trims and reduces internal whitespace runs to one space
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// MatchKey is the comparison form used by similarity scoring
func MatchKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeWebsite reduces a URL to its lowercase host without scheme, www prefix or path.
// The result is stable under re-application.
func NormalizeWebsite(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, scheme := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, scheme)
	}
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// corporateSuffixes are stripped when they are the trailing word of a name
var corporateSuffixes = map[string]struct{}{
	"ltd": {}, "limited": {}, "inc": {}, "incorporated": {}, "corp": {}, "corporation": {},
	"llc": {}, "l.l.c": {}, "gmbh": {}, "sa": {}, "s.a": {}, "bv": {}, "b.v": {}, "ag": {},
	"plc": {}, "pty": {}, "company": {}, "co": {}, "srl": {}, "sl": {}, "nv": {}, "n.v": {},
	"oy": {}, "ab": {}, "kg": {}, "llp": {}, "lp": {}, "sarl": {}, "sas": {}, "spa": {},
	"pte": {}, "pvt": {},
}

// IsCorporateSuffix reports whether word (any case, trailing dots ignored) is a legal-form suffix
func IsCorporateSuffix(word string) bool {
	_, ok := corporateSuffixes[strings.TrimRight(strings.ToLower(word), ".")]
	return ok
}

// StripCorporateSuffixes repeatedly removes a trailing corporate-form word, keeping the case of the rest
func StripCorporateSuffixes(s string) string {
	words := strings.Fields(s)
	for len(words) > 1 {
		last := strings.TrimRight(words[len(words)-1], ",")
		if !IsCorporateSuffix(last) {
			break
		}
		words = words[:len(words)-1]
		words[len(words)-1] = strings.TrimRight(words[len(words)-1], ",")
	}
	return strings.Join(words, " ")
}

// webArtifacts are removed anywhere in an entity name. Longer artifacts come first.
var webArtifacts = []string{
	"https://", "http://", "www.", ".co.uk", ".com", ".net", ".org", ".io", ".travel",
}

// StripWebArtifacts removes URL fragments that leak into company names
func StripWebArtifacts(s string) string {
	for _, artifact := range webArtifacts {
		s = strings.ReplaceAll(s, artifact, "")
	}
	return s
}

// TitleCase upper-cases the first letter of each word and lower-cases the rest
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		runes := []rune(strings.ToLower(word))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
