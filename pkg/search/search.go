// Package search ranks registry records against a free-text query
package search

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/Ramsey-B/fern/pkg/models"
)

const DefaultLimit = 20

// Hit is one registry record matching a query
type Hit struct {
	Target    models.MatchTarget `json:"target"`
	MatchedOn string             `json:"matched_on"`
	Field     string             `json:"field"`
	Distance  int                `json:"distance"`
}

type candidate struct {
	target models.MatchTarget
	field  string
}

// Registry runs a fuzzy, case- and diacritic-insensitive search over entity names, alternate
// names, node names and aliases. Each record appears once at its best distance.
func Registry(snapshot *models.RegistrySnapshot, query string, limit int) []Hit {
	query = strings.TrimSpace(query)
	if snapshot == nil || query == "" {
		return []Hit{}
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	words := make([]string, 0)
	candidates := make([]candidate, 0)
	add := func(word string, c candidate) {
		if strings.TrimSpace(word) == "" {
			return
		}
		words = append(words, word)
		candidates = append(candidates, c)
	}

	for _, e := range snapshot.Entities {
		target := models.EntityTarget(e)
		add(e.Name, candidate{target: target, field: "name"})
		for _, alt := range e.AlternateNames {
			add(alt, candidate{target: target, field: "alternate_name"})
		}
	}
	for _, n := range snapshot.Nodes {
		target := models.NodeTarget(n)
		add(n.Name, candidate{target: target, field: "name"})
		for _, alias := range n.Aliases {
			add(alias, candidate{target: target, field: "alias"})
		}
	}

	ranks := fuzzy.RankFindNormalizedFold(query, words)
	sort.Sort(ranks)

	hits := make([]Hit, 0, len(ranks))
	seen := make(map[string]struct{}, len(ranks))
	for _, rank := range ranks {
		c := candidates[rank.OriginalIndex]
		ref := c.target.Ref()
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}

		hits = append(hits, Hit{
			Target:    c.target,
			MatchedOn: rank.Target,
			Field:     c.field,
			Distance:  rank.Distance,
		})
		if len(hits) == limit {
			break
		}
	}

	return hits
}
