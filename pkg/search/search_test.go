package search

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func snapshot() *models.RegistrySnapshot {
	return &models.RegistrySnapshot{
		Entities: []models.Entity{
			{ID: "e1", Name: "Cloudbeds", AlternateNames: pq.StringArray{"Cloudbeds Inc"}},
			{ID: "e2", Name: "SiteMinder"},
		},
		Nodes: []models.Node{
			{ID: "n1", Name: "Cloudbeds PMS", Aliases: pq.StringArray{"CB PMS"}},
			{ID: "n2", Name: "SiteMinder Channel Manager", Aliases: pq.StringArray{"SM CM"}},
		},
	}
}

func TestRegistry(t *testing.T) {
	tests := []struct {
		name  string
		query string
		limit int
		want  []string
	}{
		{name: "empty query", query: "  ", want: []string{}},
		{name: "case insensitive", query: "cloudbeds", want: []string{"entity:e1", "node:n1"}},
		{name: "subsequence", query: "smndr", want: []string{"entity:e2", "node:n2"}},
		{name: "alias", query: "cb pms", want: []string{"node:n1"}},
		{name: "limit", query: "cloudbeds", limit: 1, want: []string{"entity:e1"}},
		{name: "no hits", query: "expedia", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := Registry(snapshot(), tt.query, tt.limit)
			refs := make([]string, len(hits))
			for i, h := range hits {
				refs[i] = h.Target.Ref()
			}
			assert.Equal(t, tt.want, refs)
		})
	}
}

func TestRegistry_ReportsMatchedField(t *testing.T) {
	hits := Registry(snapshot(), "cb pms", 0)
	require.Len(t, hits, 1)
	assert.Equal(t, "alias", hits[0].Field)
	assert.Equal(t, "CB PMS", hits[0].MatchedOn)
}

func TestRegistry_NilSnapshot(t *testing.T) {
	assert.Empty(t, Registry(nil, "cloudbeds", 5))
}
