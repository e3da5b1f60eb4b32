package matching

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func newTestEngine() *Engine {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewEngine(logger, DefaultConfig())
}

func TestEngine_Analyze_NoMatches(t *testing.T) {
	engine := newTestEngine()
	row := models.SanitizedRow{RowNumber: 2, NodeName: "Opera PMS", EntityName: "Oracle Hospitality", Category: models.NodeCategoryPMS}

	t.Run("empty registry", func(t *testing.T) {
		result := engine.Analyze(context.Background(), "stg-1", row, &models.RegistrySnapshot{})

		assert.Equal(t, "stg-1", result.StagingID)
		assert.Equal(t, 2, result.RowNumber)
		assert.False(t, result.HasDuplicates)
		assert.Empty(t, result.Matches)
		assert.Equal(t, 1.0, result.OverallConfidence)
		assert.Equal(t, models.SuggestedCreateNew, result.SuggestedAction)
	})

	t.Run("nil snapshot", func(t *testing.T) {
		result := engine.Analyze(context.Background(), "stg-1", row, nil)
		assert.False(t, result.HasDuplicates)
		assert.Equal(t, models.SuggestedCreateNew, result.SuggestedAction)
	})

	t.Run("category alone is not a match", func(t *testing.T) {
		snapshot := &models.RegistrySnapshot{
			Nodes: []models.Node{{ID: "n1", Name: "SiteMinder", EntityName: "SiteMinder", Category: models.NodeCategoryPMS}},
		}
		result := engine.Analyze(context.Background(), "stg-1", row, snapshot)
		assert.False(t, result.HasDuplicates)
	})
}

func TestEngine_Analyze_ExactEntity(t *testing.T) {
	engine := newTestEngine()
	row := models.SanitizedRow{NodeName: "Cloudbeds", EntityName: "Cloudbeds", Website: "cloudbeds.com"}
	snapshot := &models.RegistrySnapshot{
		Entities: []models.Entity{{ID: "e1", Name: "Cloudbeds", Website: "https://www.cloudbeds.com"}},
	}

	result := engine.Analyze(context.Background(), "stg-1", row, snapshot)

	require.True(t, result.HasDuplicates)
	require.Len(t, result.Matches, 1)

	match := result.Matches[0]
	assert.Equal(t, models.MatchTarget{Kind: models.MatchKindEntity, ID: "e1", Name: "Cloudbeds"}, match.Target)
	assert.InDelta(t, 0.96, match.Score, 0.0001)
	assert.Equal(t, models.ConfidenceHigh, match.Confidence)
	assert.Equal(t, models.RecommendedMerge, match.RecommendedAction)
	assert.Equal(t, []string{"entity_name_match_100%", "exact_domain_match", "shared_domain"}, match.Reasons)

	assert.InDelta(t, 0.864, result.OverallConfidence, 0.0001)
	assert.Equal(t, models.SuggestedMergeExisting, result.SuggestedAction)
}

func TestEngine_ScoreEntity(t *testing.T) {
	engine := newTestEngine()

	t.Run("alternate name", func(t *testing.T) {
		row := models.SanitizedRow{EntityName: "Siteminder"}
		entity := models.Entity{ID: "e1", Name: "SiteMinder Hospitality", AlternateNames: []string{"siteminder"}}

		score, reasons := engine.ScoreEntity(row, entity)
		assert.Equal(t, 1.0, score)
		assert.Equal(t, []string{"alternate_name_match_100%"}, reasons)
	})

	t.Run("similar domain only", func(t *testing.T) {
		row := models.SanitizedRow{EntityName: "Acme", Website: "cloudbeds.com"}
		entity := models.Entity{ID: "e1", Name: "Something Else", Website: "cloudbed.com"}

		score, reasons := engine.ScoreEntity(row, entity)
		assert.InDelta(t, 1.0-1.0/13.0, score, 0.0001)
		assert.Equal(t, []string{"domain_similarity_92%"}, reasons)
	})

	t.Run("nothing in common", func(t *testing.T) {
		row := models.SanitizedRow{EntityName: "Mews"}
		entity := models.Entity{ID: "e1", Name: "Amadeus"}

		score, reasons := engine.ScoreEntity(row, entity)
		assert.Equal(t, 0.0, score)
		assert.Empty(t, reasons)
	})
}

func TestEngine_ScoreNode(t *testing.T) {
	engine := newTestEngine()
	row := models.SanitizedRow{
		NodeName:   "Opera PMS",
		EntityName: "Oracle Hospitality",
		Category:   models.NodeCategoryPMS,
		Direction:  models.DirectionSupply,
	}

	t.Run("all signals", func(t *testing.T) {
		node := models.Node{ID: "n1", Name: "Opera PMS", EntityName: "Oracle Hospitality", Category: models.NodeCategoryPMS, Direction: models.DirectionSupply}

		score, reasons := engine.ScoreNode(row, node)
		assert.Equal(t, 1.0, score)
		assert.Equal(t, []string{"node_name_match_100%", "entity_name_match_100%", "category_match", "direction_match"}, reasons)
	})

	t.Run("alias with different category", func(t *testing.T) {
		node := models.Node{ID: "n1", Name: "OPERA Cloud", EntityName: "Micros", Aliases: []string{"Opera PMS"}, Category: models.NodeCategoryCRS}

		score, reasons := engine.ScoreNode(row, node)
		assert.Equal(t, 1.0, score)
		assert.Equal(t, []string{"alias_match_100%"}, reasons)
	})
}

func TestEngine_Analyze_TruncatesAndDamps(t *testing.T) {
	engine := newTestEngine()
	row := models.SanitizedRow{EntityName: "Cloudbeds"}

	snapshot := &models.RegistrySnapshot{}
	for i := 0; i < 7; i++ {
		snapshot.Entities = append(snapshot.Entities, models.Entity{ID: fmt.Sprintf("e%d", i), Name: "Cloudbeds"})
	}

	result := engine.Analyze(context.Background(), "stg-1", row, snapshot)

	assert.Len(t, result.Matches, 5)
	assert.InDelta(t, 0.5, result.OverallConfidence, 0.0001)
	assert.Equal(t, models.SuggestedManualReview, result.SuggestedAction)
}

func TestEngine_Analyze_SharedDomainNode(t *testing.T) {
	engine := newTestEngine()
	row := models.SanitizedRow{NodeName: "Mews Channel", EntityName: "Mews", Website: "mews.com"}
	snapshot := &models.RegistrySnapshot{
		Nodes: []models.Node{{ID: "n1", Name: "Mews Channel", EntityName: "Nordic Holdings", Website: "http://mews.com/en"}},
	}

	result := engine.Analyze(context.Background(), "stg-1", row, snapshot)

	require.Len(t, result.Matches, 1)
	assert.Equal(t, models.MatchKindNode, result.Matches[0].Target.Kind)
	assert.Contains(t, result.Matches[0].Reasons, "shared_domain")
	assert.Contains(t, result.Matches[0].Reasons, "node_name_match_100%")
	assert.Equal(t, 1.0, result.Matches[0].Score)
}

func TestEngine_LookupFailed(t *testing.T) {
	engine := newTestEngine()

	result := engine.LookupFailed("stg-9", 4, errors.New("connection refused"))

	assert.True(t, result.LookupFailed)
	assert.False(t, result.HasDuplicates)
	assert.Equal(t, models.SuggestedManualReview, result.SuggestedAction)
	assert.Contains(t, result.Warning, "connection refused")
	assert.Equal(t, 4, result.RowNumber)
}

func TestOverallConfidence(t *testing.T) {
	assert.Equal(t, 1.0, OverallConfidence(nil))

	matches := []models.DuplicateMatch{{Score: 0.9}, {Score: 0.7}}
	assert.InDelta(t, 0.64, OverallConfidence(matches), 0.0001)

	many := make([]models.DuplicateMatch, 11)
	for i := range many {
		many[i].Score = 1
	}
	assert.Equal(t, 0.0, OverallConfidence(many))
}

func TestEngine_SuggestAction(t *testing.T) {
	engine := newTestEngine()
	strong := models.DuplicateMatch{Score: 0.97, Confidence: models.ConfidenceHigh, RecommendedAction: models.RecommendedMerge}
	medium := models.DuplicateMatch{Score: 0.8, Confidence: models.ConfidenceMedium, RecommendedAction: models.RecommendedReview}

	assert.Equal(t, models.SuggestedCreateNew, engine.SuggestAction(nil, 1.0))
	assert.Equal(t, models.SuggestedMergeExisting, engine.SuggestAction([]models.DuplicateMatch{strong}, 0.87))
	assert.Equal(t, models.SuggestedManualReview, engine.SuggestAction([]models.DuplicateMatch{strong}, 0.8))
	assert.Equal(t, models.SuggestedManualReview, engine.SuggestAction([]models.DuplicateMatch{medium}, 0.9))
}
