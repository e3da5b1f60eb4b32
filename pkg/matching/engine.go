// Package matching scores staged rows against the committed registry to find likely duplicates
package matching

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// EngineConfig contains the thresholds and weights of every matching signal
type EngineConfig struct {
	EntityNameThreshold       float64 // minimum entity-name similarity to count (default: 0.75)
	EntityNameWeight          float64
	AlternateNameWeight       float64
	ExactDomainScore          float64 // fixed contribution of an exact domain match (default: 0.9)
	ExactDomainWeight         float64
	DomainSimilarityThreshold float64 // domain similarity must exceed this to count (default: 0.8)
	DomainSimilarityWeight    float64

	NodeNameThreshold       float64
	NodeNameWeight          float64
	NodeEntityNameThreshold float64
	NodeEntityNameWeight    float64
	CategoryWeight          float64
	DirectionWeight         float64
	AliasThreshold          float64
	AliasWeight             float64

	DomainClusterDomainShare float64
	DomainClusterNameShare   float64

	MinConfidence          float64 // matches below this are dropped (default: 0.6)
	MaxMatches             int     // matches kept per row (default: 5)
	MergeExistingThreshold float64 // overall confidence required to suggest merge_existing (default: 0.8)
}

// DefaultConfig returns default engine configuration
func DefaultConfig() EngineConfig {
	return EngineConfig{
		EntityNameThreshold:       0.75,
		EntityNameWeight:          0.6,
		AlternateNameWeight:       0.5,
		ExactDomainScore:          0.9,
		ExactDomainWeight:         0.4,
		DomainSimilarityThreshold: 0.8,
		DomainSimilarityWeight:    0.3,

		NodeNameThreshold:       0.80,
		NodeNameWeight:          0.4,
		NodeEntityNameThreshold: 0.75,
		NodeEntityNameWeight:    0.3,
		CategoryWeight:          0.2,
		DirectionWeight:         0.1,
		AliasThreshold:          0.80,
		AliasWeight:             0.3,

		DomainClusterDomainShare: 0.7,
		DomainClusterNameShare:   0.3,

		MinConfidence:          0.6,
		MaxMatches:             5,
		MergeExistingThreshold: 0.8,
	}
}

// Engine implements duplicate detection for staged rows
type Engine struct {
	logger ectologger.Logger
	config EngineConfig
}

// NewEngine creates a new match engine
func NewEngine(logger ectologger.Logger, config EngineConfig) *Engine {
	return &Engine{
		logger: logger,
		config: config,
	}
}

// Config returns the engine's thresholds
func (e *Engine) Config() EngineConfig {
	return e.config
}

// Analyze scores row against the registry snapshot and builds the reviewer-facing result
func (e *Engine) Analyze(ctx context.Context, stagingID string, row models.SanitizedRow, snapshot *models.RegistrySnapshot) models.DeduplicationResult {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Analyze")
	defer span.End()

	matches := e.FindMatches(ctx, row, snapshot)
	overall := OverallConfidence(matches)

	result := models.DeduplicationResult{
		StagingID:         stagingID,
		RowNumber:         row.RowNumber,
		HasDuplicates:     len(matches) > 0,
		Matches:           matches,
		OverallConfidence: overall,
		SuggestedAction:   e.SuggestAction(matches, overall),
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"staging_id":       stagingID,
		"row":              row.RowNumber,
		"match_count":      len(matches),
		"suggested_action": result.SuggestedAction,
	}).Debug("Analyzed staging row for duplicates")

	return result
}

// LookupFailed is the result for a row whose registry lookup could not complete. It is flagged
// for manual review rather than reported as unique.
func (e *Engine) LookupFailed(stagingID string, rowNumber int, err error) models.DeduplicationResult {
	return models.DeduplicationResult{
		StagingID:         stagingID,
		RowNumber:         rowNumber,
		HasDuplicates:     false,
		Matches:           []models.DuplicateMatch{},
		OverallConfidence: 0,
		SuggestedAction:   models.SuggestedManualReview,
		LookupFailed:      true,
		Warning:           fmt.Sprintf("duplicate lookup failed: %v", err),
	}
}

// FindMatches pools the entity, node and shared-domain passes, keeps the best score per target,
// sorts descending, truncates to MaxMatches and drops matches under MinConfidence.
func (e *Engine) FindMatches(ctx context.Context, row models.SanitizedRow, snapshot *models.RegistrySnapshot) []models.DuplicateMatch {
	_, span := tracing.StartSpan(ctx, "matching.Engine.FindMatches")
	defer span.End()

	if snapshot == nil {
		return []models.DuplicateMatch{}
	}

	pool := newMatchPool()
	for _, entity := range snapshot.Entities {
		if score, reasons := e.ScoreEntity(row, entity); score > 0 {
			pool.add(models.EntityTarget(entity), score, reasons)
		}
	}
	for _, node := range snapshot.Nodes {
		if score, reasons := e.ScoreNode(row, node); score > 0 {
			pool.add(models.NodeTarget(node), score, reasons)
		}
	}
	e.clusterByDomain(row, snapshot, pool)

	matches := pool.sorted()
	if e.config.MaxMatches > 0 && len(matches) > e.config.MaxMatches {
		matches = matches[:e.config.MaxMatches]
	}

	qualifying := make([]models.DuplicateMatch, 0, len(matches))
	for _, m := range matches {
		if m.Score < e.config.MinConfidence {
			continue
		}
		m.Confidence = ConfidenceLevelFor(m.Score)
		m.RecommendedAction = RecommendedActionFor(m.Score)
		qualifying = append(qualifying, m)
	}
	return qualifying
}

// ScoreEntity combines canonical-name, alternate-name and domain signals
func (e *Engine) ScoreEntity(row models.SanitizedRow, entity models.Entity) (float64, []string) {
	cfg := e.config
	signals := make([]signal, 0, 3)

	if s := Similarity(row.EntityName, entity.Name); s >= cfg.EntityNameThreshold {
		signals = append(signals, signal{score: s, weight: cfg.EntityNameWeight, reason: percentReason("entity_name_match", s)})
	}

	if s := BestSimilarity(row.EntityName, entity.AlternateNames); s >= cfg.EntityNameThreshold {
		signals = append(signals, signal{score: s, weight: cfg.AlternateNameWeight, reason: percentReason("alternate_name_match", s)})
	}

	if domainSignal, ok := e.domainSignal(row.Website, entity.Website); ok {
		signals = append(signals, domainSignal)
	}

	return weightedScore(signals)
}

// ScoreNode combines node-name, entity-name, alias, category and direction signals. Category and
// direction only corroborate: they count once at least one name signal has fired.
func (e *Engine) ScoreNode(row models.SanitizedRow, node models.Node) (float64, []string) {
	cfg := e.config
	signals := make([]signal, 0, 5)

	if s := Similarity(row.NodeName, node.Name); s >= cfg.NodeNameThreshold {
		signals = append(signals, signal{score: s, weight: cfg.NodeNameWeight, reason: percentReason("node_name_match", s)})
	}
	if s := Similarity(row.EntityName, node.EntityName); s >= cfg.NodeEntityNameThreshold {
		signals = append(signals, signal{score: s, weight: cfg.NodeEntityNameWeight, reason: percentReason("entity_name_match", s)})
	}
	if s := BestSimilarity(row.NodeName, node.Aliases); s >= cfg.AliasThreshold {
		signals = append(signals, signal{score: s, weight: cfg.AliasWeight, reason: percentReason("alias_match", s)})
	}

	if len(signals) == 0 {
		return 0, nil
	}

	if row.Category != "" && row.Category == node.Category {
		signals = append(signals, signal{score: 1, weight: cfg.CategoryWeight, reason: "category_match"})
	}
	if row.Direction != "" && row.Direction == node.Direction {
		signals = append(signals, signal{score: 1, weight: cfg.DirectionWeight, reason: "direction_match"})
	}

	return weightedScore(signals)
}

func (e *Engine) domainSignal(rowWebsite, candidateWebsite string) (signal, bool) {
	a := normalizers.NormalizeWebsite(rowWebsite)
	b := normalizers.NormalizeWebsite(candidateWebsite)
	if a == "" || b == "" {
		return signal{}, false
	}

	if a == b {
		return signal{score: e.config.ExactDomainScore, weight: e.config.ExactDomainWeight, reason: "exact_domain_match"}, true
	}

	if s := Similarity(a, b); s > e.config.DomainSimilarityThreshold {
		return signal{score: s, weight: e.config.DomainSimilarityWeight, reason: percentReason("domain_similarity", s)}, true
	}

	return signal{}, false
}

// clusterByDomain adds every record sharing the row's normalized domain
func (e *Engine) clusterByDomain(row models.SanitizedRow, snapshot *models.RegistrySnapshot, pool *matchPool) {
	domain := normalizers.NormalizeWebsite(row.Website)
	if domain == "" {
		return
	}

	clusterScore := func(nameSimilarity float64) float64 {
		return clamp(e.config.DomainClusterDomainShare*e.config.ExactDomainScore + e.config.DomainClusterNameShare*nameSimilarity)
	}

	for _, entity := range snapshot.Entities {
		if normalizers.NormalizeWebsite(entity.Website) != domain {
			continue
		}
		if score := clusterScore(Similarity(row.EntityName, entity.Name)); score >= e.config.MinConfidence {
			pool.add(models.EntityTarget(entity), score, []string{"shared_domain"})
		}
	}

	for _, node := range snapshot.Nodes {
		if normalizers.NormalizeWebsite(node.Website) != domain {
			continue
		}
		if score := clusterScore(Similarity(row.NodeName, node.Name)); score >= e.config.MinConfidence {
			pool.add(models.NodeTarget(node), score, []string{"shared_domain"})
		}
	}
}

// OverallConfidence is the mean match score damped by 10% per match. No matches means 1.0.
func OverallConfidence(matches []models.DuplicateMatch) float64 {
	if len(matches) == 0 {
		return 1.0
	}

	var sum float64
	for _, m := range matches {
		sum += m.Score
	}
	avg := sum / float64(len(matches))
	penalty := math.Max(0, 1-0.1*float64(len(matches)))

	return clamp(avg * penalty)
}

// SuggestAction picks create_new, merge_existing or manual_review for a row
func (e *Engine) SuggestAction(matches []models.DuplicateMatch, overall float64) models.SuggestedAction {
	if len(matches) == 0 {
		return models.SuggestedCreateNew
	}

	hasHigh, hasMerge := false, false
	for _, m := range matches {
		if m.Confidence == models.ConfidenceHigh {
			hasHigh = true
		}
		if m.RecommendedAction == models.RecommendedMerge {
			hasMerge = true
		}
	}

	if hasHigh && hasMerge && overall > e.config.MergeExistingThreshold {
		return models.SuggestedMergeExisting
	}
	return models.SuggestedManualReview
}

func percentReason(prefix string, score float64) string {
	return fmt.Sprintf("%s_%d%%", prefix, int(math.Round(score*100)))
}

// matchPool keeps the best score per target and the union of reasons
type matchPool struct {
	order   []string
	matches map[string]*models.DuplicateMatch
}

func newMatchPool() *matchPool {
	return &matchPool{matches: make(map[string]*models.DuplicateMatch)}
}

func (p *matchPool) add(target models.MatchTarget, score float64, reasons []string) {
	ref := target.Ref()
	existing, ok := p.matches[ref]
	if !ok {
		p.order = append(p.order, ref)
		p.matches[ref] = &models.DuplicateMatch{
			Target:  target,
			Score:   score,
			Reasons: append([]string{}, reasons...),
		}
		return
	}

	if score > existing.Score {
		existing.Score = score
	}
	for _, reason := range reasons {
		if !containsString(existing.Reasons, reason) {
			existing.Reasons = append(existing.Reasons, reason)
		}
	}
}

func (p *matchPool) sorted() []models.DuplicateMatch {
	out := make([]models.DuplicateMatch, 0, len(p.order))
	for _, ref := range p.order {
		out = append(out, *p.matches[ref])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
