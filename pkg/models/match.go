package models

// MatchKind identifies what a duplicate candidate refers to
type MatchKind string

const (
	MatchKindEntity  MatchKind = "entity"
	MatchKindNode    MatchKind = "node"
	MatchKindStaging MatchKind = "staging"
)

// MatchTarget references exactly one registry or staging record
type MatchTarget struct {
	Kind MatchKind `json:"kind"`
	ID   string    `json:"id"`
	Name string    `json:"name"`
}

func EntityTarget(e Entity) MatchTarget {
	return MatchTarget{Kind: MatchKindEntity, ID: e.ID, Name: e.Name}
}

func NodeTarget(n Node) MatchTarget {
	return MatchTarget{Kind: MatchKindNode, ID: n.ID, Name: n.Name}
}

func StagingTarget(s StagingNode) MatchTarget {
	return MatchTarget{Kind: MatchKindStaging, ID: s.ID, Name: s.NodeName}
}

// Ref is the "<kind>:<id>" form stored on staging rows
func (t MatchTarget) Ref() string {
	return string(t.Kind) + ":" + t.ID
}

type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

type RecommendedAction string

const (
	RecommendedMerge    RecommendedAction = "merge"
	RecommendedReview   RecommendedAction = "review"
	RecommendedSeparate RecommendedAction = "separate"
)

type SuggestedAction string

const (
	SuggestedCreateNew     SuggestedAction = "create_new"
	SuggestedMergeExisting SuggestedAction = "merge_existing"
	SuggestedManualReview  SuggestedAction = "manual_review"
)

// DuplicateMatch is one scored candidate for a staged row
type DuplicateMatch struct {
	Target            MatchTarget       `json:"target"`
	Score             float64           `json:"score"`
	Reasons           []string          `json:"reasons"`
	Confidence        ConfidenceLevel   `json:"confidence"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
}

// DeduplicationResult is the ranked duplicate analysis for one staged row
type DeduplicationResult struct {
	StagingID         string           `json:"staging_id"`
	RowNumber         int              `json:"row_number,omitempty"`
	HasDuplicates     bool             `json:"has_duplicates"`
	Matches           []DuplicateMatch `json:"matches"`
	OverallConfidence float64          `json:"overall_confidence"`
	SuggestedAction   SuggestedAction  `json:"suggested_action"`
	LookupFailed      bool             `json:"lookup_failed,omitempty"`
	Warning           string           `json:"warning,omitempty"`
}
