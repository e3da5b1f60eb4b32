package models

import (
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/database"
)

// StagingStatus is the review state of a staged row
type StagingStatus string

const (
	StagingStatusPending  StagingStatus = "pending"
	StagingStatusReviewed StagingStatus = "reviewed"
	StagingStatusApproved StagingStatus = "approved"
	StagingStatusRejected StagingStatus = "rejected"
	StagingStatusMerged   StagingStatus = "merged"
)

// IsDecided reports whether a decision has already been applied. Decided rows are immutable.
func (s StagingStatus) IsDecided() bool {
	switch s {
	case StagingStatusApproved, StagingStatusRejected, StagingStatusMerged:
		return true
	}
	return false
}

// DuplicateCheck records whether the registry lookup for a row succeeded
type DuplicateCheck string

const (
	DuplicateCheckOK           DuplicateCheck = "ok"
	DuplicateCheckLookupFailed DuplicateCheck = "lookup_failed"
)

// StagingNode is a sanitized row awaiting a human decision. It always belongs to exactly one batch.
type StagingNode struct {
	ID                  string                            `json:"id" db:"id"`
	BatchID             string                            `json:"batch_id" db:"batch_id"`
	OwnerID             string                            `json:"owner_id" db:"owner_id"`
	RowNumber           int                               `json:"row_number" db:"row_number"`
	NodeName            string                            `json:"node_name" db:"node_name"`
	EntityName          string                            `json:"entity_name" db:"entity_name"`
	Website             string                            `json:"website" db:"website"`
	Category            NodeCategory                      `json:"category" db:"category"`
	Direction           Direction                         `json:"direction" db:"direction"`
	ConnectTargets      pq.StringArray                    `json:"connect_targets" db:"connect_targets"`
	Protocols           pq.StringArray                    `json:"protocols" db:"protocols"`
	DataTypes           pq.StringArray                    `json:"data_types" db:"data_types"`
	Notes               string                            `json:"notes" db:"notes"`
	Tags                pq.StringArray                    `json:"tags" db:"tags"`
	RawData             database.JSONB[map[string]string] `json:"raw_data" db:"raw_data"`
	ConfidenceScore     float64                           `json:"confidence_score" db:"confidence_score"`
	PotentialDuplicates pq.StringArray                    `json:"potential_duplicates" db:"potential_duplicates"`
	DuplicateCheck      DuplicateCheck                    `json:"duplicate_check" db:"duplicate_check"`
	Fingerprint         string                            `json:"fingerprint" db:"fingerprint"`
	Status              StagingStatus                     `json:"status" db:"status"`
	DecidedBy           *string                           `json:"decided_by,omitempty" db:"decided_by"`
	DecidedAt           *time.Time                        `json:"decided_at,omitempty" db:"decided_at"`
	CommittedEntityID   *string                           `json:"committed_entity_id,omitempty" db:"committed_entity_id"`
	CommittedNodeID     *string                           `json:"committed_node_id,omitempty" db:"committed_node_id"`
	CreatedAt           time.Time                         `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time                         `json:"updated_at" db:"updated_at"`
}

// SanitizedRow is the typed output of the sanitizer for one valid CSV row
type SanitizedRow struct {
	RowNumber      int
	NodeName       string
	EntityName     string
	Website        string
	Category       NodeCategory
	Direction      Direction
	ConnectTargets []string
	Protocols      []Protocol
	DataTypes      []DataType
	Notes          string
	Tags           []string
	Raw            map[string]string
}

// RowValidationError is a single field violation on one CSV row
type RowValidationError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value"`
}

func (e RowValidationError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Message)
}

// Row rebuilds the sanitized form of a staged row for duplicate analysis
func (s StagingNode) Row() SanitizedRow {
	protocols := make([]Protocol, len(s.Protocols))
	for i, p := range s.Protocols {
		protocols[i] = Protocol(p)
	}
	dataTypes := make([]DataType, len(s.DataTypes))
	for i, d := range s.DataTypes {
		dataTypes[i] = DataType(d)
	}

	return SanitizedRow{
		RowNumber:      s.RowNumber,
		NodeName:       s.NodeName,
		EntityName:     s.EntityName,
		Website:        s.Website,
		Category:       s.Category,
		Direction:      s.Direction,
		ConnectTargets: append([]string{}, s.ConnectTargets...),
		Protocols:      protocols,
		DataTypes:      dataTypes,
		Notes:          s.Notes,
		Tags:           append([]string{}, s.Tags...),
		Raw:            s.RawData.Data,
	}
}
