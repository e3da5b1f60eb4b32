package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
)

// BatchStatus is the lifecycle state of an upload
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessed  BatchStatus = "processed"
	BatchStatusError      BatchStatus = "error"
	BatchStatusCancelled  BatchStatus = "cancelled"
	BatchStatusRolledBack BatchStatus = "rolled_back"
)

// CanTransitionTo reports whether moving from s to next is a legal forward transition
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	switch s {
	case BatchStatusPending:
		return next == BatchStatusProcessed || next == BatchStatusError || next == BatchStatusCancelled
	case BatchStatusProcessed, BatchStatusError, BatchStatusCancelled:
		return next == BatchStatusRolledBack
	}
	return false
}

// IsTerminal reports whether the batch has finished processing
func (s BatchStatus) IsTerminal() bool {
	return s != BatchStatusPending
}

// Kinds of entries in a batch error report
const (
	BatchErrorKindParse          = "parse"
	BatchErrorKindValidation     = "validation"
	BatchErrorKindDuplicateCheck = "duplicate_check"
	BatchErrorKindStaging        = "staging"
	BatchErrorKindTimeout        = "timeout"
	BatchErrorKindCancelled      = "cancelled"
	BatchErrorKindRollback       = "rollback_failed"
)

// BatchError is one entry of a batch error report
type BatchError struct {
	Kind    string `json:"kind"`
	Row     int    `json:"row,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// BatchLog is the audit record of one upload
type BatchLog struct {
	ID                string                       `json:"id" db:"id"`
	OwnerID           string                       `json:"owner_id" db:"owner_id"`
	Name              string                       `json:"name" db:"name"`
	CreatedBy         string                       `json:"created_by" db:"created_by"`
	Status            BatchStatus                  `json:"status" db:"status"`
	TotalRecords      int                          `json:"total_records" db:"total_records"`
	ProcessedRecords  int                          `json:"processed_records" db:"processed_records"`
	ErrorRecords      int                          `json:"error_records" db:"error_records"`
	DuplicateWarnings int                          `json:"duplicate_warnings" db:"duplicate_warnings"`
	ErrorReport       database.JSONB[[]BatchError] `json:"error_report" db:"error_report"`
	CreatedAt         time.Time                    `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time                    `json:"updated_at" db:"updated_at"`
	CompletedAt       *time.Time                   `json:"completed_at,omitempty" db:"completed_at"`
	RolledBackAt      *time.Time                   `json:"rolled_back_at,omitempty" db:"rolled_back_at"`
	RolledBackBy      *string                      `json:"rolled_back_by,omitempty" db:"rolled_back_by"`
}

// BatchOutcome is the single final write of a batch's counters and status
type BatchOutcome struct {
	Status            BatchStatus
	TotalRecords      int
	ProcessedRecords  int
	ErrorRecords      int
	DuplicateWarnings int
	ErrorReport       []BatchError
}

// BatchFilter narrows batch listings
type BatchFilter struct {
	Status   *BatchStatus
	Page     int
	PageSize int
}
