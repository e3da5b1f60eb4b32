package models

// DecisionAction is what a reviewer chose to do with a staged row
type DecisionAction string

const (
	DecisionApproveNew      DecisionAction = "approve_new"
	DecisionMergeWithEntity DecisionAction = "merge_with_entity"
	DecisionMergeWithNode   DecisionAction = "merge_with_node"
	DecisionReject          DecisionAction = "reject"
)

func (a DecisionAction) IsValid() bool {
	switch a {
	case DecisionApproveNew, DecisionMergeWithEntity, DecisionMergeWithNode, DecisionReject:
		return true
	}
	return false
}

// Decision is one reviewer instruction for a staged row
type Decision struct {
	StagingID      string         `json:"staging_id" validate:"required"`
	Action         DecisionAction `json:"action" validate:"required,oneof=approve_new merge_with_entity merge_with_node reject"`
	TargetEntityID string         `json:"target_entity_id,omitempty" validate:"required_if=Action merge_with_entity"`
	TargetNodeID   string         `json:"target_node_id,omitempty" validate:"required_if=Action merge_with_node"`
	Notes          string         `json:"notes,omitempty"`
}

// DecisionError reports a decision that could not be applied
type DecisionError struct {
	StagingID string    `json:"staging_id"`
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
}

// DecisionOutcome describes the registry writes a successful decision made
type DecisionOutcome struct {
	StagingID string         `json:"staging_id"`
	Action    DecisionAction `json:"action"`
	Status    StagingStatus  `json:"status"`
	EntityID  string         `json:"entity_id,omitempty"`
	NodeID    string         `json:"node_id,omitempty"`
}
