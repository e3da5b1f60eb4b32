package models

import (
	"time"

	"github.com/lib/pq"
)

// Entity is a company that operates one or more connectivity nodes
type Entity struct {
	ID             string         `json:"id" db:"id"`
	OwnerID        string         `json:"owner_id" db:"owner_id"`
	Name           string         `json:"name" db:"name"`
	AlternateNames pq.StringArray `json:"alternate_names" db:"alternate_names"`
	Website        string         `json:"website" db:"website"`
	Version        int            `json:"version" db:"version"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// Node is a committed connectivity node in the registry
type Node struct {
	ID                string         `json:"id" db:"id"`
	OwnerID           string         `json:"owner_id" db:"owner_id"`
	Name              string         `json:"name" db:"name"`
	EntityID          string         `json:"entity_id" db:"entity_id"`
	EntityName        string         `json:"entity_name" db:"entity_name"`
	Category          NodeCategory   `json:"category" db:"category"`
	Direction         Direction      `json:"direction" db:"direction"`
	ConnectTargets    pq.StringArray `json:"connect_targets" db:"connect_targets"`
	Protocols         pq.StringArray `json:"protocols" db:"protocols"`
	DataTypes         pq.StringArray `json:"data_types" db:"data_types"`
	Aliases           pq.StringArray `json:"aliases" db:"aliases"`
	Notes             string         `json:"notes" db:"notes"`
	Tags              pq.StringArray `json:"tags" db:"tags"`
	Website           string         `json:"website" db:"website"`
	IsActive          bool           `json:"is_active" db:"is_active"`
	LastVerified      *time.Time     `json:"last_verified,omitempty" db:"last_verified"`
	SourceFingerprint string         `json:"source_fingerprint,omitempty" db:"source_fingerprint"`
	Version           int            `json:"version" db:"version"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// RegistrySnapshot is a point-in-time read of an owner's committed registry
type RegistrySnapshot struct {
	Entities []Entity `json:"entities"`
	Nodes    []Node   `json:"nodes"`
}
