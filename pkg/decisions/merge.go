package decisions

import (
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// NodeID builds "<entity-slug>-<category-slug>-<8 hex>"
func NodeID(entityName string, category models.NodeCategory) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return Slug(entityName) + "-" + Slug(string(category)) + "-" + suffix
}

// Slug lowercases s and joins its alphanumeric runs with single dashes
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}

// foldName adds name to names unless it matches primary or an existing entry by match key.
// It reports whether names changed.
func foldName(primary string, names pq.StringArray, name string) (pq.StringArray, bool) {
	key := normalizers.MatchKey(name)
	if key == "" || key == normalizers.MatchKey(primary) {
		return names, false
	}
	keys := ectolinq.Map([]string(names), normalizers.MatchKey)
	if ectolinq.Contains(keys, key) {
		return names, false
	}
	return append(names, name), true
}

// union appends values missing from base, keeping base order
func union(base pq.StringArray, values []string) pq.StringArray {
	out := append(pq.StringArray{}, base...)
	for _, v := range values {
		if v == "" || ectolinq.Contains([]string(out), v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func appendNotes(existing, notes string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" || strings.Contains(existing, notes) {
		return existing
	}
	if existing == "" {
		return notes
	}
	return existing + "\n" + notes
}

// newEntity builds the entity an approve_new decision commits
func newEntity(staged *models.StagingNode) *models.Entity {
	return &models.Entity{
		ID:             uuid.New().String(),
		OwnerID:        staged.OwnerID,
		Name:           staged.EntityName,
		AlternateNames: pq.StringArray{},
		Website:        staged.Website,
	}
}

// newNode builds the node a staged row commits under entity
func newNode(staged *models.StagingNode, entity *models.Entity) *models.Node {
	return &models.Node{
		ID:                NodeID(entity.Name, staged.Category),
		OwnerID:           staged.OwnerID,
		Name:              staged.NodeName,
		EntityID:          entity.ID,
		EntityName:        entity.Name,
		Category:          staged.Category,
		Direction:         staged.Direction,
		ConnectTargets:    union(nil, staged.ConnectTargets),
		Protocols:         union(nil, staged.Protocols),
		DataTypes:         union(nil, staged.DataTypes),
		Aliases:           pq.StringArray{},
		Notes:             staged.Notes,
		Tags:              union(nil, staged.Tags),
		Website:           staged.Website,
		IsActive:          true,
		SourceFingerprint: staged.Fingerprint,
	}
}

// mergeIntoNode folds a staged row into an existing node
func mergeIntoNode(node *models.Node, staged *models.StagingNode) {
	node.Aliases, _ = foldName(node.Name, node.Aliases, staged.NodeName)
	node.Notes = appendNotes(node.Notes, staged.Notes)
	node.Tags = union(node.Tags, staged.Tags)
	node.ConnectTargets = union(node.ConnectTargets, staged.ConnectTargets)
	node.Protocols = union(node.Protocols, staged.Protocols)
	node.DataTypes = union(node.DataTypes, staged.DataTypes)
	if node.Website == "" {
		node.Website = staged.Website
	}
}
