package types

import "time"

// RelationshipKind is the type of an edge between two memories, or between
// a memory and a project/context.
type RelationshipKind string

// Relationship kind constants. The first four mirror the suggestion
// taxonomy; RelationLink is a plain untyped edge.
const (
	RelationConnection RelationshipKind = "connection"
	RelationTag        RelationshipKind = "tag"
	RelationAction     RelationshipKind = "action"
	RelationInsight    RelationshipKind = "insight"
	RelationLink       RelationshipKind = "link"
)

// ValidRelationshipKinds lists the accepted edge kinds.
var ValidRelationshipKinds = []RelationshipKind{
	RelationConnection,
	RelationTag,
	RelationAction,
	RelationInsight,
	RelationLink,
}

// Relationship represents a typed edge between two memories, or between a
// memory and a project/context id. Edges may never reference a tombstoned
// memory: pruning happens transactionally with the referenced deletion.
type Relationship struct {
	ID        string           `json:"id"`        // Unique identifier (format: rel:uuid)
	SourceID  string           `json:"source_id"` // Source memory ID
	TargetID  string           `json:"target_id"` // Target memory, project, or context ID
	Kind      RelationshipKind `json:"kind"`
	CreatedAt time.Time        `json:"created_at"`
}

// IsSymmetric reports whether lookups from either endpoint return this edge.
// Connection edges between memories are symmetric; tags, actions, insights
// and plain links are directed.
func (r *Relationship) IsSymmetric() bool {
	return r.Kind == RelationConnection
}

// IsValidRelationshipKind checks if the given kind is accepted.
func IsValidRelationshipKind(k RelationshipKind) bool {
	for _, valid := range ValidRelationshipKinds {
		if valid == k {
			return true
		}
	}
	return false
}
