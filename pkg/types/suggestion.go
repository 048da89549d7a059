package types

import "time"

// SuggestionType classifies an AI-derived suggestion about stored memories.
type SuggestionType string

// SuggestionStatus is the review state of a suggestion.
type SuggestionStatus string

// Suggestion type constants
const (
	SuggestionConnection SuggestionType = "connection"
	SuggestionTag        SuggestionType = "tag"
	SuggestionAction     SuggestionType = "action"
	SuggestionInsight    SuggestionType = "insight"
)

// Suggestion status constants
const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionRejected SuggestionStatus = "rejected"
)

// Suggestion is a derived recommendation referencing one or more memories.
// Pending suggestions are surfaced through the stats snapshot; accepting a
// connection suggestion materializes a Relationship edge.
type Suggestion struct {
	ID        string           `json:"id"`   // Unique identifier (format: sug:uuid)
	Type      SuggestionType   `json:"type"`
	Content   string           `json:"content"`            // Human-readable suggestion text
	Relevance float64          `json:"relevance"`          // Score in [0,1]
	MemoryIDs []string         `json:"memory_ids"`         // Memories this suggestion refers to
	Status    SuggestionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}
