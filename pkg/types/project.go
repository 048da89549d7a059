package types

import "time"

// Project groups memories under a named container. A project owns the
// foreign-key relation of its memories, not their lifetime: deleting a
// project detaches memories rather than deleting them.
type Project struct {
	ID          string    `json:"id"`          // Unique identifier (format: proj:uuid)
	Name        string    `json:"name"`        // Display name
	Description string    `json:"description,omitempty"`
	UserID      string    `json:"user_id"`     // Owning user
	MemoryCount int       `json:"memory_count"` // Denormalized count, maintained transactionally
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
