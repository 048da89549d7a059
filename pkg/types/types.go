// Package types defines the core data structures for the xmem memory engine.
// These types represent memories, projects, relationships, vector sources,
// and their metadata for the ingestion and semantic synchronization pipeline.
package types

// MemoryType classifies the content of a memory.
type MemoryType string

// SyncStatus tracks relational/vector-backend consistency for a memory.
type SyncStatus string

// SourceType identifies the kind of external vector backend a MemorySource
// points at. The set is closed: adapter dispatch switches on it.
type SourceType string

// Memory content type constants
const (
	// MemoryTypeText is plain text content (the default for imports)
	MemoryTypeText MemoryType = "text"

	// MemoryTypeCode is a source code snippet
	MemoryTypeCode MemoryType = "code"

	// MemoryTypeImage is an image reference
	MemoryTypeImage MemoryType = "image"

	// MemoryTypeLink is a URL
	MemoryTypeLink MemoryType = "link"
)

// Sync status constants
const (
	// SyncPending indicates the memory awaits embedding and vector upsert
	SyncPending SyncStatus = "pending"

	// SyncSynced indicates the vector backend holds the memory's embedding
	SyncSynced SyncStatus = "synced"

	// SyncFailed indicates the last sync attempt exhausted its retries
	SyncFailed SyncStatus = "failed"
)

// Vector backend kind constants
const (
	SourceQdrant   SourceType = "qdrant"
	SourcePinecone SourceType = "pinecone"
	SourceMongoDB  SourceType = "mongodb"
	SourceChromaDB SourceType = "chromadb"
	SourcePgvector SourceType = "pgvector"
	SourceChromem  SourceType = "chromem"
)

// ValidMemoryTypes is a slice of all valid memory content types.
var ValidMemoryTypes = []MemoryType{
	MemoryTypeText,
	MemoryTypeCode,
	MemoryTypeImage,
	MemoryTypeLink,
}

// ValidSourceTypes is a slice of all supported vector backend kinds.
var ValidSourceTypes = []SourceType{
	SourceQdrant,
	SourcePinecone,
	SourceMongoDB,
	SourceChromaDB,
	SourcePgvector,
	SourceChromem,
}

// IsValidMemoryType checks if the given memory type is valid.
func IsValidMemoryType(t MemoryType) bool {
	for _, valid := range ValidMemoryTypes {
		if valid == t {
			return true
		}
	}
	return false
}

// IsValidSourceType checks if the given source type is a supported backend kind.
func IsValidSourceType(t SourceType) bool {
	for _, valid := range ValidSourceTypes {
		if valid == t {
			return true
		}
	}
	return false
}
