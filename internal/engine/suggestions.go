package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/xmem/internal/storage"
	"github.com/scrypster/xmem/pkg/types"
)

// suggestionStore is the capability the suggestion service needs.
type suggestionStore interface {
	storage.SuggestionStore
	storage.RelationshipStore
}

// SuggestionService manages the review lifecycle of derived suggestions.
// Accepting a connection suggestion materializes a relationship edge
// between the referenced memories.
type SuggestionService struct {
	store suggestionStore
}

// NewSuggestionService wires the service.
func NewSuggestionService(store suggestionStore) *SuggestionService {
	return &SuggestionService{store: store}
}

// Create stores a new pending suggestion and returns its ID.
func (s *SuggestionService) Create(ctx context.Context, sugType types.SuggestionType, content string, relevance float64, memoryIDs []string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("%w: suggestion content is required", storage.ErrInvalidInput)
	}

	sug := &types.Suggestion{
		ID:        "sug:" + uuid.New().String(),
		Type:      sugType,
		Content:   content,
		Relevance: relevance,
		MemoryIDs: memoryIDs,
		Status:    types.SuggestionPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.StoreSuggestion(ctx, sug); err != nil {
		return "", err
	}
	return sug.ID, nil
}

// Accept marks the suggestion accepted. Connection suggestions referencing
// exactly two memories also create the corresponding edge; an edge that
// fails validation (e.g. a memory tombstoned since the suggestion was
// made) is logged and skipped, the acceptance still stands.
func (s *SuggestionService) Accept(ctx context.Context, id string) error {
	sug, err := s.store.GetSuggestion(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.UpdateSuggestionStatus(ctx, id, types.SuggestionAccepted); err != nil {
		return err
	}

	if sug.Type == types.SuggestionConnection && len(sug.MemoryIDs) == 2 {
		rel := &types.Relationship{
			ID:        "rel:" + uuid.New().String(),
			SourceID:  sug.MemoryIDs[0],
			TargetID:  sug.MemoryIDs[1],
			Kind:      types.RelationConnection,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.CreateRelationship(ctx, rel); err != nil {
			log.Printf("suggest: accepted %s but edge creation failed: %v", id, err)
		}
	}
	return nil
}

// Reject marks the suggestion rejected.
func (s *SuggestionService) Reject(ctx context.Context, id string) error {
	return s.store.UpdateSuggestionStatus(ctx, id, types.SuggestionRejected)
}
