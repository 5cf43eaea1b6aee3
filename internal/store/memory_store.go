package store

import (
	"context"

	"github.com/google/uuid"
)

// CandidateQuery selects memory items for scoring.
type CandidateQuery struct {
	ProjectIDs []uuid.UUID
	Types      []MemoryType // empty = all types
	Statuses   []string     // empty = active only
	Limit      int          // most recent first
	// Terms adds up to Limit keyword-matched items to the recency pool.
	Terms []string
}

// EmbeddingProvider generates vector embeddings for text.
type EmbeddingProvider interface {
	Name() string
	Model() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// MemoryStore reads typed memory items. Writes belong to the memory-store front-end.
type MemoryStore interface {
	// ListCandidates returns the union of the most recent items and, when
	// Terms is set, the best keyword matches. Each item appears once.
	ListCandidates(ctx context.Context, q CandidateQuery) ([]MemoryItem, error)

	// RecentTypeCounts counts item types among the most recent `limit` items.
	RecentTypeCounts(ctx context.Context, projectIDs []uuid.UUID, limit int) (map[MemoryType]int, error)

	// LatestByType returns up to perType most recent items of each requested type.
	LatestByType(ctx context.Context, projectID uuid.UUID, types []MemoryType, perType int) ([]MemoryItem, error)
}
