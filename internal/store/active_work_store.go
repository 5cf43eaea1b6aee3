package store

import (
	"context"

	"github.com/google/uuid"
)

// ActiveWorkStore reads active-work items and decision-extractor runs.
type ActiveWorkStore interface {
	ListActiveWork(ctx context.Context, projectID uuid.UUID, limit int) ([]ActiveWorkItem, error)
	RecentExtractorRuns(ctx context.Context, projectID uuid.UUID, limit int) ([]ExtractorRun, error)
}
