package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/memhub/internal/store"
)

// ActiveWorkStore implements store.ActiveWorkStore.
type ActiveWorkStore struct {
	db *DB
}

func NewActiveWorkStore(db *DB) *ActiveWorkStore {
	return &ActiveWorkStore{db: db}
}

func (s *ActiveWorkStore) ListActiveWork(ctx context.Context, projectID uuid.UUID, limit int) ([]store.ActiveWorkItem, error) {
	if limit <= 0 {
		limit = 20
	}
	var items []store.ActiveWorkItem
	err := s.db.SelectContext(ctx, &items, s.db.Rebind(
		`SELECT id, project_id, title, status, owner, is_stale, auto_close_eligible, last_activity_at, created_at
		 FROM active_work_items WHERE project_id = ? AND status <> ?
		 ORDER BY last_activity_at DESC, id ASC LIMIT ?`),
		projectID, "closed", limit)
	if err != nil {
		return nil, fmt.Errorf("list active work: %w", err)
	}
	return items, nil
}

func (s *ActiveWorkStore) RecentExtractorRuns(ctx context.Context, projectID uuid.UUID, limit int) ([]store.ExtractorRun, error) {
	if limit <= 0 {
		limit = 5
	}
	var runs []store.ExtractorRun
	err := s.db.SelectContext(ctx, &runs, s.db.Rebind(
		`SELECT id, project_id, status, items_extracted, error, started_at, finished_at
		 FROM extractor_runs WHERE project_id = ?
		 ORDER BY started_at DESC, id ASC LIMIT ?`),
		projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent extractor runs: %w", err)
	}
	return runs, nil
}

// InsertActiveWork writes an active-work item.
func (s *ActiveWorkStore) InsertActiveWork(ctx context.Context, it *store.ActiveWorkItem) error {
	if it.ID == uuid.Nil {
		it.ID = store.GenNewID()
	}
	now := nowUTC()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	if it.LastActivityAt.IsZero() {
		it.LastActivityAt = it.CreatedAt
	}
	if it.Status == "" {
		it.Status = "open"
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO active_work_items (id, project_id, title, status, owner, is_stale, auto_close_eligible, last_activity_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		it.ID, it.ProjectID, it.Title, it.Status, it.Owner, it.IsStale, it.AutoCloseEligible,
		it.LastActivityAt.UTC(), it.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert active work: %w", err)
	}
	return nil
}

// InsertExtractorRun records a decision-extractor pass.
func (s *ActiveWorkStore) InsertExtractorRun(ctx context.Context, r *store.ExtractorRun) error {
	if r.ID == uuid.Nil {
		r.ID = store.GenNewID()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = nowUTC()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO extractor_runs (id, project_id, status, items_extracted, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.ProjectID, r.Status, r.ItemsExtracted, r.Error, r.StartedAt.UTC(), nilTime(r.FinishedAt))
	if err != nil {
		return fmt.Errorf("insert extractor run: %w", err)
	}
	return nil
}
