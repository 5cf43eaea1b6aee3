package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/memhub/internal/store"
)

// MemoryStore implements store.MemoryStore.
type MemoryStore struct {
	db *DB
}

func NewMemoryStore(db *DB) *MemoryStore {
	return &MemoryStore{db: db}
}

type memoryRow struct {
	ID            uuid.UUID      `db:"id"`
	ProjectID     uuid.UUID      `db:"project_id"`
	Type          string         `db:"type"`
	Title         string         `db:"title"`
	Content       string         `db:"content"`
	Status        string         `db:"status"`
	Subpath       string         `db:"subpath"`
	EmbeddingJSON sql.NullString `db:"embedding_json"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r memoryRow) item() store.MemoryItem {
	return store.MemoryItem{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		Type:      store.MemoryType(r.Type),
		Title:     r.Title,
		Content:   r.Content,
		Status:    r.Status,
		Subpath:   r.Subpath,
		Embedding: decodeEmbedding(r.EmbeddingJSON),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

const memoryCols = `id, project_id, type, title, content, status, subpath, embedding_json, created_at, updated_at`

func (s *MemoryStore) ListCandidates(ctx context.Context, q store.CandidateQuery) ([]store.MemoryItem, error) {
	if len(q.ProjectIDs) == 0 {
		return nil, nil
	}
	statuses := q.Statuses
	if len(statuses) == 0 {
		statuses = []string{store.MemoryStatusActive}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 500
	}

	where := ` FROM memory_items WHERE project_id IN (?) AND status IN (?)`
	args := []any{q.ProjectIDs, statuses}
	if len(q.Types) > 0 {
		where += ` AND type IN (?)`
		args = append(args, q.Types)
	}

	recent, err := s.selectItems(ctx, `SELECT `+memoryCols+where+` ORDER BY created_at DESC, id ASC LIMIT ?`,
		append(slices.Clip(args), limit)...)
	if err != nil {
		return nil, fmt.Errorf("list memory candidates: %w", err)
	}
	if len(q.Terms) == 0 {
		return recent, nil
	}

	matched, err := s.keywordCandidates(ctx, where, args, q.Terms, limit)
	if err != nil {
		return nil, fmt.Errorf("list keyword candidates: %w", err)
	}
	seen := make(map[uuid.UUID]bool, len(recent)+len(matched))
	out := make([]store.MemoryItem, 0, len(recent)+len(matched))
	for _, pool := range [][]store.MemoryItem{recent, matched} {
		for _, it := range pool {
			if seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			out = append(out, it)
		}
	}
	return out, nil
}

// keywordCandidates returns up to limit items matching any of terms, best
// matches first. Postgres uses full-text search; SQLite counts LIKE hits.
func (s *MemoryStore) keywordCandidates(ctx context.Context, where string, args []any, terms []string, limit int) ([]store.MemoryItem, error) {
	args = slices.Clip(args)
	if s.db.Dialect() == DialectPostgres {
		tsq := strings.Join(terms, " | ")
		sqlText := `SELECT ` + memoryCols + where +
			` AND to_tsvector('simple', title || ' ' || content) @@ to_tsquery('simple', ?)` +
			` ORDER BY ts_rank(to_tsvector('simple', title || ' ' || content), to_tsquery('simple', ?)) DESC, created_at DESC, id ASC LIMIT ?`
		return s.selectItems(ctx, sqlText, append(args, tsq, tsq, limit)...)
	}

	hits := make([]string, len(terms))
	likes := make([]any, len(terms))
	for i, t := range terms {
		hits[i] = `(CASE WHEN lower(title || ' ' || content) LIKE ? THEN 1 ELSE 0 END)`
		likes[i] = "%" + t + "%"
	}
	score := strings.Join(hits, " + ")
	sqlText := `SELECT ` + memoryCols + where + ` AND (` + score + `) > 0` +
		` ORDER BY (` + score + `) DESC, created_at DESC, id ASC LIMIT ?`
	bound := append(append(append(args, likes...), likes...), limit)
	return s.selectItems(ctx, sqlText, bound...)
}

func (s *MemoryStore) selectItems(ctx context.Context, sqlText string, args ...any) ([]store.MemoryItem, error) {
	query, bound, err := inQuery(s.db.DB, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("build candidate query: %w", err)
	}
	var rows []memoryRow
	if err := s.db.SelectContext(ctx, &rows, query, bound...); err != nil {
		return nil, err
	}
	out := make([]store.MemoryItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.item())
	}
	return out, nil
}

func (s *MemoryStore) RecentTypeCounts(ctx context.Context, projectIDs []uuid.UUID, limit int) (map[store.MemoryType]int, error) {
	counts := map[store.MemoryType]int{}
	if len(projectIDs) == 0 {
		return counts, nil
	}
	if limit <= 0 {
		limit = 50
	}
	query, args, err := inQuery(s.db.DB,
		`SELECT type FROM memory_items WHERE project_id IN (?) AND status = ?
		 ORDER BY created_at DESC LIMIT ?`, projectIDs, store.MemoryStatusActive, limit)
	if err != nil {
		return nil, fmt.Errorf("build type count query: %w", err)
	}
	var types []string
	if err := s.db.SelectContext(ctx, &types, query, args...); err != nil {
		return nil, fmt.Errorf("recent type counts: %w", err)
	}
	for _, t := range types {
		counts[store.MemoryType(t)]++
	}
	return counts, nil
}

func (s *MemoryStore) LatestByType(ctx context.Context, projectID uuid.UUID, types []store.MemoryType, perType int) ([]store.MemoryItem, error) {
	if perType <= 0 {
		perType = 3
	}
	var out []store.MemoryItem
	for _, t := range types {
		var rows []memoryRow
		err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
			`SELECT `+memoryCols+` FROM memory_items
			 WHERE project_id = ? AND type = ? AND status = ?
			 ORDER BY created_at DESC, id ASC LIMIT ?`),
			projectID, t, store.MemoryStatusActive, perType)
		if err != nil {
			return nil, fmt.Errorf("latest %s items: %w", t, err)
		}
		for _, r := range rows {
			out = append(out, r.item())
		}
	}
	return out, nil
}

// InsertMemoryItem writes a memory item. Used by seeding and the snapshot tooling.
func (s *MemoryStore) InsertMemoryItem(ctx context.Context, it *store.MemoryItem) error {
	if it.ID == uuid.Nil {
		it.ID = store.GenNewID()
	}
	if it.Status == "" {
		it.Status = store.MemoryStatusActive
	}
	now := nowUTC()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	if it.UpdatedAt.IsZero() {
		it.UpdatedAt = it.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO memory_items (`+memoryCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		it.ID, it.ProjectID, it.Type, it.Title, it.Content, it.Status, it.Subpath,
		encodeEmbedding(it.Embedding), it.CreatedAt.UTC(), it.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert memory item: %w", err)
	}
	return nil
}
