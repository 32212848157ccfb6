// Package memory provides per-user semantic memory: short facts stored
// with an embedding and recalled by cosine similarity.
package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/helion/internal/embeddings"
)

// Importance levels accepted for a memory.
const (
	ImportanceLow    = "low"
	ImportanceMedium = "medium"
	ImportanceHigh   = "high"
)

// ValidImportance reports whether s is a known importance level.
func ValidImportance(s string) bool {
	switch s {
	case ImportanceLow, ImportanceMedium, ImportanceHigh:
		return true
	}
	return false
}

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Memory is one stored fact about a user.
type Memory struct {
	ID         uuid.UUID `json:"id"`
	UserID     string    `json:"user_id"`
	Content    string    `json:"content"`
	Importance string    `json:"importance"`
	CreatedAt  time.Time `json:"created_at"`
	Embedding  []float32 `json:"-"`
}

// Match is a search hit with its similarity to the query vector.
type Match struct {
	Memory
	Similarity float32 `json:"similarity"`
}

// Store is a SQLite-backed memory store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a memory store on db and ensures its schema.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			importance TEXT NOT NULL DEFAULT 'medium',
			embedding BLOB,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_memories_user
			ON memories(user_id, created_at DESC);
	`)
	return err
}

// Add stores a memory for userID and returns it with ID populated.
func (s *Store) Add(ctx context.Context, userID, content, importance string, embedding []float32) (*Memory, error) {
	if importance == "" {
		importance = ImportanceMedium
	}
	if !ValidImportance(importance) {
		return nil, fmt.Errorf("invalid importance %q", importance)
	}

	m := &Memory{
		ID:         uuid.New(),
		UserID:     userID,
		Content:    content,
		Importance: importance,
		CreatedAt:  s.now().UTC(),
		Embedding:  embedding,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, user_id, content, importance, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.UserID, m.Content, m.Importance,
		encodeEmbedding(embedding), m.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}

	s.logger.Debug("memory stored", "user_id", userID, "id", m.ID, "importance", importance)
	return m, nil
}

// List returns every memory for userID, newest first.
func (s *Store) List(ctx context.Context, userID string) ([]*Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, content, importance, embedding, created_at
		FROM memories WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Count returns the number of memories stored for userID.
func (s *Store) Count(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

// Search ranks userID's memories by cosine similarity to vec and
// returns at most topK whose similarity is strictly above threshold,
// best first.
func (s *Store) Search(ctx context.Context, vec []float32, userID string, threshold float32, topK int) ([]Match, error) {
	memories, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, m := range memories {
		sim := embeddings.CosineSimilarity(vec, m.Embedding)
		if sim > threshold {
			matches = append(matches, Match{Memory: *m, Similarity: sim})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete removes one memory owned by userID. It reports whether a row
// was deleted.
func (s *Store) Delete(ctx context.Context, userID string, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ? AND user_id = ?`, id.String(), userID)
	if err != nil {
		return false, fmt.Errorf("delete memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanMemory(rows *sql.Rows) (*Memory, error) {
	var m Memory
	var idStr, createdStr string
	var blob []byte
	if err := rows.Scan(&idStr, &m.UserID, &m.Content, &m.Importance, &blob, &createdStr); err != nil {
		return nil, fmt.Errorf("scan memory: %w", err)
	}

	var err error
	m.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse memory id: %w", err)
	}
	m.CreatedAt, err = time.Parse(timeLayout, createdStr)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	m.Embedding = decodeEmbedding(blob)
	return &m, nil
}

// --- embedding helpers ---

func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	result := make([]float32, len(data)/4)
	for i := range result {
		result[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return result
}
