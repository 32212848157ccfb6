package checkpoint

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/helion/internal/conversation"
)

// DefaultListLimit is used by ListRecent when limit is not positive.
const DefaultListLimit = 10

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store handles checkpoint persistence.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*threadLock
}

// threadLock is a per-thread write lock, dropped from the table once no
// writer holds or waits for it.
type threadLock struct {
	sync.Mutex
	refs int
}

// NewStore creates a checkpoint store using the given database.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:     db,
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*threadLock),
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			thread_id TEXT NOT NULL,
			parent_id TEXT,
			user_id TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			step INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			state_gz BLOB NOT NULL,
			byte_size INTEGER NOT NULL,
			message_count INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_checkpoints_thread
			ON checkpoints(thread_id, seq DESC);
	`)
	return err
}

// lockThread blocks until no other write to threadID is in progress and
// returns the matching unlock.
func (s *Store) lockThread(threadID string) func() {
	s.mu.Lock()
	l, ok := s.locks[threadID]
	if !ok {
		l = &threadLock{}
		s.locks[threadID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, threadID)
		}
		s.mu.Unlock()
	}
}

// Save appends a snapshot of msgs to the thread. The new checkpoint's
// parent is the thread's previous latest checkpoint, so a thread's
// rows always form a single chain.
func (s *Store) Save(ctx context.Context, threadID string, msgs []conversation.Message, meta Metadata) (uuid.UUID, error) {
	if threadID == "" {
		return uuid.Nil, fmt.Errorf("thread id is required")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate id: %w", err)
	}

	compressed, err := compress(msgs)
	if err != nil {
		return uuid.Nil, err
	}

	unlock := s.lockThread(threadID)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM checkpoints WHERE thread_id = ? ORDER BY seq DESC LIMIT 1`,
		threadID).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("find parent: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (id, thread_id, parent_id, user_id, source, step, created_at, state_gz, byte_size, message_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id.String(), threadID, parent, meta.UserID, string(meta.Source), meta.Step,
		s.now().UTC().Format(timeLayout), compressed, len(compressed), len(msgs))
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Log(ctx, slog.Level(-8), "checkpoint saved", // config.LevelTrace
		"thread_id", threadID,
		"checkpoint_id", id,
		"source", meta.Source,
		"step", meta.Step,
		"messages", len(msgs),
		"bytes", len(compressed),
	)
	return id, nil
}

// LoadLatest returns the thread's most recent checkpoint. The boolean
// is false when the thread has no checkpoints yet.
func (s *Store) LoadLatest(ctx context.Context, threadID string) (*Checkpoint, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, parent_id, user_id, source, step, created_at, byte_size, message_count, state_gz
		FROM checkpoints WHERE thread_id = ?
		ORDER BY seq DESC LIMIT 1
	`, threadID)
	cp, err := scanFull(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cp, true, nil
}

// Get retrieves a checkpoint by id, including its message log.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, parent_id, user_id, source, step, created_at, byte_size, message_count, state_gz
		FROM checkpoints WHERE id = ?
	`, id.String())
	cp, err := scanFull(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return cp, err
}

// ListRecent returns the thread's checkpoints newest first, without
// their message logs.
func (s *Store) ListRecent(ctx context.Context, threadID string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, parent_id, user_id, source, step, created_at, byte_size, message_count
		FROM checkpoints WHERE thread_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := scanRow(rows, &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Threads lists known threads, most recently updated first. A non-empty
// userID restricts the list to threads that user has written to.
func (s *Store) Threads(ctx context.Context, userID string) ([]Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.thread_id, c.user_id, t.n, c.created_at
		FROM checkpoints c
		JOIN (
			SELECT thread_id, MAX(seq) AS last, COUNT(*) AS n
			FROM checkpoints
			WHERE ? = '' OR user_id = ?
			GROUP BY thread_id
		) t ON c.seq = t.last
		ORDER BY c.seq DESC
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []Thread
	for rows.Next() {
		var th Thread
		var created string
		if err := rows.Scan(&th.ThreadID, &th.UserID, &th.Checkpoints, &created); err != nil {
			return nil, err
		}
		th.UpdatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, th)
	}
	return out, rows.Err()
}

// Prune deletes all but the keep most recent checkpoints of a thread
// and returns how many were removed. The latest checkpoint is never
// removed.
func (s *Store) Prune(ctx context.Context, threadID string, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}

	unlock := s.lockThread(threadID)
	defer unlock()

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints
		WHERE thread_id = ? AND seq NOT IN (
			SELECT seq FROM checkpoints
			WHERE thread_id = ?
			ORDER BY seq DESC
			LIMIT ?
		)
	`, threadID, threadID, keep)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		s.logger.Info("checkpoints pruned", "thread_id", threadID, "deleted", deleted, "kept", keep)
	}
	return int(deleted), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner, r *Row, extra ...any) error {
	var idStr, createdStr, source string
	var parent sql.NullString

	dest := append([]any{&idStr, &r.ThreadID, &parent, &r.UserID, &source, &r.Step, &createdStr, &r.ByteSize, &r.MessageCount}, extra...)
	if err := sc.Scan(dest...); err != nil {
		return err
	}

	var err error
	if r.ID, err = uuid.Parse(idStr); err != nil {
		return fmt.Errorf("parse id %q: %w", idStr, err)
	}
	if parent.Valid && parent.String != "" {
		pid, err := uuid.Parse(parent.String)
		if err != nil {
			return fmt.Errorf("parse parent id %q: %w", parent.String, err)
		}
		r.ParentID = uuid.NullUUID{UUID: pid, Valid: true}
	}
	r.Source = Source(source)
	r.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return nil
}

func scanFull(sc scanner) (*Checkpoint, error) {
	var cp Checkpoint
	var stateGz []byte
	if err := scanRow(sc, &cp.Row, &stateGz); err != nil {
		return nil, err
	}
	msgs, err := decompress(stateGz)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", cp.ID, err)
	}
	cp.Messages = msgs
	return &cp, nil
}

func compress(msgs []conversation.Message) ([]byte, error) {
	stateJSON, err := conversation.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(stateJSON); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(stateGz []byte) ([]conversation.Message, error) {
	gr, err := gzip.NewReader(bytes.NewReader(stateGz))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer gr.Close()

	stateJSON, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	msgs, err := conversation.Unmarshal(stateJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return msgs, nil
}
