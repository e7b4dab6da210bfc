package observation

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/pinwatch/availability"
	"github.com/hazyhaar/pinwatch/dbopen"
)

// Schema for the SQLite backend. observations holds the current record per
// key; transitions is an append-only history.
const Schema = `
CREATE TABLE IF NOT EXISTS observations (
	item_id       TEXT NOT NULL,
	location_code TEXT NOT NULL,
	status        TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL DEFAULT '',
	slug          TEXT NOT NULL DEFAULT '',
	updated_at    INTEGER NOT NULL,
	PRIMARY KEY (item_id, location_code)
);

CREATE TABLE IF NOT EXISTS transitions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	item_id       TEXT NOT NULL,
	location_code TEXT NOT NULL,
	from_status   TEXT NOT NULL,
	to_status     TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL DEFAULT '',
	observed_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transitions_key ON transitions(item_id, location_code, observed_at);
`

// SQLStore keeps state in SQLite. Records live in memory between Load and
// Save; Save upserts changed rows and appends pending transitions in one
// transaction.
type SQLStore struct {
	*table
	db      *sql.DB
	ownsDB  bool
	pending []keyedTransition
	logger  *slog.Logger
}

type keyedTransition struct {
	key Key
	tr  Transition
	at  time.Time
}

var _ Store = (*SQLStore)(nil)

// OpenSQLStore opens (creating if needed) the database at path.
func OpenSQLStore(path string, logger *slog.Logger) (*SQLStore, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		return nil, fmt.Errorf("observation: %w", err)
	}
	s, err := NewSQLStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewSQLStore wraps an open database and applies the schema.
func NewSQLStore(db *sql.DB, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("observation: apply schema: %w", err)
	}
	return &SQLStore{table: newTable(), db: db, logger: logger}, nil
}

// Load reads all observations. A read failure is logged and yields an empty
// store.
func (s *SQLStore) Load(ctx context.Context) error {
	records, err := s.readAll(ctx)
	if err != nil {
		s.logger.Warn("observation: read state failed, starting empty", "error", err)
		records = make(map[Key]Record)
	}
	s.reset(records)
	return nil
}

func (s *SQLStore) readAll(ctx context.Context) (map[Key]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, location_code, status, title, url, slug
		FROM observations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make(map[Key]Record)
	for rows.Next() {
		var k Key
		var r Record
		var status string
		if err := rows.Scan(&k.ItemID, &k.Location, &status, &r.Title, &r.URL, &r.Slug); err != nil {
			return nil, err
		}
		r.Status = availability.Status(status)
		if !r.Status.Valid() {
			s.logger.Warn("observation: skipping row with unknown status", "key", k, "status", status)
			continue
		}
		r.Location = k.Location
		records[k] = r
	}
	return records, rows.Err()
}

// DiffAndSave implements Store. The transition is queued for the history
// table and written on the next Save.
func (s *SQLStore) DiffAndSave(key Key, rec Record) *Transition {
	tr := s.diffAndSave(key, rec)
	if tr != nil {
		s.mu.Lock()
		s.pending = append(s.pending, keyedTransition{key: key, tr: *tr, at: time.Now()})
		s.mu.Unlock()
	}
	return tr
}

// Get implements Store.
func (s *SQLStore) Get(key Key) (Record, bool) { return s.get(key) }

// Transitions implements Store.
func (s *SQLStore) Transitions() []Transition { return s.drain() }

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context) error {
	dirty := s.takeDirty()
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(dirty) == 0 && len(pending) == 0 {
		return nil
	}
	if err := s.write(ctx, dirty, pending); err != nil {
		s.requeue(dirty, pending)
		return err
	}
	return nil
}

// requeue puts unsaved work back so the next Save retries it.
func (s *SQLStore) requeue(dirty map[Key]Record, pending []keyedTransition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range dirty {
		s.dirty[k] = true
	}
	s.pending = append(pending, s.pending...)
}

func (s *SQLStore) write(ctx context.Context, dirty map[Key]Record, pending []keyedTransition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("observation: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	for k, r := range dirty {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO observations (item_id, location_code, status, title, url, slug, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(item_id, location_code) DO UPDATE SET
				status = excluded.status,
				title = excluded.title,
				url = excluded.url,
				slug = excluded.slug,
				updated_at = excluded.updated_at`,
			k.ItemID, k.Location, string(r.Status), r.Title, r.URL, r.Slug, now); err != nil {
			return fmt.Errorf("observation: upsert %s: %w", k, err)
		}
	}
	for _, p := range pending {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transitions (item_id, location_code, from_status, to_status, title, url, observed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.key.ItemID, p.key.Location, string(p.tr.From), string(p.tr.To), p.tr.Title, p.tr.URL, p.at.UnixMilli()); err != nil {
			return fmt.Errorf("observation: insert transition: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("observation: commit: %w", err)
	}
	return nil
}

// History returns the recorded transitions for key, oldest first.
func (s *SQLStore) History(ctx context.Context, key Key) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_status, to_status, title, url
		FROM transitions
		WHERE item_id = ? AND location_code = ?
		ORDER BY observed_at, id`, key.ItemID, key.Location)
	if err != nil {
		return nil, fmt.Errorf("observation: history: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var from, to string
		tr := Transition{Location: key.Location}
		if err := rows.Scan(&from, &to, &tr.Title, &tr.URL); err != nil {
			return nil, err
		}
		tr.From, tr.To = availability.Status(from), availability.Status(to)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Close closes the database if the store opened it.
func (s *SQLStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
