// Package storage persists the item table and the vote ledger in SQLite.
//
// The ledger is written in full, tombstones included, so a restart can
// rebuild every rating by replay. Item ratings are stored as well; they are
// a cache that the loader checks against the replay.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/pairank/internal/domain/ledger"
	"github.com/okian/pairank/internal/domain/model"
	"github.com/okian/pairank/pkg/logger"
	"github.com/okian/pairank/pkg/metrics"
)

// Batch is one unit of work. It is applied in a single transaction.
type Batch struct {
	Items       []model.Item      // inserted or updated
	DeleteItems []string          // removed item ids
	Events      []ledger.Event    // new events and events whose tombstone changed
	Meta        map[string]string // session key/values
}

// Empty reports whether b carries no changes.
func (b Batch) Empty() bool {
	return len(b.Items) == 0 && len(b.DeleteItems) == 0 && len(b.Events) == 0 && len(b.Meta) == 0
}

// Snapshot is the persisted state of a session.
type Snapshot struct {
	Items  model.Collection
	Events []ledger.Event
	Meta   map[string]string
}

// Store is the SQLite persistence adapter.
type Store struct {
	mu      sync.Mutex
	db      *sql.DB
	logger  logger.Logger
	migrate bool
	closed  bool
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMigrateOnOpen applies pending migrations in Open.
func WithMigrateOnOpen(enabled bool) Option {
	return func(s *Store) {
		s.migrate = enabled
	}
}

// Open opens (or creates) the database at path. ":memory:" keeps the
// database in memory for the lifetime of the Store.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection: SQLite has a single writer, and an in-memory database
	// exists per connection.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:      db,
		logger:  logger.Nop(),
		migrate: true,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	pragmas := []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"}
	if path != ":memory:" && !strings.Contains(path, "mode=memory") {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if s.migrate {
		if err := s.MigrateUp(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	s.logger.Info(ctx, "storage opened", logger.String("path", path), logger.Bool("migrated", s.migrate))
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Apply writes b atomically.
func (s *Store) Apply(ctx context.Context, b Batch) (err error) {
	if b.Empty() {
		return nil
	}
	start := time.Now()
	defer func() { metrics.RecordPersistence("apply", time.Since(start), err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = upsertItems(ctx, tx, b.Items, s.now()); err != nil {
		return err
	}
	if err = deleteItems(ctx, tx, b.DeleteItems); err != nil {
		return err
	}
	if err = upsertEvents(ctx, tx, b.Events); err != nil {
		return err
	}
	if err = upsertMeta(ctx, tx, b.Meta); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func upsertItems(ctx context.Context, tx *sql.Tx, items []model.Item, now time.Time) error {
	if len(items) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (id, label, rating, deviation, volatility, votes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			rating = excluded.rating,
			deviation = excluded.deviation,
			volatility = excluded.volatility,
			votes = excluded.votes`)
	if err != nil {
		return fmt.Errorf("prepare items: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		r := it.Rating
		if _, err := stmt.ExecContext(ctx, it.ID, it.Label, r.Value, r.Deviation, r.Volatility, it.Votes, now.UnixNano()); err != nil {
			return fmt.Errorf("upsert item %s: %w", it.ID, err)
		}
	}
	return nil
}

func deleteItems(ctx context.Context, tx *sql.Tx, ids []string) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete item %s: %w", id, err)
		}
	}
	return nil
}

func upsertEvents(ctx context.Context, tx *sql.Tx, events []ledger.Event) error {
	if len(events) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO votes (
			seq, anchor, winner_id, loser_id, draw,
			winner_before_rating, winner_before_deviation, winner_before_volatility,
			loser_before_rating, loser_before_deviation, loser_before_volatility,
			recorded_at, removed_at, supersedes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO UPDATE SET removed_at = excluded.removed_at`)
	if err != nil {
		return fmt.Errorf("prepare votes: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		var removed sql.NullInt64
		if e.RemovedAt != nil {
			removed = sql.NullInt64{Int64: e.RemovedAt.UnixNano(), Valid: true}
		}
		wb, lb := e.WinnerBefore, e.LoserBefore
		if _, err := stmt.ExecContext(ctx,
			int64(e.Seq), int64(e.Anchor), e.WinnerID, e.LoserID, e.Draw,
			wb.Value, wb.Deviation, wb.Volatility,
			lb.Value, lb.Deviation, lb.Volatility,
			e.RecordedAt.UnixNano(), removed, int64(e.Supersedes),
		); err != nil {
			return fmt.Errorf("upsert vote %d: %w", e.Seq, err)
		}
	}
	return nil
}

func upsertMeta(ctx context.Context, tx *sql.Tx, meta map[string]string) error {
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			k, v); err != nil {
			return fmt.Errorf("upsert session %s: %w", k, err)
		}
	}
	return nil
}

// Load reads the whole persisted session.
func (s *Store) Load(ctx context.Context) (snap Snapshot, err error) {
	start := time.Now()
	defer func() { metrics.RecordPersistence("load", time.Since(start), err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}

	snap = Snapshot{Items: model.Collection{}, Meta: map[string]string{}}
	if err = s.loadItems(ctx, snap.Items); err != nil {
		return Snapshot{}, err
	}
	if snap.Events, err = s.loadEvents(ctx); err != nil {
		return Snapshot{}, err
	}
	if err = s.loadMeta(ctx, snap.Meta); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) loadItems(ctx context.Context, into model.Collection) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, label, rating, deviation, volatility, votes FROM items`)
	if err != nil {
		return fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it model.Item
		if err := rows.Scan(&it.ID, &it.Label, &it.Rating.Value, &it.Rating.Deviation, &it.Rating.Volatility, &it.Votes); err != nil {
			return fmt.Errorf("scan item: %w", err)
		}
		into[it.ID] = it
	}
	return rows.Err()
}

func (s *Store) loadEvents(ctx context.Context) ([]ledger.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, anchor, winner_id, loser_id, draw,
			winner_before_rating, winner_before_deviation, winner_before_volatility,
			loser_before_rating, loser_before_deviation, loser_before_volatility,
			recorded_at, removed_at, supersedes
		FROM votes ORDER BY anchor, seq`)
	if err != nil {
		return nil, fmt.Errorf("query votes: %w", err)
	}
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		var (
			e                       ledger.Event
			seq, anchor, supersedes int64
			recorded                int64
			removed                 sql.NullInt64
		)
		if err := rows.Scan(&seq, &anchor, &e.WinnerID, &e.LoserID, &e.Draw,
			&e.WinnerBefore.Value, &e.WinnerBefore.Deviation, &e.WinnerBefore.Volatility,
			&e.LoserBefore.Value, &e.LoserBefore.Deviation, &e.LoserBefore.Volatility,
			&recorded, &removed, &supersedes); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		e.Seq, e.Anchor, e.Supersedes = uint64(seq), uint64(anchor), uint64(supersedes)
		e.RecordedAt = time.Unix(0, recorded).UTC()
		if removed.Valid {
			at := time.Unix(0, removed.Int64).UTC()
			e.RemovedAt = &at
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) loadMeta(ctx context.Context, into map[string]string) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM session`)
	if err != nil {
		return fmt.Errorf("query session: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("scan session: %w", err)
		}
		into[k] = v
	}
	return rows.Err()
}
