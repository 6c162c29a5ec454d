// Package service runs one ranking session: it owns the item collection
// and the vote ledger and implements the dependencies of the HTTP API.
//
// Every mutation is one unit of work under a single mutex. It is computed
// on copies of the collection and ledger, persisted, and only then swapped
// in, so a failed vote or replay leaves the session untouched.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pairank/internal/adapters/repository"
	"github.com/okian/pairank/internal/adapters/storage"
	"github.com/okian/pairank/internal/domain/dedupe"
	"github.com/okian/pairank/internal/domain/engine"
	"github.com/okian/pairank/internal/domain/ledger"
	"github.com/okian/pairank/internal/domain/model"
	"github.com/okian/pairank/internal/domain/rating"
	"github.com/okian/pairank/internal/domain/reliability"
	"github.com/okian/pairank/internal/domain/selection"
	"github.com/okian/pairank/pkg/logger"
	"github.com/okian/pairank/pkg/metrics"
)

// Meta keys stored with the session.
const (
	MetaSessionID   = "session_id"
	MetaRatingModel = "rating_model"
)

// divergenceTolerance is the largest rating difference between live state
// and a replay that is not reported.
const divergenceTolerance = 1e-9

// Persistence stores the session durably.
type Persistence interface {
	Load(ctx context.Context) (storage.Snapshot, error)
	Apply(ctx context.Context, b storage.Batch) error
}

// Service implements the API dependencies for a ranking session.
type Service struct {
	mu sync.RWMutex

	// Core components
	engine   *engine.Engine
	selector *selection.Selector
	store    Persistence
	rankings repository.Store
	deduper  dedupe.Deduper

	// Configuration
	dedupeSize       int
	replayCheckEvery int
	now              func() time.Time

	// State
	items     model.Collection
	ledger    *ledger.Ledger
	sessionID string
	sinceLast int // votes since the last replay check
	started   bool

	logger logger.Logger
	base   logger.Logger // logger without the session field
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithEngine sets the rating engine.
func WithEngine(e *engine.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithSelector sets the pair selector.
func WithSelector(sel *selection.Selector) Option {
	return func(s *Service) {
		if sel != nil {
			s.selector = sel
		}
	}
}

// WithPersistence sets the durable store. Without one the session lives
// in memory only.
func WithPersistence(p Persistence) Option {
	return func(s *Service) {
		s.store = p
	}
}

// WithRankings sets the rankings index.
func WithRankings(r repository.Store) Option {
	return func(s *Service) {
		if r != nil {
			s.rankings = r
		}
	}
}

// WithDeduper sets the request id cache used for idempotent votes.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithDedupeSize sets the size of the default request id cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithReplayCheckEvery makes the service replay the ledger after every n
// votes and report any divergence from the live ratings. 0 disables it.
func WithReplayCheckEvery(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.replayCheckEvery = n
		}
	}
}

// WithClock sets the time source used for ledger timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Components not supplied are created by Start.
func New(opts ...Option) *Service {
	s := &Service{
		dedupeSize: 50000,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// defaultEngine is a Dynamic-K engine with the default reliability curve.
func defaultEngine() (*engine.Engine, error) {
	m, err := rating.New(rating.KindDynamic)
	if err != nil {
		return nil, err
	}
	est, err := reliability.New()
	if err != nil {
		return nil, err
	}
	return engine.New(m, est, model.Rating{Value: 1000, Deviation: 350, Volatility: 0.06}), nil
}

// Start loads the persisted session, replays its ledger and seeds the
// rankings. Starting a started service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.base == nil {
		if s.logger == nil {
			s.logger = logger.Get().Named("service")
		}
		s.base = s.logger
	}
	if s.engine == nil {
		e, err := defaultEngine()
		if err != nil {
			return fmt.Errorf("default engine: %w", err)
		}
		s.engine = e
	}
	if s.selector == nil {
		s.selector = selection.New(selection.WithLogger(s.logger))
	}
	if s.rankings == nil {
		s.rankings = repository.NewTreapStore()
	}
	if s.deduper == nil {
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	}

	s.logger.Info(ctx, "starting ranking service...",
		logger.String("model", string(s.engine.Model().Kind())))

	items, l, err := s.load(ctx)
	if err != nil {
		return err
	}
	s.items, s.ledger = items, l
	s.logger = s.base.With(logger.String("session", s.sessionID))
	s.rankings.Reset(ctx, items)
	s.updateSessionMetrics()

	s.started = true
	s.logger.Info(ctx, "ranking service started",
		logger.Int("items", len(items)),
		logger.Int("votes", l.Len()),
		logger.Float64("reliability", s.reliabilityLocked()))
	return nil
}

// load restores the persisted session. The stored ratings are only a cache:
// they are replaced by a replay of the ledger, and a mismatch is reported.
func (s *Service) load(ctx context.Context) (model.Collection, *ledger.Ledger, error) {
	if s.store == nil {
		s.sessionID = uuid.NewString()
		return model.Collection{}, ledger.New(), nil
	}

	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load session: %w", err)
	}
	l, err := ledger.Restore(snap.Events)
	if err != nil {
		return nil, nil, fmt.Errorf("restore ledger: %w", err)
	}

	start := time.Now()
	items, err := s.engine.Replay(ctx, l, snap.Items)
	if err != nil {
		return nil, nil, fmt.Errorf("replay ledger: %w", err)
	}
	metrics.RecordReplay("load", time.Since(start))

	batch := storage.Batch{Meta: map[string]string{}}
	if diverged := engine.Diverged(snap.Items, items, divergenceTolerance); len(diverged) > 0 {
		metrics.RecordReplayDivergence()
		s.logger.Warn(ctx, "stored ratings differ from ledger replay, using replay",
			logger.Int("items", len(diverged)),
			logger.String("previous_model", snap.Meta[MetaRatingModel]))
		batch.Items = items.Sorted()
	}

	s.sessionID = snap.Meta[MetaSessionID]
	if s.sessionID == "" {
		s.sessionID = uuid.NewString()
		batch.Meta[MetaSessionID] = s.sessionID
	}
	if kind := string(s.engine.Model().Kind()); snap.Meta[MetaRatingModel] != kind {
		batch.Meta[MetaRatingModel] = kind
	}
	if err := s.store.Apply(ctx, batch); err != nil {
		return nil, nil, fmt.Errorf("persist session: %w", err)
	}
	return items, l, nil
}

// Stop marks the service stopped. The persistence layer is closed by its owner.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "ranking service stopped")
}

// commit persists b and then installs items and l as the session state.
// When full is set the rankings are rebuilt, otherwise only b.Items move.
func (s *Service) commit(ctx context.Context, items model.Collection, l *ledger.Ledger, b storage.Batch, full bool) error {
	if s.store != nil {
		if err := s.store.Apply(ctx, b); err != nil {
			metrics.RecordErrorByComponent("service", "persistence")
			return fmt.Errorf("persist: %w", err)
		}
	}
	s.items, s.ledger = items, l

	if full {
		s.rankings.Reset(ctx, items)
	} else {
		for _, it := range b.Items {
			s.rankings.Upsert(ctx, it)
		}
	}
	s.updateSessionMetrics()
	return nil
}

// replay recomputes items against l from the baseline.
func (s *Service) replay(ctx context.Context, cause string, l *ledger.Ledger, items model.Collection) (model.Collection, error) {
	start := time.Now()
	out, err := s.engine.Replay(ctx, l, items)
	if err != nil {
		metrics.RecordRatingError()
		return nil, fmt.Errorf("replay: %w", err)
	}
	metrics.RecordReplay(cause, time.Since(start))
	return out, nil
}

func (s *Service) reliabilityLocked() float64 {
	return s.engine.Reliability(s.ledger.Len(), s.items)
}

func (s *Service) updateSessionMetrics() {
	metrics.UpdateSession(s.reliabilityLocked(), len(s.items), s.ledger.Len())
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":    s.started,
		"dedupeSize": s.dedupeSize,
	}
	if s.started {
		r := s.reliabilityLocked()
		stats["session"] = s.sessionID
		stats["model"] = string(s.engine.Model().Kind())
		stats["items"] = len(s.items)
		stats["votes"] = s.ledger.Len()
		stats["ledgerEvents"] = len(s.ledger.Audit())
		stats["reliability"] = r
		stats["phase"] = string(s.engine.Estimator().Phase(r))
		stats["dedupeEntries"] = s.deduper.Size()
		stats["persistent"] = s.store != nil
	}
	return stats
}

// SessionID returns the persisted session identifier.
func (s *Service) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}
