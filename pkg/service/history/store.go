// Package history keeps the catalog of past sessions of one identity scope.
package history

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/domain/model/session"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/utils/async"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
)

// DefaultThrottle is the write window used when none is configured
const DefaultThrottle = 500 * time.Millisecond

// maxRetryDelay caps the backoff of failed catalog writes
const maxRetryDelay = 30 * time.Second

// Store is the durable catalog of sessions. Upserts are deduplicated by
// content and coalesced into at most one physical write per throttle window.
// Until a write succeeds the in-memory catalog is authoritative.
type Store struct {
	id       string
	scope    types.Scope
	storage  interfaces.CatalogStorage
	notifier interfaces.Notifier
	window   time.Duration
	onError  func(ctx context.Context, err error)

	// writeMu serializes physical writes
	writeMu sync.Mutex

	mu       sync.Mutex
	catalog  session.Catalog
	dirty    bool
	version  uint64
	lastHash [sha256.Size]byte
	timer    *time.Timer
	retry    time.Duration
	closed   bool
}

type Option func(*Store)

// WithThrottle sets the write window
func WithThrottle(d time.Duration) Option {
	return func(s *Store) {
		s.window = d
	}
}

// WithNotifier sets the channel change notifications are published to
func WithNotifier(n interfaces.Notifier) Option {
	return func(s *Store) {
		s.notifier = n
	}
}

// WithErrorHandler sets the handler of failures of throttled writes, which
// have no caller to return an error to. errs.Handle is used by default.
func WithErrorHandler(f func(ctx context.Context, err error)) Option {
	return func(s *Store) {
		s.onError = f
	}
}

func New(storage interfaces.CatalogStorage, scope types.Scope, opts ...Option) *Store {
	s := &Store{
		id:      uuid.New().String(),
		scope:   scope,
		storage: storage,
		window:  DefaultThrottle,
		onError: errs.Handle,
		catalog: session.Catalog{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID identifies the store as Origin of the notifications it publishes
func (s *Store) ID() string {
	return s.id
}

func (s *Store) Scope() types.Scope {
	return s.scope
}

var contentOptions = cmp.Options{
	cmpopts.EquateEmpty(),
}

// sameContent compares what deduplication looks at: messages and draft flag
func sameContent(a, b *session.Session) bool {
	return a.IsDraft == b.IsDraft && cmp.Equal(a.Messages, b.Messages, contentOptions)
}

// Load returns the catalog most recent first. A catalog that cannot be read
// or parsed is an empty catalog.
func (s *Store) Load(ctx context.Context) session.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		if err := s.refreshLocked(ctx); err != nil {
			logging.From(ctx).Warn("failed to read history catalog, returning empty catalog",
				"error", err, "scope", s.scope)
			return session.Catalog{}
		}
	}
	return s.catalog.Clone()
}

// refreshLocked re-reads the storage. Parse failures reset the catalog to
// empty; read failures leave it untouched and are returned.
func (s *Store) refreshLocked(ctx context.Context) error {
	data, err := s.storage.Get(ctx, s.scope.CatalogKey())
	if err != nil {
		return goerr.Wrap(err, "failed to get catalog", goerr.TV(errs.ScopeKey, s.scope))
	}
	s.lastHash = sha256.Sum256(data)

	catalog, err := session.DecodeCatalog(data)
	if err != nil {
		logging.From(ctx).Warn("broken history catalog is replaced by an empty one",
			"error", err, "scope", s.scope)
		catalog = session.Catalog{}
	}
	s.catalog = catalog
	return nil
}

// Upsert inserts sess at the front or replaces the session with the same ID
// in place. It reports false without writing when messages and draft flag
// are unchanged.
func (s *Store) Upsert(ctx context.Context, sess *session.Session) (bool, error) {
	if sess == nil || sess.ID == "" {
		return false, goerr.New("session ID is required", goerr.T(errs.TagValidation))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, goerr.New("history store is closed", goerr.T(errs.TagInvalidState))
	}

	if !s.dirty {
		if err := s.refreshLocked(ctx); err != nil {
			logging.From(ctx).Warn("failed to read history catalog, upserting into the cached one",
				"error", err, "scope", s.scope)
		}
	}

	next := sess.Clone()
	if idx := s.catalog.Index(next); idx >= 0 {
		if sameContent(s.catalog[idx], next) {
			return false, nil
		}
		s.catalog[idx] = next
	} else {
		s.catalog = append(session.Catalog{next}, s.catalog...)
	}

	s.dirty = true
	s.version++
	s.scheduleLocked(ctx)
	return true, nil
}

// Save replaces the whole catalog and writes it immediately. A pending
// throttled write is superseded.
func (s *Store) Save(ctx context.Context, sessions session.Catalog) error {
	data, err := sessions.Encode()
	if err != nil {
		return err
	}
	// normalize duplicated IDs the same way Load does
	catalog, err := session.DecodeCatalog(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return goerr.New("history store is closed", goerr.T(errs.TagInvalidState))
	}
	s.catalog = catalog
	s.dirty = true
	s.version++
	s.mu.Unlock()

	return s.Flush(ctx)
}

// scheduleLocked arms the trailing write. An armed timer is never pushed
// back, so continuous upserts still flush once per window.
func (s *Store) scheduleLocked(ctx context.Context) {
	s.armLocked(ctx, s.window)
}

func (s *Store) armLocked(ctx context.Context, delay time.Duration) {
	if s.timer != nil || s.closed {
		return
	}

	bg := context.WithoutCancel(ctx)
	s.timer = time.AfterFunc(delay, func() {
		if err := s.Flush(bg); err != nil {
			s.onError(bg, err)
		}
	})
}

// retryLocked re-arms the write after a failure. The delay starts at one
// window and doubles up to maxRetryDelay.
func (s *Store) retryLocked(ctx context.Context) {
	if s.retry == 0 {
		s.retry = s.window
	} else {
		s.retry = min(s.retry*2, maxRetryDelay)
	}
	s.armLocked(ctx, s.retry)
}

// Flush writes the pending catalog now. It is a no-op when nothing is pending.
// A failed write stays pending and is retried in the background.
func (s *Store) Flush(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}

	version := s.version
	data, err := s.catalog.Encode()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	prevHash := s.lastHash
	// set before writing so the storage change feed does not report our own write as external
	s.lastHash = sha256.Sum256(data)
	s.mu.Unlock()

	if err := s.storage.Put(ctx, s.scope.CatalogKey(), data); err != nil {
		s.mu.Lock()
		s.lastHash = prevHash
		s.retryLocked(ctx)
		s.mu.Unlock()
		return goerr.Wrap(err, "failed to write history catalog",
			goerr.TV(errs.ScopeKey, s.scope),
			goerr.V("size", len(data)))
	}

	s.mu.Lock()
	if s.version == version {
		s.dirty = false
	}
	s.retry = 0
	s.mu.Unlock()

	logging.From(ctx).Debug("history catalog written", "scope", s.scope, "size", len(data))
	s.publish(ctx, s.id)
	return nil
}

func (s *Store) publish(ctx context.Context, origin string) {
	if s.notifier == nil {
		return
	}
	change := session.CatalogChange{Scope: s.scope, Origin: origin}
	if err := s.notifier.Publish(ctx, change); err != nil {
		s.onError(ctx, goerr.Wrap(err, "failed to publish catalog change", goerr.TV(errs.ScopeKey, s.scope)))
	}
}

// Subscribe delivers change notifications of the store's scope until ctx is
// cancelled. Observers re-Load on every notification.
func (s *Store) Subscribe(ctx context.Context) (<-chan session.CatalogChange, error) {
	if s.notifier == nil {
		return nil, goerr.New("history store has no notifier", goerr.T(errs.TagInvalidState))
	}
	return s.notifier.Subscribe(ctx, s.scope)
}

// Start observes mutations of the catalog made by other processes and
// republishes them as external changes. It is a no-op for storages without a
// change feed.
func (s *Store) Start(ctx context.Context) error {
	watcher, ok := s.storage.(interfaces.CatalogWatcher)
	if !ok {
		return nil
	}

	ch, err := watcher.Watch(ctx, s.scope.CatalogKey())
	if err != nil {
		return goerr.Wrap(err, "failed to watch history catalog", goerr.TV(errs.ScopeKey, s.scope))
	}

	async.Go(ctx, func(ctx context.Context) error {
		for range ch {
			s.checkExternal(ctx)
		}
		return nil
	})
	return nil
}

func (s *Store) checkExternal(ctx context.Context) {
	data, err := s.storage.Get(ctx, s.scope.CatalogKey())
	if err != nil {
		logging.From(ctx).Warn("failed to read changed catalog", "error", err, "scope", s.scope)
		return
	}

	hash := sha256.Sum256(data)
	s.mu.Lock()
	external := hash != s.lastHash
	if external {
		s.lastHash = hash
	}
	s.mu.Unlock()

	if external {
		logging.From(ctx).Debug("history catalog changed externally", "scope", s.scope)
		s.publish(ctx, session.OriginExternal)
	}
}

// Close writes any pending catalog. Upserts after Close fail.
func (s *Store) Close(ctx context.Context) error {
	err := s.Flush(ctx)

	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	return err
}
