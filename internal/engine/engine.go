package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/quickserve/possync/internal/entity"
	"github.com/quickserve/possync/internal/remote"
)

// Config holds tuning knobs for the engine. Zero values fall back to the
// defaults documented on DefaultConfig.
type Config struct {
	// TenantID scopes this engine instance to one restaurant's data.
	TenantID string

	// ReconcileInterval is how often a periodic full sync runs.
	ReconcileInterval time.Duration

	// SweepInterval is how often the ghost sweeper runs.
	SweepInterval time.Duration

	// RebuildInterval is how often the order reconstructor runs.
	RebuildInterval time.Duration

	// UploadPoll is how often the uploader checks the change queue.
	UploadPoll time.Duration

	// UploadBackoff schedules retries of failed uploads.
	UploadBackoff Backoff

	// ListenerBackoff schedules listener reconnects.
	ListenerBackoff Backoff

	// MaxUploadRetries is the retry count after which a stuck change is
	// surfaced through the notifier. The change stays in the queue and
	// keeps retrying; it is never silently dropped.
	MaxUploadRetries int

	// MaxDeleteBatch is the backend's per-commit write ceiling. Remote
	// batch deletes are chunked to stay under it.
	MaxDeleteBatch int

	// TaxRate applies when reconstructing orders from orphaned items.
	TaxRate float64

	// Logger for engine activity.
	Logger *log.Logger
}

// DefaultConfig returns production defaults: 5m reconcile, 30m maintenance
// sweeps, 250ms upload poll, 1s-based backoffs, and the backend's 500-op
// batch ceiling.
func DefaultConfig() *Config {
	return &Config{
		ReconcileInterval: 5 * time.Minute,
		SweepInterval:     30 * time.Minute,
		RebuildInterval:   30 * time.Minute,
		UploadPoll:        250 * time.Millisecond,
		UploadBackoff:     Backoff{Base: time.Second, Cap: 2 * time.Minute},
		ListenerBackoff:   Backoff{Base: time.Second, Cap: time.Minute},
		MaxUploadRetries:  8,
		MaxDeleteBatch:    500,
		TaxRate:           0.13,
		Logger:            log.New(os.Stderr, "[engine] ", log.LstdFlags),
	}
}

// Sentinel errors for coalesced triggers. Callers may treat these as
// success: the requested pass is already running.
var (
	ErrSyncInFlight    = errors.New("engine: reconciliation already in flight")
	ErrSweepInFlight   = errors.New("engine: ghost sweep already in flight")
	ErrRebuildInFlight = errors.New("engine: order reconstruction already in flight")
)

// Engine is the synchronization engine for one tenant session.
//
// Construct with New, call Start to launch the background activities, and
// Stop to tear them down. One instance serves one tenant; switching tenants
// means stopping this engine and constructing a new one, which guarantees
// no event from the old tenant is applied under the new tenant's context.
type Engine struct {
	cfg    *Config
	store  Storage
	remote remote.Store
	notify Notifier
	log    *log.Logger

	// locks serializes local writes per entity type so a listener-applied
	// remote update cannot interleave with a reconciler pass on the same
	// type. Different types never block each other.
	locks map[entity.Type]*sync.Mutex

	reconciling atomic.Bool
	sweeping    atomic.Bool
	rebuilding  atomic.Bool

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// New creates an engine instance holding its dependencies explicitly.
func New(cfg *Config, store Storage, rs remote.Store, notify Notifier) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.TenantID == "" {
		return nil, fmt.Errorf("tenant id cannot be empty")
	}
	if store == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if rs == nil {
		return nil, fmt.Errorf("remote store cannot be nil")
	}
	if notify == nil {
		notify = NotifierFuncs{}
	}

	// Backfill unset knobs from defaults so partial configs stay sane.
	def := DefaultConfig()
	if cfg.ReconcileInterval == 0 {
		cfg.ReconcileInterval = def.ReconcileInterval
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.RebuildInterval == 0 {
		cfg.RebuildInterval = def.RebuildInterval
	}
	if cfg.UploadPoll == 0 {
		cfg.UploadPoll = def.UploadPoll
	}
	if cfg.UploadBackoff.Base == 0 {
		cfg.UploadBackoff = def.UploadBackoff
	}
	if cfg.ListenerBackoff.Base == 0 {
		cfg.ListenerBackoff = def.ListenerBackoff
	}
	if cfg.MaxUploadRetries == 0 {
		cfg.MaxUploadRetries = def.MaxUploadRetries
	}
	if cfg.MaxDeleteBatch == 0 {
		cfg.MaxDeleteBatch = def.MaxDeleteBatch
	}
	if cfg.TaxRate == 0 {
		cfg.TaxRate = def.TaxRate
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}

	locks := make(map[entity.Type]*sync.Mutex, len(entity.AllTypes()))
	for _, t := range entity.AllTypes() {
		locks[t] = &sync.Mutex{}
	}

	return &Engine{
		cfg:    cfg,
		store:  store,
		remote: rs,
		notify: notify,
		log:    cfg.Logger,
		locks:  locks,
	}, nil
}

// Start launches the uploader, one listener lane per entity type, and the
// periodic reconcile/sweep/rebuild timers, then kicks off the login-time
// full sync. It returns immediately; call Stop to shut everything down.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	e.started = true
	ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	if err := e.initCursors(ctx); err != nil {
		return fmt.Errorf("failed to initialize sync cursors: %w", err)
	}

	e.log.Printf("Starting sync engine for tenant %s", e.cfg.TenantID)

	e.wg.Add(1)
	go e.runUploader(ctx)

	for _, t := range entity.AllTypes() {
		e.wg.Add(1)
		go e.runListener(ctx, t)
	}

	e.wg.Add(3)
	go e.runPeriodic(ctx, e.cfg.ReconcileInterval, "reconcile", func() {
		if err := e.Reconcile(ctx); err != nil && !errors.Is(err, ErrSyncInFlight) {
			e.notify.SyncError(err)
		}
	})
	go e.runPeriodic(ctx, e.cfg.SweepInterval, "sweep", func() {
		if _, err := e.SweepGhosts(ctx); err != nil && !errors.Is(err, ErrSweepInFlight) {
			e.notify.SyncError(err)
		}
	})
	go e.runPeriodic(ctx, e.cfg.RebuildInterval, "rebuild", func() {
		if _, err := e.RebuildOrders(ctx); err != nil && !errors.Is(err, ErrRebuildInFlight) {
			e.notify.SyncError(err)
		}
	})

	// Login-time full sync closes any gap accumulated while offline.
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.Reconcile(ctx); err != nil && !errors.Is(err, ErrSyncInFlight) {
			e.notify.SyncError(fmt.Errorf("startup sync failed: %w", err))
		}
	}()

	return nil
}

// Stop cancels all background activity and waits for it to finish.
// In-flight listener subscriptions are torn down before Stop returns, so a
// subsequent engine for another tenant cannot observe stale events.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.started = false
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	e.log.Printf("Stopping sync engine for tenant %s", e.cfg.TenantID)
	cancel()
	e.wg.Wait()
	e.log.Printf("Sync engine stopped")
}

// runPeriodic ticks fn at the given interval until ctx is cancelled.
func (e *Engine) runPeriodic(ctx context.Context, interval time.Duration, name string, fn func()) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.log.Printf("Periodic %s pass", name)
			fn()
		}
	}
}

// initCursors makes sure every entity type has a persisted cursor row, so
// restart-time decisions never read missing state.
func (e *Engine) initCursors(ctx context.Context) error {
	for _, t := range entity.AllTypes() {
		cur, err := e.store.Cursor(ctx, t)
		if err != nil {
			return err
		}
		cur.ListenerActive = false
		if err := e.store.PutCursor(ctx, cur); err != nil {
			return err
		}
	}
	return nil
}

// lockType enters the exclusive writer section for one entity type.
func (e *Engine) lockType(t entity.Type) func() {
	mu, ok := e.locks[t]
	if !ok {
		// Unknown type: writes to it are a programming error upstream,
		// but do not panic the sync loops.
		mu = &sync.Mutex{}
	}
	mu.Lock()
	return mu.Unlock
}

// ===== Local mutation API (the business layer's write path) =====

// Put commits a local mutation: writes the record to the local store
// synchronously, then enqueues it for upload. The write never waits on the
// network; any remote failure surfaces later through the notifier.
func (e *Engine) Put(ctx context.Context, t entity.Type, rec *entity.Record) error {
	if !t.Valid() {
		return fmt.Errorf("unknown entity type %q", t)
	}
	if rec.TenantID == "" {
		rec.TenantID = e.cfg.TenantID
	}
	rec.Touch()
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid %s record: %w", t, err)
	}

	unlock := e.lockType(t)
	defer unlock()

	if err := e.store.Upsert(ctx, t, rec); err != nil {
		// Local persistence failures are the one fatal class: the
		// mutation did not commit.
		return fmt.Errorf("local write failed: %w", err)
	}
	return e.enqueue(ctx, t, entity.OpUpsert, rec)
}

// putIfAbsent commits rec only if the local store holds no version of it,
// tombstones included. The existence check and the write happen under the
// type's writer lock, so a record applied concurrently (a listener
// delivering the real parent during a reconstruction pass) can never be
// overwritten by the synthesized one. Reports whether the write happened.
func (e *Engine) putIfAbsent(ctx context.Context, t entity.Type, rec *entity.Record) (bool, error) {
	if !t.Valid() {
		return false, fmt.Errorf("unknown entity type %q", t)
	}
	if rec.TenantID == "" {
		rec.TenantID = e.cfg.TenantID
	}

	unlock := e.lockType(t)
	defer unlock()

	existing, err := e.store.Get(ctx, t, rec.ID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	rec.Touch()
	if err := rec.Validate(); err != nil {
		return false, fmt.Errorf("invalid %s record: %w", t, err)
	}
	if err := e.store.Upsert(ctx, t, rec); err != nil {
		return false, fmt.Errorf("local write failed: %w", err)
	}
	return true, e.enqueue(ctx, t, entity.OpUpsert, rec)
}

// Delete commits a local deletion as a tombstone upsert, preserving the
// record so remote peers can distinguish deletion from never-seen.
func (e *Engine) Delete(ctx context.Context, t entity.Type, id string) error {
	if !t.Valid() {
		return fmt.Errorf("unknown entity type %q", t)
	}

	unlock := e.lockType(t)
	defer unlock()

	rec, err := e.store.Get(ctx, t, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil // nothing to delete
	}
	rec.Deleted = true
	rec.Touch()

	if err := e.store.Upsert(ctx, t, rec); err != nil {
		return fmt.Errorf("local delete failed: %w", err)
	}
	return e.enqueue(ctx, t, entity.OpUpsert, rec)
}

// enqueue appends a ChangeRecord for an already-committed local mutation.
// Callers hold the entity type's writer lock.
func (e *Engine) enqueue(ctx context.Context, t entity.Type, op entity.Op, rec *entity.Record) error {
	now := time.Now().UTC()
	c := &entity.ChangeRecord{
		ID:            uuid.NewString(),
		EntityType:    t,
		EntityID:      rec.ID,
		Op:            op,
		Timestamp:     rec.LastModified,
		EnqueuedAt:    now,
		NextAttemptAt: now,
	}
	if op == entity.OpUpsert {
		c.Record = rec.Clone()
	}
	if err := e.store.AppendChange(ctx, c); err != nil {
		return fmt.Errorf("failed to enqueue change for %s/%s: %w", t, rec.ID, err)
	}
	return nil
}

// ManualSync triggers a full reconciliation pass on demand. A pass already
// in flight is coalesced rather than interrupted.
func (e *Engine) ManualSync(ctx context.Context) error {
	err := e.Reconcile(ctx)
	if errors.Is(err, ErrSyncInFlight) {
		return nil
	}
	return err
}

// DrainOnce pushes queued changes until the queue is empty or stops
// shrinking (every remaining change is failing or backing off). One-shot
// commands use this so the device leaves fully pushed when possible.
func (e *Engine) DrainOnce(ctx context.Context) error {
	prev := -1
	for {
		if err := e.drainQueue(ctx); err != nil {
			return err
		}
		depth, err := e.store.QueueDepth(ctx)
		if err != nil {
			return err
		}
		if depth == 0 || depth == prev {
			return nil
		}
		prev = depth
	}
}
