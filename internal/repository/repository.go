// Package repository keeps the in-memory avatar collection consistent with
// durable storage.
//
// Every mutation follows the same protocol: apply the change to memory,
// encode the whole collection, and save it to the metadata store. When the
// save fails the change is reverted in memory and the caller gets an error
// wrapping [avatar.ErrPersistence], so memory never reports a state the
// store does not hold. Blobs are written before the metadata that references
// them and deleted only after the metadata that dropped them is durable.
//
// Calls on the same avatar are serialised; calls on different avatars run in
// parallel. Removing an avatar and deleting the whole collection are
// additionally gated so only one of them runs at a time.
package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/soundboard/internal/avatar"
	"github.com/MrWong99/soundboard/internal/blobstore"
	"github.com/MrWong99/soundboard/internal/cleanup"
	"github.com/MrWong99/soundboard/internal/codec"
	"github.com/MrWong99/soundboard/internal/ledger"
	"github.com/MrWong99/soundboard/internal/metastore"
	"github.com/MrWong99/soundboard/internal/observe"
)

// State is the load state of a [Repository].
type State int

const (
	// StateIdle means Load has not been called yet.
	StateIdle State = iota
	// StateLoading means a Load is in progress.
	StateLoading
	// StateReady means the collection mirrors the durable record.
	StateReady
	// StateError means the last Load failed; the collection is empty.
	StateError
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Scheduler accepts blob refs for deletion in the background.
// *cleanup.Cleaner satisfies it.
type Scheduler interface {
	Schedule(ctx context.Context, refs []string) error
}

// Event describes a change of the collection.
type Event struct {
	// Op is the method that caused the change, e.g. "AddVoice".
	Op string

	// Avatars is the collection after the change. Subscribers share it and
	// must not modify it.
	Avatars []avatar.Avatar

	// Selected is the selected avatar id, or "".
	Selected string

	State State
}

// Option configures a [Repository].
type Option func(*Repository)

// WithScheduler routes orphaned blob refs to s. By default the repository
// runs its own [cleanup.Cleaner] with an in-memory ledger.
func WithScheduler(s Scheduler) Option {
	return func(r *Repository) {
		r.scheduler = s
	}
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Repository) {
		r.metrics = m
	}
}

// WithClock overrides the clock used for CreatedAt and LastPlayed.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// WithStorageTimeout bounds every metadata and blob store call. Zero means
// no timeout.
func WithStorageTimeout(d time.Duration) Option {
	return func(r *Repository) {
		r.timeout = d
	}
}

// WithDiscardCorrupt makes Load clear a stored document that cannot be
// decoded and start empty, instead of failing.
func WithDiscardCorrupt(discard bool) Option {
	return func(r *Repository) {
		r.discardCorrupt = discard
	}
}

// Repository owns the avatar collection. Create it with [New] and call
// [Repository.Load] before mutating.
type Repository struct {
	meta      metastore.Store
	blobs     blobstore.Store
	scheduler Scheduler
	metrics   *observe.Metrics
	now       func() time.Time
	timeout   time.Duration

	discardCorrupt bool

	// collMu is held exclusively by Load and DeleteAll and shared by every
	// other mutation.
	collMu sync.RWMutex
	// avatarMu serialises mutations of one avatar.
	avatarMu keyedMutex
	// saveMu serialises metadata saves.
	saveMu sync.Mutex
	// deleting gates RemoveAvatar and DeleteAll.
	deleting atomic.Bool

	// mu guards the fields below. avatars is copy-on-write: it is replaced,
	// never modified in place, so a snapshot can be read without the lock.
	mu       sync.Mutex
	avatars  []avatar.Avatar
	selected string
	state    State
	lastErr  error
	gen      uint64
	savedGen uint64
	deferred []deferredRef

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// deferredRef is a blob written for a reverted change that the store may
// still reference. It is released by the first save of generation gen or
// later.
type deferredRef struct {
	ref string
	gen uint64
}

// New returns an idle repository over the given stores.
func New(meta metastore.Store, blobs blobstore.Store, opts ...Option) *Repository {
	r := &Repository{
		meta:    meta,
		blobs:   blobs,
		now:     time.Now,
		avatars: []avatar.Avatar{},
		subs:    make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	if r.scheduler == nil {
		r.scheduler = cleanup.New(blobs, ledger.NewMemLedger(), cleanup.WithMetrics(r.metrics))
	}
	return r
}

// State returns the current load state.
func (r *Repository) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastError returns the error of the last failed Load, or nil.
func (r *Repository) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Ready returns nil once the collection has been loaded.
func (r *Repository) Ready() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readyLocked()
}

func (r *Repository) readyLocked() error {
	if r.state == StateReady {
		return nil
	}
	if r.lastErr != nil {
		return fmt.Errorf("%w: state %s: %w", avatar.ErrNotReady, r.state, r.lastErr)
	}
	return fmt.Errorf("%w: state %s", avatar.ErrNotReady, r.state)
}

// Avatars returns a deep copy of the collection in display order.
func (r *Repository) Avatars() []avatar.Avatar {
	return avatar.CloneAll(r.snapshot())
}

// Avatar returns a copy of the avatar with the given id.
func (r *Repository) Avatar(id string) (avatar.Avatar, error) {
	snap := r.snapshot()
	i := avatar.IndexOf(snap, id)
	if i < 0 {
		return avatar.Avatar{}, fmt.Errorf("repository: avatar %q: %w", id, avatar.ErrNotFound)
	}
	return snap[i].Clone(), nil
}

// Select marks id as the selected avatar. An empty id clears the selection.
// The selection is not persisted.
func (r *Repository) Select(id string) error {
	r.mu.Lock()
	if id != "" && avatar.IndexOf(r.avatars, id) < 0 {
		r.mu.Unlock()
		return fmt.Errorf("repository: select %q: %w", id, avatar.ErrNotFound)
	}
	r.selected = id
	r.mu.Unlock()
	r.notify("Select")
	return nil
}

// Selected returns the selected avatar id, or "".
func (r *Repository) Selected() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// LastSync returns the time of the last successful save.
func (r *Repository) LastSync(ctx context.Context) (time.Time, bool, error) {
	ctx, cancel := r.storageCtx(ctx)
	defer cancel()
	t, ok, err := r.meta.LastSync(ctx)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("repository: last sync: %w: %w", avatar.ErrPersistence, err)
	}
	return t, ok, nil
}

// Subscribe registers fn to be called after every successful mutation and
// after every Load. fn runs on the mutating goroutine and must not call
// back into mutating methods. The returned function unregisters fn.
func (r *Repository) Subscribe(fn func(Event)) (cancel func()) {
	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
		})
	}
}

func (r *Repository) notify(op string) {
	r.mu.Lock()
	ev := Event{Op: op, Avatars: r.avatars, Selected: r.selected, State: r.state}
	r.mu.Unlock()

	r.subMu.Lock()
	subs := make([]func(Event), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.subMu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func (r *Repository) snapshot() []avatar.Avatar {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.avatars
}

func (r *Repository) storageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// persist saves the current collection. It always encodes the collection as
// it is when the save starts, so a successful save covers every change
// applied before it.
func (r *Repository) persist(ctx context.Context) error {
	r.saveMu.Lock()
	released, err := r.persistLocked(ctx)
	r.saveMu.Unlock()
	r.schedule(ctx, released)
	return err
}

// persistLocked saves the current collection and returns the deferred
// orphans the saved document no longer references. Must be called with
// r.saveMu held.
func (r *Repository) persistLocked(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	snap, gen := r.avatars, r.gen
	r.mu.Unlock()

	doc, err := codec.Encode(snap)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", avatar.ErrPersistence, err)
	}

	sctx, cancel := r.storageCtx(ctx)
	start := time.Now()
	err = r.meta.Save(sctx, doc)
	cancel()
	r.metrics.ObserveStorage(ctx, "metadata", "save", start, err)
	r.metrics.RecordSave(ctx, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", avatar.ErrPersistence, err)
	}

	r.mu.Lock()
	r.savedGen = max(r.savedGen, gen)
	var released []string
	r.deferred = slices.DeleteFunc(r.deferred, func(d deferredRef) bool {
		if d.gen > gen {
			return false
		}
		released = append(released, d.ref)
		return true
	})
	r.mu.Unlock()
	r.metrics.RecordCollection(ctx, len(snap), countVoices(snap))
	return released, nil
}

// commit installs avatars as the new collection and returns its generation.
// Must be called with r.mu held.
func (r *Repository) commitLocked(avatars []avatar.Avatar) uint64 {
	r.avatars = avatars
	r.gen++
	return r.gen
}

// rollback applies undo to the collection after the save of generation gen
// failed. If another save has meanwhile persisted gen, the store now holds
// the reverted change and is saved again.
//
// orphans are blobs written for the reverted change. They are deleted,
// except when the resave fails: the store may then still reference them,
// so they wait in r.deferred for the next save or Load that drops them.
func (r *Repository) rollback(ctx context.Context, op string, gen uint64, undo func([]avatar.Avatar) []avatar.Avatar, orphans ...string) {
	r.saveMu.Lock()
	r.mu.Lock()
	undoGen := r.commitLocked(undo(r.avatars))
	resync := r.savedGen >= gen
	r.mu.Unlock()

	var (
		released []string
		err      error
	)
	if resync {
		released, err = r.persistLocked(ctx)
		if err != nil && len(orphans) > 0 {
			r.mu.Lock()
			for _, ref := range orphans {
				r.deferred = append(r.deferred, deferredRef{ref: ref, gen: undoGen})
			}
			r.mu.Unlock()
		}
	}
	r.saveMu.Unlock()

	r.metrics.RecordRollback(ctx, op)
	log := observe.Logger(ctx)
	log.Warn("reverted in-memory change after failed save", "op", op)
	if err != nil {
		log.Error("resave after rollback failed; next save will correct the store",
			"op", op, "kept_blobs", len(orphans), "err", err)
		return
	}
	r.schedule(ctx, released)
	for _, ref := range orphans {
		r.discardBlob(ctx, ref)
	}
}

// releaseDeferredLocked drops the deferred orphans after a Load and returns
// those the loaded collection does not reference. Must be called with r.mu
// held.
func (r *Repository) releaseDeferredLocked() []string {
	if len(r.deferred) == 0 {
		return nil
	}
	live := make(map[string]bool)
	for _, a := range r.avatars {
		for _, ref := range a.BlobRefs() {
			live[ref] = true
		}
	}
	var released []string
	for _, d := range r.deferred {
		if !live[d.ref] {
			released = append(released, d.ref)
		}
	}
	r.deferred = nil
	return released
}

// schedule hands refs to the background cleaner. Failures are logged only.
func (r *Repository) schedule(ctx context.Context, refs []string) {
	if len(refs) == 0 {
		return
	}
	if err := r.scheduler.Schedule(ctx, refs); err != nil {
		observe.Logger(ctx).Warn("scheduling blob cleanup", "refs", len(refs), "err", err)
	}
}

// discardBlob removes a blob written for a change that did not persist.
func (r *Repository) discardBlob(ctx context.Context, ref string) {
	ctx = context.WithoutCancel(ctx)
	sctx, cancel := r.storageCtx(ctx)
	defer cancel()
	if err := r.blobs.Delete(sctx, ref); err != nil {
		observe.Logger(ctx).Warn("discarding unsaved blob failed, scheduling cleanup", "ref", ref, "err", err)
		r.schedule(ctx, []string{ref})
	}
}

func (r *Repository) putBlob(ctx context.Context, kind blobstore.Kind, key string, data []byte) (string, error) {
	sctx, cancel := r.storageCtx(ctx)
	defer cancel()
	start := time.Now()
	ref, err := r.blobs.Put(sctx, kind, key, data)
	r.metrics.ObserveStorage(ctx, "blob", "put", start, err)
	if err != nil {
		return "", fmt.Errorf("%w: store %s blob: %w", avatar.ErrPersistence, kind, err)
	}
	return ref, nil
}

// finish records the outcome of a public operation.
func (r *Repository) finish(ctx context.Context, op string, err error) {
	r.metrics.RecordMutation(ctx, op, err)
	if err != nil {
		observe.Logger(ctx).Debug("operation failed", "op", op, "err", err)
	}
}

func replaceAt(avatars []avatar.Avatar, i int, a avatar.Avatar) []avatar.Avatar {
	out := slices.Clone(avatars)
	out[i] = a
	return out
}

func countVoices(avatars []avatar.Avatar) int {
	n := 0
	for _, a := range avatars {
		n += len(a.Voices)
	}
	return n
}
