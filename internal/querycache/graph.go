// Package querycache implements a keyed, dependency-gated asynchronous read
// cache for on-chain state. Entries are identified by composite (name, param)
// tuples; equal tuples share a single entry, which guarantees at most one
// outstanding fetch per key and consistent snapshots across all consumers.
package querycache

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"liquidityHub/internal/model"
)

// Status is the lifecycle state of a cache entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Key is a composite cache key: a logical name plus its parameters rendered
// as a canonical string, e.g. {Name: "positionMetadata", Param: "137:42"}.
type Key struct {
	Name  string
	Param string
}

func (k Key) String() string {
	return k.Name + "[" + k.Param + "]"
}

// Fetcher loads the value for one key.
type Fetcher func(ctx context.Context) (any, error)

// Snapshot is a read-only copy of a cache entry. Value is set iff Status is
// success; Err is set iff Status is error. Version increases with every
// completed fetch, so two snapshots of the same key with equal versions are
// guaranteed to come from the same fetch generation.
type Snapshot struct {
	Key     Key
	Status  Status
	Value   any
	Err     error
	Version uint64
}

type entry struct {
	status  Status
	value   any
	err     error
	version uint64
	gen     uint64
	done    chan struct{}
}

// Graph owns the cache entries. It is the only writer: values enter through
// fetch completion and leave through invalidation, nothing else mutates them.
type Graph struct {
	mu         sync.Mutex
	entries    map[Key]*entry
	dependents map[string][]string
	scope      string
	logger     *zap.Logger
}

// NewGraph builds an empty graph.
func NewGraph(logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{
		entries:    make(map[Key]*entry),
		dependents: make(map[string][]string),
		logger:     logger,
	}
}

// Declare registers that values under name are derived from the named
// dependencies: invalidating a dependency also invalidates name. Declarations
// are per logical name, not per parameter.
func (g *Graph) Declare(name string, dependsOn ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, dep := range dependsOn {
		g.dependents[dep] = append(g.dependents[dep], name)
	}
}

// SetScope switches the selection identity (token/network/position). Fetches
// started under a previous scope complete against dead air: their results are
// discarded instead of being written into entries for the new selection.
func (g *Graph) SetScope(scope string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.scope == scope {
		return
	}
	g.logger.Debug("cache scope switch", zap.String("from", g.scope), zap.String("to", scope))
	g.scope = scope
}

// Get returns the current snapshot for key, starting a fetch only when the
// entry is enabled and idle. A resolved entry, success or error alike, is
// served as is until it is invalidated; there is no automatic retry. A
// disabled key stays idle and never invokes the fetcher. Concurrent calls
// for the same key attach to the existing in-flight request.
func (g *Graph) Get(ctx context.Context, key Key, fetch Fetcher, enabled bool) Snapshot {
	g.mu.Lock()
	e, ok := g.entries[key]
	if !ok {
		e = &entry{status: StatusIdle}
		g.entries[key] = e
	}

	if !enabled || fetch == nil || e.status != StatusIdle {
		snap := snapshotLocked(key, e)
		g.mu.Unlock()
		return snap
	}
	e.status = StatusLoading
	e.err = nil
	e.done = make(chan struct{})
	scope := g.scope
	gen := e.gen
	done := e.done
	snap := snapshotLocked(key, e)
	g.mu.Unlock()

	go g.runFetch(ctx, key, fetch, scope, gen, done)
	return snap
}

func (g *Graph) runFetch(ctx context.Context, key Key, fetch Fetcher, scope string, gen uint64, done chan struct{}) {
	value, err := fetch(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	defer close(done)

	e, ok := g.entries[key]
	if !ok {
		return
	}
	if g.scope != scope || e.gen != gen {
		// Stale completion: the selection moved on or the entry was
		// invalidated while the fetch was in flight.
		g.logger.Debug("discard stale fetch result", zap.Stringer("key", key))
		if e.status == StatusLoading && e.done == done {
			e.status = StatusIdle
			e.done = nil
		}
		return
	}

	e.done = nil
	e.version++
	if err != nil {
		e.status = StatusError
		e.err = err
		e.value = nil
		g.logger.Warn("fetch failed", zap.Stringer("key", key), zap.Error(err))
		return
	}
	e.status = StatusSuccess
	e.value = value
	e.err = nil
	g.logger.Debug("fetch complete", zap.Stringer("key", key), zap.Uint64("version", e.version))
}

// GetWait behaves like Get but blocks until the entry leaves the loading
// state. Fetch failures are returned wrapped as FetchFailed; a disabled key
// returns its idle snapshot immediately.
func (g *Graph) GetWait(ctx context.Context, key Key, fetch Fetcher, enabled bool) (Snapshot, error) {
	for {
		snap := g.Get(ctx, key, fetch, enabled)
		switch snap.Status {
		case StatusSuccess, StatusIdle:
			return snap, nil
		case StatusError:
			return snap, fmt.Errorf("fetch %s: %v: %w", key, snap.Err, model.FetchFailed)
		}

		g.mu.Lock()
		e := g.entries[key]
		var done chan struct{}
		if e != nil && e.status == StatusLoading {
			done = e.done
		}
		g.mu.Unlock()

		if done == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-done:
		}
	}
}

// Snapshot returns the current state of key without triggering a fetch.
func (g *Graph) Snapshot(key Key) (Snapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[key]
	if !ok {
		return Snapshot{Key: key, Status: StatusIdle}, false
	}
	return snapshotLocked(key, e), true
}

// Invalidate marks every entry under name (all params when param is empty)
// stale, along with every declared dependent, transitively. The next Get for
// an invalidated key refetches even if it previously succeeded.
func (g *Graph) Invalidate(name, param string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	names := map[string]bool{}
	g.collectDependents(name, names)
	for target := range names {
		for key, e := range g.entries {
			if key.Name != target {
				continue
			}
			if param != "" && target == name && key.Param != param {
				continue
			}
			g.invalidateEntryLocked(key, e)
		}
	}
}

// InvalidateAll resets every entry, e.g. on logout or network switch.
func (g *Graph) InvalidateAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, e := range g.entries {
		g.invalidateEntryLocked(key, e)
	}
}

func (g *Graph) collectDependents(name string, into map[string]bool) {
	if into[name] {
		return
	}
	into[name] = true
	for _, dep := range g.dependents[name] {
		g.collectDependents(dep, into)
	}
}

func (g *Graph) invalidateEntryLocked(key Key, e *entry) {
	e.gen++
	e.status = StatusIdle
	e.value = nil
	e.err = nil
	e.done = nil
	g.logger.Debug("invalidate", zap.Stringer("key", key))
}

func snapshotLocked(key Key, e *entry) Snapshot {
	return Snapshot{
		Key:     key,
		Status:  e.status,
		Value:   e.value,
		Err:     e.err,
		Version: e.version,
	}
}

// Value extracts a typed value from a snapshot. It returns false when the
// entry is not in the success state or holds a different type.
func Value[T any](s Snapshot) (T, bool) {
	var zero T
	if s.Status != StatusSuccess {
		return zero, false
	}
	v, ok := s.Value.(T)
	if !ok {
		return zero, false
	}
	return v, ok
}
