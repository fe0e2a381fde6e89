// Package notify implements wait-for-all / done-with signalling.
//
// A caller registers a callback against a set of signal keys. Each key is
// satisfied at most once by DoneWith; when the last key of a wait is
// satisfied the callback fires, exactly once. Satisfied keys are retained
// until purged, so a wait registered after some of its keys are already
// done only waits for the rest.
//
// The interrupt engine uses it in two places: a paused node waits on its
// PAUSE_ALL interrupt ID and is resumed when a RESUME_ALL consumes it, and an
// aborting subtree fans completion up the tree by having each parent wait on
// its children.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

// ErrClosed is returned when registering on a closed Notifier.
var ErrClosed = errors.New("notifier is closed")

// Callback receives the result passed to DoneWith for every key of the wait.
type Callback func(ctx context.Context, results map[string]any)

// Option configures a Notifier.
type Option func(*Notifier) error

// WithPool runs callbacks on a bounded goroutine pool of the given size
// instead of on the goroutine that completed the wait. When every worker is
// busy the callback runs on the signalling goroutine.
func WithPool(size int) Option {
	return func(n *Notifier) error {
		if size <= 0 {
			return fmt.Errorf("pool size must be positive, got %d", size)
		}
		n.poolSize = size
		return nil
	}
}

// WithPanicHandler is called with the recovered value when a callback panics.
// Without it panics are swallowed.
func WithPanicHandler(h func(any)) Option {
	return func(n *Notifier) error {
		n.onPanic = h
		return nil
	}
}

type wait struct {
	id        string
	group     string
	keys      []string
	remaining map[string]struct{}
	cb        Callback
}

// Notifier is safe for concurrent use. Callbacks always run outside the
// internal lock, so a callback may register waits or call DoneWith.
type Notifier struct {
	mu     sync.Mutex
	done   map[string]any
	waits  map[string]*wait
	byKey  map[string]map[string]*wait
	closed bool

	poolSize int
	pool     *ants.Pool
	onPanic  func(any)
	inflight sync.WaitGroup
}

// New creates a Notifier.
func New(opts ...Option) (*Notifier, error) {
	n := &Notifier{
		done:  make(map[string]any),
		waits: make(map[string]*wait),
		byKey: make(map[string]map[string]*wait),
	}
	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}
	if n.poolSize > 0 {
		// Callbacks signal further keys from pool workers. A blocking Submit
		// would deadlock once every worker waits on a slot, so an overloaded
		// pool runs the callback inline instead.
		pool, err := ants.NewPool(n.poolSize, ants.WithPanicHandler(n.recovered), ants.WithNonblocking(true))
		if err != nil {
			return nil, fmt.Errorf("failed to create callback pool: %w", err)
		}
		n.pool = pool
	}
	return n, nil
}

// WaitForAllOn registers cb to fire once every key is done. Keys already
// done count immediately; an empty key set fires before WaitForAllOn
// returns. groupKey tags the wait for CancelGroup.
func (n *Notifier) WaitForAllOn(ctx context.Context, keys []string, cb Callback, groupKey string) (string, error) {
	if cb == nil {
		return "", errors.New("callback is required")
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return "", ErrClosed
	}
	w := &wait{
		id:        uuid.NewString(),
		group:     groupKey,
		remaining: make(map[string]struct{}, len(keys)),
		cb:        cb,
	}
	for _, k := range keys {
		if _, dup := w.remaining[k]; dup {
			continue
		}
		w.keys = append(w.keys, k)
		if _, ok := n.done[k]; !ok {
			w.remaining[k] = struct{}{}
		}
	}

	if len(w.remaining) == 0 {
		results := n.resultsLocked(w)
		n.mu.Unlock()
		n.fire(ctx, w.cb, results)
		return w.id, nil
	}

	n.waits[w.id] = w
	for k := range w.remaining {
		if n.byKey[k] == nil {
			n.byKey[k] = make(map[string]*wait)
		}
		n.byKey[k][w.id] = w
	}
	n.mu.Unlock()
	return w.id, nil
}

// DoneWith satisfies key with result and fires every wait it completes.
// It returns false, and changes nothing, if key was already done.
func (n *Notifier) DoneWith(ctx context.Context, key string, result any) bool {
	type ready struct {
		cb      Callback
		results map[string]any
	}

	n.mu.Lock()
	if _, ok := n.done[key]; ok {
		n.mu.Unlock()
		return false
	}
	n.done[key] = result

	var fired []ready
	for id, w := range n.byKey[key] {
		delete(w.remaining, key)
		if len(w.remaining) > 0 {
			continue
		}
		delete(n.waits, id)
		fired = append(fired, ready{cb: w.cb, results: n.resultsLocked(w)})
	}
	delete(n.byKey, key)
	n.mu.Unlock()

	for _, r := range fired {
		n.fire(ctx, r.cb, r.results)
	}
	return true
}

// IsDone reports whether key has been satisfied and not purged.
func (n *Notifier) IsDone(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.done[key]
	return ok
}

// CancelGroup drops every pending wait tagged with groupKey without firing
// it. Returns the number of waits dropped.
func (n *Notifier) CancelGroup(groupKey string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	dropped := 0
	for id, w := range n.waits {
		if w.group != groupKey {
			continue
		}
		n.removeLocked(w)
		delete(n.waits, id)
		dropped++
	}
	return dropped
}

// Purge forgets the retained results of keys so they can be signalled again.
func (n *Notifier) Purge(keys ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, k := range keys {
		delete(n.done, k)
	}
}

// Pending returns the number of waits that have not fired.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.waits)
}

// Close rejects further registrations, waits for pooled callbacks in flight
// and releases the pool. Pending waits are dropped.
func (n *Notifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.waits = make(map[string]*wait)
	n.byKey = make(map[string]map[string]*wait)
	n.mu.Unlock()

	n.inflight.Wait()
	if n.pool != nil {
		n.pool.Release()
	}
	return nil
}

func (n *Notifier) removeLocked(w *wait) {
	for k := range w.remaining {
		delete(n.byKey[k], w.id)
		if len(n.byKey[k]) == 0 {
			delete(n.byKey, k)
		}
	}
}

func (n *Notifier) resultsLocked(w *wait) map[string]any {
	results := make(map[string]any, len(w.keys))
	for _, k := range w.keys {
		results[k] = n.done[k]
	}
	return results
}

func (n *Notifier) fire(ctx context.Context, cb Callback, results map[string]any) {
	if n.pool == nil {
		defer func() {
			if r := recover(); r != nil {
				n.recovered(r)
			}
		}()
		cb(ctx, results)
		return
	}

	// Pooled callbacks outlive the signalling call.
	detached := context.WithoutCancel(ctx)
	n.inflight.Add(1)
	err := n.pool.Submit(func() {
		defer n.inflight.Done()
		cb(detached, results)
	})
	if err != nil {
		n.inflight.Done()
		func() {
			defer func() {
				if r := recover(); r != nil {
					n.recovered(r)
				}
			}()
			cb(ctx, results)
		}()
	}
}

func (n *Notifier) recovered(r any) {
	if n.onPanic != nil {
		n.onPanic(r)
	}
}
