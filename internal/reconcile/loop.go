package reconcile

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shelf-sh/shelf/internal/domain"
	"github.com/shelf-sh/shelf/internal/logger"
)

// RemoteKind distinguishes the two change feed message variants.
type RemoteKind int

const (
	RemoteInsert RemoteKind = iota
	RemoteDelete
)

// RemoteEvent is one change feed notification. For deletes only the
// record ID is guaranteed to be populated.
type RemoteEvent struct {
	Kind   RemoteKind
	Record domain.Bookmark
}

// Store is the persistent store consumed by the loop. Owner scoping is
// enforced server-side; the engine re-checks it defensively.
type Store interface {
	ListAll(ctx context.Context) ([]domain.Bookmark, error)
	Insert(ctx context.Context, title, target string) (domain.Bookmark, error)
	DeleteByID(ctx context.Context, id string) error
}

// Loop serializes all engine mutations through a single goroutine.
//
// User commands, store responses and feed notifications are all posted
// as closures onto one channel, so the engine sees a strictly ordered
// event stream and needs no locking. Store round trips run in their own
// goroutines and post their results back, keeping the loop responsive
// while writes are in flight.
type Loop struct {
	engine    *Engine
	store     Store
	logger    logger.Logger
	opTimeout time.Duration

	cmds chan func()

	// pendingAdds tracks provisional IDs with a durable write in
	// flight; tombstones tracks provisional IDs the user deleted
	// before the write confirmed.
	pendingAdds map[string]bool
	tombstones  map[string]bool

	watchMu     sync.Mutex
	watchers    map[int]chan []domain.Bookmark
	nextWatcher int

	snapshotSink func([]domain.Bookmark)

	ready    atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewLoop creates the reconciliation loop. opTimeout bounds every store
// round trip; expiry is treated as a write failure.
func NewLoop(engine *Engine, store Store, log logger.Logger, opTimeout time.Duration) *Loop {
	return &Loop{
		engine:      engine,
		store:       store,
		logger:      log,
		opTimeout:   opTimeout,
		cmds:        make(chan func(), 64),
		pendingAdds: make(map[string]bool),
		tombstones:  make(map[string]bool),
		watchers:    make(map[int]chan []domain.Bookmark),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// SetSnapshotSink registers a best-effort consumer of every published
// snapshot (used for the redis warm-start cache). Must be called before
// Start.
func (l *Loop) SetSnapshotSink(sink func([]domain.Bookmark)) {
	l.snapshotSink = sink
}

// Start runs the loop goroutine until the context is cancelled or Stop
// is called.
func (l *Loop) Start(ctx context.Context) {
	go func() {
		defer close(l.done)
		for {
			select {
			case fn := <-l.cmds:
				fn()
			case <-l.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the loop goroutine.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Ready reports whether at least one full resync has succeeded.
func (l *Loop) Ready() bool {
	return l.ready.Load()
}

// SubmitAdd validates and normalizes the input, inserts a provisional
// entry at the head of the list and starts the durable write. The
// provisional bookmark is returned synchronously; the one-shot result
// channel carries the durable outcome.
//
// On write failure the provisional entry stays visible (no rollback, no
// automatic retry) and the failure is surfaced once via the result.
func (l *Loop) SubmitAdd(title, targetURL string) (domain.Bookmark, <-chan error, error) {
	cleanTitle, err := domain.ValidateTitle(title)
	if err != nil {
		return domain.Bookmark{}, nil, err
	}
	target, err := domain.NormalizeTarget(targetURL)
	if err != nil {
		return domain.Bookmark{}, nil, err
	}

	result := make(chan error, 1)
	reply := make(chan domain.Bookmark, 1)

	l.post(func() {
		bm := l.engine.InsertProvisional(cleanTitle, target)
		l.pendingAdds[bm.ID] = true
		l.publish()
		reply <- bm
		go l.persistAdd(bm.ID, cleanTitle, target, result)
	})

	select {
	case bm := <-reply:
		return bm, result, nil
	case <-l.done:
		return domain.Bookmark{}, nil, context.Canceled
	}
}

// SubmitDelete optimistically removes the entry and starts the durable
// delete. Deleting an ID not present in the list is a no-op, not an
// error. A failed durable delete triggers a full resync so the visible
// list converges back to the store's authoritative state.
func (l *Loop) SubmitDelete(id string) <-chan error {
	result := make(chan error, 1)

	l.post(func() {
		if !l.engine.RemoveLocal(id) {
			result <- nil
			return
		}
		l.publish()

		if l.pendingAdds[id] {
			// Write still in flight: remember the intent and delete
			// the durable row once the store assigns its real ID.
			l.tombstones[id] = true
			result <- nil
			return
		}
		if strings.HasPrefix(id, ProvisionalPrefix) {
			// Provisional entry whose write already failed; nothing
			// durable to remove.
			result <- nil
			return
		}
		go l.persistDelete(id, result)
	})

	return result
}

// Deliver applies one change feed notification.
func (l *Loop) Deliver(ev RemoteEvent) {
	l.post(func() {
		switch ev.Kind {
		case RemoteInsert:
			l.engine.MergeRemoteInsert(ev.Record)
		case RemoteDelete:
			l.engine.MergeRemoteDelete(ev.Record.ID)
		}
		l.publish()
	})
}

// Resync replaces the visible list with the store's authoritative set.
// Used at startup, on feed reconnect and as failed-delete recovery.
func (l *Loop) Resync(ctx context.Context) error {
	recs, err := l.store.ListAll(ctx)
	if err != nil {
		return err
	}

	applied := make(chan struct{})
	l.post(func() {
		l.engine.ReplaceAll(recs)
		l.ready.Store(true)
		l.publish()
		close(applied)
	})

	select {
	case <-applied:
	case <-l.done:
	}
	return nil
}

// Prime seeds the list from a cached snapshot before the first
// authoritative resync. Does not mark the loop ready.
func (l *Loop) Prime(recs []domain.Bookmark) {
	l.post(func() {
		l.engine.ReplaceAll(recs)
		l.publish()
	})
}

// Snapshot returns a read-only copy of the current visible list.
func (l *Loop) Snapshot() []domain.Bookmark {
	reply := make(chan []domain.Bookmark, 1)
	l.post(func() { reply <- l.engine.Snapshot() })

	select {
	case snap := <-reply:
		return snap
	case <-l.done:
		return nil
	}
}

// Watch registers a snapshot subscriber. The channel holds the latest
// snapshot only: a slow consumer sees the freshest state, not every
// intermediate one. The cancel func unregisters the subscriber.
func (l *Loop) Watch() (<-chan []domain.Bookmark, func()) {
	ch := make(chan []domain.Bookmark, 1)

	l.watchMu.Lock()
	id := l.nextWatcher
	l.nextWatcher++
	l.watchers[id] = ch
	l.watchMu.Unlock()

	cancel := func() {
		l.watchMu.Lock()
		delete(l.watchers, id)
		l.watchMu.Unlock()
	}
	return ch, cancel
}

func (l *Loop) post(fn func()) {
	select {
	case l.cmds <- fn:
	case <-l.done:
	}
}

func (l *Loop) persistAdd(provID, title, target string, result chan<- error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.opTimeout)
	defer cancel()

	rec, err := l.store.Insert(ctx, title, target)

	l.post(func() {
		delete(l.pendingAdds, provID)

		if err != nil {
			delete(l.tombstones, provID)
			l.logger.Error("durable write failed, provisional entry kept",
				logger.Error(err))
			result <- err
			return
		}

		if l.tombstones[provID] {
			// The user deleted the entry while the write was in
			// flight: honor the delete against the real row.
			delete(l.tombstones, provID)
			l.engine.MergeRemoteDelete(rec.ID)
			l.publish()
			go l.persistDelete(rec.ID, make(chan error, 1))
			result <- nil
			return
		}

		l.engine.Confirm(provID, rec)
		l.publish()
		result <- nil
	})
}

func (l *Loop) persistDelete(id string, result chan<- error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.opTimeout)
	defer cancel()

	err := l.store.DeleteByID(ctx, id)

	l.post(func() {
		if err == nil {
			result <- nil
			return
		}

		l.logger.Error("durable delete failed, resyncing from store",
			logger.String("id", id),
			logger.Error(err))
		result <- err

		go func() {
			rctx, rcancel := context.WithTimeout(context.Background(), l.opTimeout)
			defer rcancel()
			if rerr := l.Resync(rctx); rerr != nil {
				l.logger.Error("resync after failed delete failed",
					logger.Error(rerr))
			}
		}()
	})
}

func (l *Loop) publish() {
	snap := l.engine.Snapshot()

	l.watchMu.Lock()
	for _, ch := range l.watchers {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot and replace it.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	l.watchMu.Unlock()

	if l.snapshotSink != nil {
		go l.snapshotSink(snap)
	}
}
