package reconcile

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/shelf-sh/shelf/internal/domain"
)

// ProvisionalPrefix marks client-generated placeholder IDs. The store
// never assigns IDs with this prefix, so a provisional entry can never
// collide with a confirmed one.
const ProvisionalPrefix = "local-"

// entry wraps a bookmark with the local insertion sequence used to
// break CreatedAt ties (most-recently-locally-inserted first).
type entry struct {
	bm  domain.Bookmark
	seq uint64
}

// Engine owns the canonical in-memory bookmark list for one session.
//
// It is a pure single-owner state machine: all three event sources
// (user action, store response, feed notification) are serialized
// through the Loop goroutine, so the engine itself carries no locks.
type Engine struct {
	owner   string
	list    []entry
	nextSeq uint64
}

// NewEngine creates an engine scoped to the authenticated owner.
// Records for any other owner never enter the list.
func NewEngine(owner string) *Engine {
	return &Engine{owner: owner}
}

// InsertProvisional places a new provisional entry at the head of the
// list and returns it. The true position relative to concurrent inserts
// from other sessions is unknown until confirmation, so head insertion
// is a deliberate approximation corrected by later merges.
func (e *Engine) InsertProvisional(title, target string) domain.Bookmark {
	bm := domain.Bookmark{
		ID:          ProvisionalPrefix + uuid.NewString(),
		Owner:       e.owner,
		Title:       title,
		Target:      target,
		CreatedAt:   time.Now().UTC(),
		Provisional: true,
	}

	e.nextSeq++
	e.list = append([]entry{{bm: bm, seq: e.nextSeq}}, e.list...)
	return bm
}

// Confirm replaces the provisional entry with the authoritative record
// returned by the store.
//
// Dedup rule: if the feed echo for the same insert was merged first,
// the record's store ID is already present and the provisional entry is
// simply dropped. If the provisional entry is gone (discarded by a full
// resync), the record is merged like any remote insert.
func (e *Engine) Confirm(provisionalID string, rec domain.Bookmark) {
	if rec.Owner != e.owner {
		return
	}

	if e.indexOf(rec.ID) >= 0 {
		e.remove(provisionalID)
		return
	}

	idx := e.indexOf(provisionalID)
	if idx < 0 {
		e.MergeRemoteInsert(rec)
		return
	}

	rec.Provisional = false
	e.list[idx].bm = rec // seq kept: same conceptual item
	e.sort()
}

// MergeRemoteInsert applies an insert notification from the change
// feed. Idempotent: a record whose ID is already present is a no-op.
func (e *Engine) MergeRemoteInsert(rec domain.Bookmark) {
	if rec.Owner != e.owner {
		return
	}
	if e.indexOf(rec.ID) >= 0 {
		return
	}

	rec.Provisional = false
	e.nextSeq++
	e.list = append(e.list, entry{bm: rec, seq: e.nextSeq})
	e.sort()
}

// MergeRemoteDelete applies a delete notification from the change
// feed. Idempotent: an absent ID is a no-op, which covers the case
// where this session already optimistically removed the entry.
func (e *Engine) MergeRemoteDelete(id string) {
	e.remove(id)
}

// RemoveLocal optimistically removes the entry with the given ID and
// reports whether it was present.
func (e *Engine) RemoveLocal(id string) bool {
	return e.remove(id)
}

// ReplaceAll swaps the list wholesale for the authoritative record set.
// Provisional entries not present in the set are discarded: they are
// presumed failed or superseded.
func (e *Engine) ReplaceAll(recs []domain.Bookmark) {
	fresh := make([]entry, 0, len(recs))

	// Decreasing seq within the batch keeps the authoritative order
	// for entries sharing a CreatedAt.
	base := e.nextSeq + uint64(len(recs))
	e.nextSeq = base

	for i, rec := range recs {
		if rec.Owner != e.owner {
			continue
		}
		rec.Provisional = false
		fresh = append(fresh, entry{bm: rec, seq: base - uint64(i)})
	}

	e.list = fresh
	e.sort()
}

// Snapshot returns a read-only copy of the visible list.
func (e *Engine) Snapshot() []domain.Bookmark {
	out := make([]domain.Bookmark, len(e.list))
	for i, en := range e.list {
		out[i] = en.bm
	}
	return out
}

// Len returns the number of visible entries.
func (e *Engine) Len() int {
	return len(e.list)
}

func (e *Engine) indexOf(id string) int {
	for i, en := range e.list {
		if en.bm.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) remove(id string) bool {
	idx := e.indexOf(id)
	if idx < 0 {
		return false
	}
	e.list = append(e.list[:idx], e.list[idx+1:]...)
	return true
}

func (e *Engine) sort() {
	sort.SliceStable(e.list, func(i, j int) bool {
		a, b := e.list[i], e.list[j]
		if !a.bm.CreatedAt.Equal(b.bm.CreatedAt) {
			return a.bm.CreatedAt.After(b.bm.CreatedAt)
		}
		return a.seq > b.seq
	})
}
