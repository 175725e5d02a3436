package reconcile

import (
	"testing"
	"time"

	"github.com/shelf-sh/shelf/internal/domain"
)

const testOwner = "user-1"

func confirmed(id string, createdAt time.Time) domain.Bookmark {
	return domain.Bookmark{
		ID:        id,
		Owner:     testOwner,
		Title:     "title " + id,
		Target:    "https://example.com/" + id,
		CreatedAt: createdAt,
	}
}

func ids(e *Engine) []string {
	snap := e.Snapshot()
	out := make([]string, len(snap))
	for i, bm := range snap {
		out[i] = bm.ID
	}
	return out
}

func wantIDs(t *testing.T, e *Engine, want ...string) {
	t.Helper()
	got := ids(e)
	if len(got) != len(want) {
		t.Fatalf("list = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("list = %v, want %v", got, want)
		}
	}
}

func TestMergeRemoteInsertIdempotent(t *testing.T) {
	e := NewEngine(testOwner)
	rec := confirmed("42", time.Now().UTC())

	e.MergeRemoteInsert(rec)
	once := ids(e)

	e.MergeRemoteInsert(rec)
	twice := ids(e)

	if len(once) != 1 || len(twice) != 1 || once[0] != twice[0] {
		t.Errorf("applying the same insert twice changed the list: %v vs %v", once, twice)
	}
}

func TestMergeRemoteDeleteAbsentIsNoop(t *testing.T) {
	e := NewEngine(testOwner)
	e.MergeRemoteInsert(confirmed("1", time.Now().UTC()))

	e.MergeRemoteDelete("nope")
	wantIDs(t, e, "1")
}

func TestNoDuplicationOnSelfEcho(t *testing.T) {
	e := NewEngine(testOwner)
	now := time.Now().UTC()

	prov := e.InsertProvisional("Example", "https://example.com")
	rec := confirmed("42", now)

	// Store response and feed echo, in both orders.
	e.Confirm(prov.ID, rec)
	e.MergeRemoteInsert(rec)
	wantIDs(t, e, "42")

	e2 := NewEngine(testOwner)
	prov2 := e2.InsertProvisional("Example", "https://example.com")
	e2.MergeRemoteInsert(rec)
	e2.Confirm(prov2.ID, rec)
	wantIDs(t, e2, "42")
}

func TestConfirmReplacesProvisionalInPlace(t *testing.T) {
	e := NewEngine(testOwner)
	prov := e.InsertProvisional("Example", "https://example.com")

	rec := confirmed("42", time.Now().UTC())
	e.Confirm(prov.ID, rec)

	snap := e.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("list has %d entries, want 1", len(snap))
	}
	if snap[0].ID != "42" {
		t.Errorf("confirmed id = %q, want %q", snap[0].ID, "42")
	}
	if snap[0].Provisional {
		t.Error("confirmed entry still marked provisional")
	}
}

func TestConfirmAfterResyncDiscard(t *testing.T) {
	e := NewEngine(testOwner)
	prov := e.InsertProvisional("Example", "https://example.com")

	// A resync without the provisional entry discards it.
	e.ReplaceAll(nil)
	wantIDs(t, e)

	// The late confirmation still lands as a plain merge.
	e.Confirm(prov.ID, confirmed("42", time.Now().UTC()))
	wantIDs(t, e, "42")
}

func TestOptimisticDeleteThenFeedConfirmation(t *testing.T) {
	e := NewEngine(testOwner)
	now := time.Now().UTC()
	e.MergeRemoteInsert(confirmed("7", now))

	e.RemoveLocal("7")
	after := ids(e)

	e.MergeRemoteDelete("7")
	if got := ids(e); len(got) != len(after) {
		t.Errorf("feed confirmation changed the list: %v vs %v", got, after)
	}
}

func TestDeleteRace(t *testing.T) {
	e := NewEngine(testOwner)
	now := time.Now().UTC()
	e.MergeRemoteInsert(confirmed("7", now))

	e.RemoveLocal("7")
	e.MergeRemoteInsert(confirmed("8", now.Add(time.Second)))

	wantIDs(t, e, "8")
}

func TestFailedDeleteResyncRestores(t *testing.T) {
	e := NewEngine(testOwner)
	now := time.Now().UTC()
	e.MergeRemoteInsert(confirmed("9", now))

	e.RemoveLocal("9")
	wantIDs(t, e)

	e.ReplaceAll([]domain.Bookmark{confirmed("9", now)})
	wantIDs(t, e, "9")
}

func TestOrderingInvariant(t *testing.T) {
	e := NewEngine(testOwner)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	e.MergeRemoteInsert(confirmed("b", base.Add(2*time.Hour)))
	e.MergeRemoteInsert(confirmed("a", base.Add(3*time.Hour)))
	e.MergeRemoteInsert(confirmed("c", base.Add(time.Hour)))

	wantIDs(t, e, "a", "b", "c")

	snap := e.Snapshot()
	for i := 1; i < len(snap); i++ {
		if snap[i].CreatedAt.After(snap[i-1].CreatedAt) {
			t.Errorf("list not sorted by CreatedAt descending at index %d", i)
		}
	}
}

func TestOrderingTieBreakMostRecentlyInsertedFirst(t *testing.T) {
	e := NewEngine(testOwner)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	e.MergeRemoteInsert(confirmed("first", ts))
	e.MergeRemoteInsert(confirmed("second", ts))

	wantIDs(t, e, "second", "first")
}

func TestProvisionalInsertsAtHead(t *testing.T) {
	e := NewEngine(testOwner)
	e.MergeRemoteInsert(confirmed("old", time.Now().UTC().Add(-time.Hour)))

	prov := e.InsertProvisional("New", "https://new.example.com")
	wantIDs(t, e, prov.ID, "old")

	if !prov.Provisional {
		t.Error("InsertProvisional() entry not marked provisional")
	}
	if prov.Owner != testOwner {
		t.Errorf("provisional owner = %q, want %q", prov.Owner, testOwner)
	}
}

func TestForeignOwnerRecordsNeverEnter(t *testing.T) {
	e := NewEngine(testOwner)

	foreign := confirmed("1", time.Now().UTC())
	foreign.Owner = "someone-else"

	e.MergeRemoteInsert(foreign)
	e.ReplaceAll([]domain.Bookmark{foreign})

	if e.Len() != 0 {
		t.Errorf("foreign-owner record entered the list: %v", ids(e))
	}
}

func TestReplaceAllDiscardsProvisional(t *testing.T) {
	e := NewEngine(testOwner)
	e.InsertProvisional("Pending", "https://pending.example.com")

	now := time.Now().UTC()
	e.ReplaceAll([]domain.Bookmark{confirmed("1", now)})

	wantIDs(t, e, "1")
}

func TestReplaceAllKeepsAuthoritativeOrderOnTies(t *testing.T) {
	e := NewEngine(testOwner)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	e.ReplaceAll([]domain.Bookmark{
		confirmed("x", ts),
		confirmed("y", ts),
		confirmed("z", ts),
	})

	wantIDs(t, e, "x", "y", "z")
}
