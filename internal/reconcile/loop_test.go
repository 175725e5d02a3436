package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shelf-sh/shelf/internal/domain"
	"github.com/shelf-sh/shelf/internal/logger"
)

// fakeStore is an in-memory Store with controllable failures and an
// optional gate to hold writes in flight.
type fakeStore struct {
	mu         sync.Mutex
	rows       []domain.Bookmark
	nextID     int
	insertErr  error
	deleteErr  error
	insertGate chan struct{}
	deleteGate chan struct{}
}

func (f *fakeStore) ListAll(ctx context.Context) ([]domain.Bookmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Bookmark, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func (f *fakeStore) Insert(ctx context.Context, title, target string) (domain.Bookmark, error) {
	if f.insertGate != nil {
		<-f.insertGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return domain.Bookmark{}, f.insertErr
	}
	f.nextID++
	rec := domain.Bookmark{
		ID:        strconv.Itoa(f.nextID),
		Owner:     testOwner,
		Title:     title,
		Target:    target,
		CreatedAt: time.Now().UTC(),
	}
	f.rows = append(f.rows, rec)
	return rec, nil
}

func (f *fakeStore) DeleteByID(ctx context.Context, id string) error {
	if f.deleteGate != nil {
		<-f.deleteGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i, r := range f.rows {
		if r.ID == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeStore) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func newTestLoop(t *testing.T, store *fakeStore) *Loop {
	t.Helper()
	l := NewLoop(NewEngine(testOwner), store, logger.New("error", false), 2*time.Second)
	l.Start(context.Background())
	t.Cleanup(l.Stop)
	return l
}

func waitResult(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for operation result")
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestLoopBasicAdd(t *testing.T) {
	store := &fakeStore{}
	l := newTestLoop(t, store)

	bm, result, err := l.SubmitAdd("Example", "example.com")
	if err != nil {
		t.Fatalf("SubmitAdd() unexpected error: %v", err)
	}
	if bm.Target != "https://example.com" {
		t.Errorf("provisional target = %q, want scheme auto-prepended", bm.Target)
	}
	if !bm.Provisional {
		t.Error("SubmitAdd() entry not provisional")
	}

	snap := l.Snapshot()
	if len(snap) != 1 || snap[0].ID != bm.ID {
		t.Fatalf("snapshot after SubmitAdd = %v, want the provisional entry", snap)
	}

	if err := waitResult(t, result); err != nil {
		t.Fatalf("durable write failed: %v", err)
	}

	snap = l.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot after confirm has %d entries, want 1", len(snap))
	}
	if snap[0].Provisional || snap[0].ID == bm.ID {
		t.Errorf("entry not confirmed with store id: %+v", snap[0])
	}
}

func TestLoopValidationRejectedBeforeNetwork(t *testing.T) {
	store := &fakeStore{}
	l := newTestLoop(t, store)

	if _, _, err := l.SubmitAdd("  ", "example.com"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("SubmitAdd(blank title) error = %v, want ErrValidation", err)
	}
	if _, _, err := l.SubmitAdd("Example", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("SubmitAdd(blank url) error = %v, want ErrValidation", err)
	}
	if len(l.Snapshot()) != 0 {
		t.Error("validation failure mutated the list")
	}
	if store.rowCount() != 0 {
		t.Error("validation failure reached the store")
	}
}

func TestLoopAddFailureKeepsProvisional(t *testing.T) {
	store := &fakeStore{insertErr: fmt.Errorf("store down")}
	l := newTestLoop(t, store)

	bm, result, err := l.SubmitAdd("Example", "example.com")
	if err != nil {
		t.Fatalf("SubmitAdd() unexpected error: %v", err)
	}

	if err := waitResult(t, result); err == nil {
		t.Fatal("expected durable write failure")
	}

	snap := l.Snapshot()
	if len(snap) != 1 || snap[0].ID != bm.ID || !snap[0].Provisional {
		t.Errorf("provisional entry not kept after failure: %v", snap)
	}
}

func TestLoopSelfEchoDeduplicated(t *testing.T) {
	store := &fakeStore{}
	l := newTestLoop(t, store)

	_, result, err := l.SubmitAdd("Example", "example.com")
	if err != nil {
		t.Fatalf("SubmitAdd() unexpected error: %v", err)
	}
	if err := waitResult(t, result); err != nil {
		t.Fatalf("durable write failed: %v", err)
	}

	rec := l.Snapshot()[0]
	l.Deliver(RemoteEvent{Kind: RemoteInsert, Record: rec})

	snap := l.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("self echo duplicated the entry: %v", snap)
	}
}

func TestLoopDeleteRace(t *testing.T) {
	gate := make(chan struct{})
	store := &fakeStore{deleteGate: gate}
	l := newTestLoop(t, store)

	seven := domain.Bookmark{ID: "7", Owner: testOwner, Title: "seven",
		Target: "https://seven.example.com", CreatedAt: time.Now().UTC()}
	l.Deliver(RemoteEvent{Kind: RemoteInsert, Record: seven})

	result := l.SubmitDelete("7")

	// Unrelated insert arrives while the delete is still in flight.
	eight := seven
	eight.ID = "8"
	eight.CreatedAt = seven.CreatedAt.Add(time.Second)
	l.Deliver(RemoteEvent{Kind: RemoteInsert, Record: eight})

	snap := l.Snapshot()
	if len(snap) != 1 || snap[0].ID != "8" {
		t.Fatalf("snapshot during delete race = %v, want [8]", snap)
	}

	close(gate)
	if err := waitResult(t, result); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
}

func TestLoopDeleteAbsentIsNoop(t *testing.T) {
	store := &fakeStore{}
	l := newTestLoop(t, store)

	if err := waitResult(t, l.SubmitDelete("missing")); err != nil {
		t.Errorf("deleting an absent id returned error: %v", err)
	}
}

func TestLoopFailedDeleteTriggersResync(t *testing.T) {
	store := &fakeStore{deleteErr: fmt.Errorf("store down")}
	l := newTestLoop(t, store)

	nine := domain.Bookmark{ID: "9", Owner: testOwner, Title: "nine",
		Target: "https://nine.example.com", CreatedAt: time.Now().UTC()}
	store.rows = []domain.Bookmark{nine}

	if err := l.Resync(context.Background()); err != nil {
		t.Fatalf("Resync() failed: %v", err)
	}

	result := l.SubmitDelete("9")
	if len(l.Snapshot()) != 0 {
		t.Fatal("optimistic delete did not empty the list")
	}

	if err := waitResult(t, result); err == nil {
		t.Fatal("expected durable delete failure")
	}

	waitFor(t, func() bool {
		snap := l.Snapshot()
		return len(snap) == 1 && snap[0].ID == "9"
	}, "list not restored from authoritative state after failed delete")
}

func TestLoopDeleteProvisionalBeforeConfirm(t *testing.T) {
	gate := make(chan struct{})
	store := &fakeStore{insertGate: gate}
	l := newTestLoop(t, store)

	bm, result, err := l.SubmitAdd("Example", "example.com")
	if err != nil {
		t.Fatalf("SubmitAdd() unexpected error: %v", err)
	}

	if err := waitResult(t, l.SubmitDelete(bm.ID)); err != nil {
		t.Fatalf("deleting provisional entry failed: %v", err)
	}
	if len(l.Snapshot()) != 0 {
		t.Fatal("provisional entry still visible after delete")
	}

	close(gate)
	if err := waitResult(t, result); err != nil {
		t.Fatalf("durable write failed: %v", err)
	}

	// The late confirmation must not resurrect the entry, and the
	// durable row must be deleted to honor the user's intent.
	if len(l.Snapshot()) != 0 {
		t.Error("deleted provisional entry resurrected by its confirmation")
	}
	waitFor(t, func() bool { return store.rowCount() == 0 },
		"durable row not removed after tombstoned confirmation")
}

func TestLoopReadyAfterFirstResync(t *testing.T) {
	store := &fakeStore{}
	l := newTestLoop(t, store)

	if l.Ready() {
		t.Error("loop ready before first resync")
	}
	if err := l.Resync(context.Background()); err != nil {
		t.Fatalf("Resync() failed: %v", err)
	}
	if !l.Ready() {
		t.Error("loop not ready after successful resync")
	}
}

func TestLoopWatchDeliversSnapshots(t *testing.T) {
	store := &fakeStore{}
	l := newTestLoop(t, store)

	ch, cancel := l.Watch()
	defer cancel()

	rec := domain.Bookmark{ID: "1", Owner: testOwner, Title: "one",
		Target: "https://one.example.com", CreatedAt: time.Now().UTC()}
	l.Deliver(RemoteEvent{Kind: RemoteInsert, Record: rec})

	select {
	case snap := <-ch:
		if len(snap) != 1 || snap[0].ID != "1" {
			t.Errorf("watched snapshot = %v, want [1]", snap)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no snapshot delivered to watcher")
	}
}
