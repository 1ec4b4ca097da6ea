package ingest

import (
	"path/filepath"
	"testing"

	"github.com/fleetdispatch/cluster/internal/store"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	dir := t.TempDir()
	s := store.New(store.Config{
		MaxLatencySamples: 10,
		StateFilePath:     filepath.Join(dir, "state.json"),
		LedgerFilePath:    filepath.Join(dir, "ledger.json"),
		MetricsFilePath:   filepath.Join(dir, "metrics.json"),
	})
	return &Worker{Store: s, GridN: 10, GridM: 10}
}

func TestHandleFrame_AcceptsBoundaryPositions(t *testing.T) {
	w := newTestWorker(t)
	for _, frame := range []string{"a:(0,0)", "b:(10,0)", "c:(0,10)", "d:(10,10)"} {
		w.handleFrame(frame)
	}
	if got := w.Store.FreePoolSize(); got != 4 {
		t.Fatalf("free pool size = %d, want 4", got)
	}
}

func TestHandleFrame_DropsOutOfBounds(t *testing.T) {
	w := newTestWorker(t)
	w.handleFrame("e:(11,0)")
	w.handleFrame("f:(-1,0)")
	if got := w.Store.FreePoolSize(); got != 0 {
		t.Fatalf("free pool size = %d, want 0", got)
	}
}

func TestHandleFrame_DropsMalformed(t *testing.T) {
	w := newTestWorker(t)
	for _, frame := range []string{"garbage", "id-only", "id:(1,)", "id:1,2"} {
		w.handleFrame(frame)
	}
	if got := w.Store.FreePoolSize(); got != 0 {
		t.Fatalf("free pool size = %d, want 0", got)
	}
}

func TestHandleFrame_RejoinAfterAssignment(t *testing.T) {
	w := newTestWorker(t)
	w.handleFrame("t1:(2,3)")
	w.Store.Do(func(tx *store.Tx) {
		tx.TakeNearest(3, 3)
	})
	if w.Store.FreePoolSize() != 0 {
		t.Fatal("expected taxi removed after assignment")
	}
	w.handleFrame("t1:(4,4)")
	if w.Store.FreePoolSize() != 1 {
		t.Fatal("expected taxi reinstated by a later position report")
	}
}
