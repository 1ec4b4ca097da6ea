package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fleetdispatch/cluster/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return New(Config{
		MaxLatencySamples: 100,
		StateFilePath:     filepath.Join(dir, "state.json"),
		LedgerFilePath:    filepath.Join(dir, "ledger.json"),
		MetricsFilePath:   filepath.Join(dir, "metrics.json"),
	})
}

// TestHappyPathAndExhaustion reproduces scenario 1+2 of the end-to-end list:
// t1 and t2 post positions, u1 takes t1, u2 takes t2, u3 is rejected.
func TestHappyPathAndExhaustion(t *testing.T) {
	s := newTestStore(t)
	s.UpsertPosition("t1", model.Position{X: 2, Y: 3})
	s.UpsertPosition("t2", model.Position{X: 8, Y: 8})

	var gotTaxi string
	s.Do(func(tx *Tx) {
		id, pos, ok := tx.TakeNearest(3, 3)
		if !ok {
			t.Fatal("expected a taxi to be taken")
		}
		gotTaxi = id
		tx.AppendLedger(model.LedgerEntry{UserID: "u1", TaxiID: id, Outcome: model.OutcomeAssigned, Pickup: pos, Timestamp: time.Now()})
		tx.Bump(model.OutcomeAssigned)
	})
	if gotTaxi != "t1" {
		t.Fatalf("got %q, want t1", gotTaxi)
	}
	if s.FreePoolSize() != 1 {
		t.Fatalf("free pool size = %d, want 1", s.FreePoolSize())
	}

	s.Do(func(tx *Tx) {
		id, _, ok := tx.TakeNearest(0, 0)
		if !ok || id != "t2" {
			t.Fatalf("got (%q,%v), want t2", id, ok)
		}
		tx.AppendLedger(model.LedgerEntry{UserID: "u2", TaxiID: id, Outcome: model.OutcomeAssigned})
		tx.Bump(model.OutcomeAssigned)
	})

	s.Do(func(tx *Tx) {
		_, _, ok := tx.TakeNearest(5, 5)
		if ok {
			t.Fatal("expected empty free pool")
		}
		tx.AppendLedger(model.LedgerEntry{UserID: "u3", Outcome: model.OutcomeRejected})
		tx.Bump(model.OutcomeRejected)
	})

	m := s.MetricsSnapshot()
	if m.Assigned != 2 || m.Rejected != 1 {
		t.Fatalf("metrics = %+v, want assigned=2 rejected=1", m)
	}
	if got := len(s.snapshotLockedForTest()); got != 3 {
		t.Fatalf("ledger length = %d, want 3", got)
	}
}

// TestRejoinAfterTrip reproduces scenario 3: a taxi re-posts its position
// after completing a trip and becomes assignable again.
func TestRejoinAfterTrip(t *testing.T) {
	s := newTestStore(t)
	s.UpsertPosition("t1", model.Position{X: 2, Y: 3})
	s.Do(func(tx *Tx) {
		id, _, _ := tx.TakeNearest(3, 3)
		if id != "t1" {
			t.Fatalf("got %q", id)
		}
	})
	if s.FreePoolSize() != 0 {
		t.Fatal("expected t1 removed from free pool")
	}

	s.UpsertPosition("t1", model.Position{X: 4, Y: 4})
	s.Do(func(tx *Tx) {
		id, _, ok := tx.TakeNearest(4, 5)
		if !ok || id != "t1" {
			t.Fatalf("got (%q,%v), want t1", id, ok)
		}
	})
}

// TestTieBreakLexicographic reproduces scenario 4: equidistant taxis are
// broken by lexicographically smallest id.
func TestTieBreakLexicographic(t *testing.T) {
	s := newTestStore(t)
	s.UpsertPosition("b", model.Position{X: 5, Y: 5})
	s.UpsertPosition("a", model.Position{X: 5, Y: 5})

	var got string
	s.Do(func(tx *Tx) {
		id, _, ok := tx.TakeNearest(5, 5)
		if !ok {
			t.Fatal("expected a match")
		}
		got = id
	})
	if got != "a" {
		t.Fatalf("got %q, want a", got)
	}
}

func TestPutBackRestoresFreePool(t *testing.T) {
	s := newTestStore(t)
	s.UpsertPosition("t1", model.Position{X: 1, Y: 1})
	s.Do(func(tx *Tx) {
		id, pos, ok := tx.TakeNearest(1, 1)
		if !ok {
			t.Fatal("expected a match")
		}
		tx.PutBack(id, pos)
	})
	if s.FreePoolSize() != 1 {
		t.Fatalf("free pool size = %d, want 1 after put-back", s.FreePoolSize())
	}
}

func TestSnapshotInstallRoundTrip(t *testing.T) {
	s := newTestStore(t)
	s.UpsertPosition("t1", model.Position{X: 1, Y: 2})
	s.Do(func(tx *Tx) {
		tx.AppendLedger(model.LedgerEntry{UserID: "u1", Outcome: model.OutcomeRejected})
	})

	snap := s.Snapshot()

	other := newTestStore(t)
	other.Install(snap)
	if other.FreePoolSize() != 1 {
		t.Fatalf("installed free pool size = %d, want 1", other.FreePoolSize())
	}
	if got := other.Snapshot(); len(got.Requests) != 1 {
		t.Fatalf("installed ledger length = %d, want 1", len(got.Requests))
	}
}

func TestRecordLatencyBoundedWindow(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{
		MaxLatencySamples: 3,
		StateFilePath:     filepath.Join(dir, "state.json"),
		LedgerFilePath:    filepath.Join(dir, "ledger.json"),
		MetricsFilePath:   filepath.Join(dir, "metrics.json"),
	})
	s.Do(func(tx *Tx) {
		tx.RecordLatency(0.1)
		tx.RecordLatency(0.2)
		tx.RecordLatency(0.3)
		tx.RecordLatency(0.4)
	})
	m := s.MetricsSnapshot()
	if len(m.ResponseTimesSec) != 3 {
		t.Fatalf("got %d samples, want 3 (bounded)", len(m.ResponseTimesSec))
	}
	if m.ResponseTimesSec[0] != 0.2 {
		t.Fatalf("oldest sample not dropped: got %+v", m.ResponseTimesSec)
	}
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	s.UpsertPosition("t1", model.Position{X: 1, Y: 1})
	s.Do(func(tx *Tx) {
		tx.AppendLedger(model.LedgerEntry{UserID: "u1", Outcome: model.OutcomeRejected})
	})
	s.Reset()
	if s.FreePoolSize() != 0 {
		t.Fatal("expected free pool cleared")
	}
	if len(s.Snapshot().Requests) != 0 {
		t.Fatal("expected ledger cleared")
	}
}

func TestWriteStateFileAtomic(t *testing.T) {
	s := newTestStore(t)
	s.UpsertPosition("t1", model.Position{X: 1, Y: 1})
	if err := s.WriteStateFile(); err != nil {
		t.Fatalf("WriteStateFile: %v", err)
	}
}

// snapshotLockedForTest exposes the ledger length without a public accessor
// that would otherwise only be needed by tests.
func (s *Store) snapshotLockedForTest() []model.LedgerEntry {
	return s.Snapshot().Requests
}
