// Package store implements the dispatcher's in-memory state: the taxi
// registry (free pool), the request ledger, and dispatch metrics, all
// behind a single serializing mutex (component B of the design), plus the
// nearest-taxi matcher (component C) that operates inside that same
// critical section.
package store

import (
	"log"
	"math"
	"sort"
	"sync"

	"github.com/fleetdispatch/cluster/internal/model"
)

// Store is the single owned state store. All mutation happens under mu;
// the zero value is not usable, construct with New.
type Store struct {
	mu sync.Mutex

	free    map[string]model.Position // free pool: taxi-id -> last reported position
	ledger  []model.LedgerEntry
	metrics model.Metrics

	maxLatencySamples int
	statePath         string
	ledgerPath        string
	metricsPath       string
}

// Config configures a new Store.
type Config struct {
	MaxLatencySamples int
	StateFilePath     string
	LedgerFilePath    string
	MetricsFilePath   string
}

// New creates an empty Store ready to accept traffic.
func New(cfg Config) *Store {
	return &Store{
		free:              make(map[string]model.Position),
		maxLatencySamples: cfg.MaxLatencySamples,
		statePath:         cfg.StateFilePath,
		ledgerPath:        cfg.LedgerFilePath,
		metricsPath:       cfg.MetricsFilePath,
	}
}

// UpsertPosition records or updates a taxi's position, re-inserting it into
// the free pool if it had previously been taken by an assignment (§4.5: this
// is how a taxi rejoins the free pool after completing a trip).
func (s *Store) UpsertPosition(id string, pos model.Position) {
	s.mu.Lock()
	s.free[id] = pos
	s.mu.Unlock()
}

// FreePoolSize returns the number of taxis currently eligible for assignment.
func (s *Store) FreePoolSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.free)
}

// Snapshot produces a self-contained, point-in-time copy of the store's
// contents, safe to serialize or push over the replication channel. It is
// derived from a single critical section so no torn state is ever observed
// (invariant 4).
func (s *Store) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() model.Snapshot {
	taxis := make(map[string]model.Position, len(s.free))
	for id, pos := range s.free {
		taxis[id] = pos
	}
	requests := make([]model.LedgerEntry, len(s.ledger))
	copy(requests, s.ledger)
	return model.Snapshot{Taxis: taxis, Requests: requests}
}

// Install replaces the entire free pool and ledger with the contents of
// snap (full-state overwrite, no merge) — used by the standby applying a
// replicated snapshot, never by the primary.
func (s *Store) Install(snap model.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	free := make(map[string]model.Position, len(snap.Taxis))
	for id, pos := range snap.Taxis {
		free[id] = pos
	}
	s.free = free
	s.ledger = append([]model.LedgerEntry(nil), snap.Requests...)
}

// Reset clears the free pool and ledger. Called by a standby on promotion:
// the mirrored state is possibly stale and is discarded rather than served.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.free = make(map[string]model.Position)
	s.ledger = nil
}

// WriteStateFile serializes the current snapshot to the configured path
// using an atomic rename-over-original replace (§4.1, §6.7). Failures are
// the caller's to log; the in-memory state remains authoritative regardless
// (§7: IOError on state file is logged and the file trails memory).
func (s *Store) WriteStateFile() error {
	snap := s.Snapshot()
	return writeJSONAtomic(s.statePath, snap)
}

// MetricsSnapshot returns a copy of the current counters and latency samples.
func (s *Store) MetricsSnapshot() model.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	samples := make([]float64, len(s.metrics.ResponseTimesSec))
	copy(samples, s.metrics.ResponseTimesSec)
	return model.Metrics{
		Assigned:         s.metrics.Assigned,
		Rejected:         s.metrics.Rejected,
		ResponseTimesSec: samples,
	}
}

// Tx is the request endpoint's critical section (§4.6 steps 3-7): a single
// mutex acquisition across take_nearest, the ledger append, the counter
// bump, and the latency record, so no other request can observe a taxi as
// both taken and un-ledgered.
type Tx struct {
	s *Store
}

// Do runs fn with the store's mutex held for its entire duration.
func (s *Store) Do(fn func(tx *Tx)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&Tx{s: s})
}

// TakeNearest scans the free pool for the entry minimizing Euclidean
// distance to (x,y), removing it atomically with the scan. Ties are broken
// by taxi-id lexicographic order for determinism (§4.1 — unspecified in the
// source, fixed here).
func (tx *Tx) TakeNearest(x, y int) (id string, pos model.Position, ok bool) {
	if len(tx.s.free) == 0 {
		return "", model.Position{}, false
	}
	ids := make([]string, 0, len(tx.s.free))
	for candidate := range tx.s.free {
		ids = append(ids, candidate)
	}
	sort.Strings(ids)

	best := ""
	bestDist := math.Inf(1)
	for _, candidate := range ids {
		p := tx.s.free[candidate]
		d := euclidean(x, y, p.X, p.Y)
		if d < bestDist {
			bestDist = d
			best = candidate
		}
	}
	pos = tx.s.free[best]
	delete(tx.s.free, best)
	return best, pos, true
}

// PutBack reinstates a taxi taken by TakeNearest in this same transaction.
// This is the only rollback path in the design (§4.6): used if a step after
// the take fails and invariant 1 (a taxi is free xor assigned, never
// neither) must be preserved.
func (tx *Tx) PutBack(id string, pos model.Position) {
	tx.s.free[id] = pos
}

// AppendLedger appends a terminal request record and best-effort rewrites
// ledger.json (§6.7; a known inefficiency per the design notes — every
// append rewrites the whole file).
func (tx *Tx) AppendLedger(entry model.LedgerEntry) {
	tx.s.ledger = append(tx.s.ledger, entry)
	if err := writeJSONAtomic(tx.s.ledgerPath, tx.s.ledger); err != nil {
		log.Printf("ledger file write failed (state remains authoritative in memory): %v", err)
	}
}

// Bump increments the matching outcome counter and best-effort rewrites
// metrics.json.
func (tx *Tx) Bump(outcome model.Outcome) {
	switch outcome {
	case model.OutcomeAssigned:
		tx.s.metrics.Assigned++
	case model.OutcomeRejected:
		tx.s.metrics.Rejected++
	}
	tx.writeMetricsLocked()
}

// RecordLatency appends a response-time sample to the bounded window,
// dropping the oldest sample once the configured cap is reached.
func (tx *Tx) RecordLatency(seconds float64) {
	samples := append(tx.s.metrics.ResponseTimesSec, seconds)
	if max := tx.s.maxLatencySamples; max > 0 && len(samples) > max {
		samples = samples[len(samples)-max:]
	}
	tx.s.metrics.ResponseTimesSec = samples
	tx.writeMetricsLocked()
}

func (tx *Tx) writeMetricsLocked() {
	if err := writeJSONAtomic(tx.s.metricsPath, tx.s.metrics); err != nil {
		log.Printf("metrics file write failed (counters remain authoritative in memory): %v", err)
	}
}

func euclidean(x1, y1, x2, y2 int) float64 {
	dx := float64(x1 - x2)
	dy := float64(y1 - y2)
	return math.Sqrt(dx*dx + dy*dy)
}
