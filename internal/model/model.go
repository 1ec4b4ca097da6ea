// Package model defines the domain structs shared across the dispatch cluster.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Position is an integer grid coordinate.
type Position struct {
	X int
	Y int
}

// InBounds reports whether p falls within the inclusive grid [0,n] x [0,m].
func (p Position) InBounds(n, m int) bool {
	return p.X >= 0 && p.X <= n && p.Y >= 0 && p.Y <= m
}

// MarshalJSON renders p as the two-element array [x,y], matching the
// tuple shape the snapshot and state files use (§6.6, §6.7).
func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.X, p.Y})
}

// UnmarshalJSON parses the [x,y] array shape used on the wire.
func (p *Position) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("position: expected [x,y], got %q: %w", data, err)
	}
	p.X, p.Y = pair[0], pair[1]
	return nil
}

// Role is the process-wide role of a dispatcher instance.
type Role int

const (
	RoleUnassigned Role = iota
	RolePrimary
	RoleStandby
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleStandby:
		return "standby"
	default:
		return "unassigned"
	}
}

// Outcome is the terminal state of a user request.
type Outcome string

const (
	OutcomeAssigned Outcome = "assigned"
	OutcomeRejected Outcome = "rejected"
)

// LedgerEntry is one terminal, immutable request record.
type LedgerEntry struct {
	EntryID   string    `json:"entry_id"`
	UserID    string    `json:"user_id"`
	TaxiID    string    `json:"taxi_id,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Pickup    Position  `json:"pickup"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Metrics holds the monotonic dispatch counters and a bounded latency sample window.
type Metrics struct {
	Assigned         int       `json:"assigned"`
	Rejected         int       `json:"rejected"`
	ResponseTimesSec []float64 `json:"response_times_sec"`
}

// Snapshot is a self-contained serialization of the state store, sufficient
// to reconstruct it without replaying history. It is what the replication
// channel (G) pushes and what state.json (§6.7) holds.
type Snapshot struct {
	Taxis    map[string]Position `json:"taxis"`
	Requests []LedgerEntry       `json:"solicitudes"`
}
