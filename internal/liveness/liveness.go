// Package liveness implements the health-check channel (component H): a
// primary-side responder that answers any ping unconditionally, and a
// standby-side prober that promotes itself to primary after enough
// consecutive failures (§4.3, §6.5).
package liveness

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/fleetdispatch/cluster/internal/wire"
)

// ErrPromote is returned by Prober.Run when the standby has given up on the
// primary and must take over.
var ErrPromote = errors.New("liveness: primary unresponsive, promoting")

// Responder answers every received frame with pong, regardless of content,
// matching the original's unconditional reply (§4.3).
type Responder struct {
	Address string
}

// Run binds the REP socket and answers every ping until ctx is cancelled.
func (r *Responder) Run(ctx context.Context) error {
	socket, err := zmq4.NewSocket(zmq4.REP)
	if err != nil {
		return fmt.Errorf("liveness: new socket: %w", err)
	}
	defer socket.Close()
	if err := socket.Bind(r.Address); err != nil {
		return fmt.Errorf("liveness: bind %s: %w", r.Address, err)
	}
	if err := socket.SetRcvtimeo(500 * time.Millisecond); err != nil {
		return fmt.Errorf("liveness: set rcvtimeo: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, err := socket.Recv(0)
		if err != nil {
			if wire.IsTimeout(err) {
				continue
			}
			log.Printf("liveness: recv error: %v", err)
			continue
		}
		if _, err := socket.Send(wire.LivenessPong, 0); err != nil {
			log.Printf("liveness: send error: %v", err)
		}
	}
}

// Prober polls the primary's liveness endpoint on a fixed interval and
// promotes the standby once MaxMisses consecutive probes have failed.
// §4.3 mandates a single timeout or unexpected reply is enough
// (MaxMisses=1); the field stays configurable so callers can widen the
// margin, but the supervisor's wiring must set it to 1 to meet the
// spec's failover bound.
type Prober struct {
	Address   string
	Interval  time.Duration
	Timeout   time.Duration
	MaxMisses int
	// OnMiss, if set, is called after each failed probe with the running
	// miss count, purely for observability.
	OnMiss func(misses int)
}

// Run polls until ctx is cancelled (returning nil) or the miss threshold is
// reached (returning ErrPromote).
func (p *Prober) Run(ctx context.Context) error {
	maxMisses := p.MaxMisses
	if maxMisses < 1 {
		maxMisses = 1
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	misses := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if p.ping() {
				misses = 0
				continue
			}
			misses++
			if p.OnMiss != nil {
				p.OnMiss(misses)
			}
			if misses >= maxMisses {
				return ErrPromote
			}
		}
	}
}

func (p *Prober) ping() bool {
	socket, err := zmq4.NewSocket(zmq4.REQ)
	if err != nil {
		log.Printf("liveness: new socket: %v", err)
		return false
	}
	defer socket.Close()
	if err := socket.SetRcvtimeo(p.Timeout); err != nil {
		log.Printf("liveness: set rcvtimeo: %v", err)
		return false
	}
	if err := socket.Connect(p.Address); err != nil {
		log.Printf("liveness: connect %s: %v", p.Address, err)
		return false
	}
	if _, err := socket.Send(wire.LivenessPing, 0); err != nil {
		log.Printf("liveness: send ping: %v", err)
		return false
	}
	reply, err := socket.Recv(0)
	if err != nil {
		return false
	}
	return reply == wire.LivenessPong
}
