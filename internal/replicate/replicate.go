// Package replicate implements the replication channel (component G): the
// primary periodically pushes a full state snapshot, and the standby
// installs whatever it last received, overwriting its mirror wholesale
// (§4.4, §6.6). There is no acknowledgement; a lost snapshot is superseded
// by the next one.
package replicate

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/fleetdispatch/cluster/internal/store"
	"github.com/fleetdispatch/cluster/internal/wire"
)

// Producer binds the replication endpoint on the primary and pushes a
// snapshot of the store every Interval.
type Producer struct {
	Store    *store.Store
	Address  string
	Interval time.Duration
}

// Run binds the PUSH socket and pushes snapshots until ctx is cancelled.
func (p *Producer) Run(ctx context.Context) error {
	socket, err := zmq4.NewSocket(zmq4.PUSH)
	if err != nil {
		return fmt.Errorf("replicate: new socket: %w", err)
	}
	defer socket.Close()
	if err := socket.Bind(p.Address); err != nil {
		return fmt.Errorf("replicate: bind %s: %w", p.Address, err)
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snap := p.Store.Snapshot()
			body, err := wire.EncodeSnapshot(snap)
			if err != nil {
				log.Printf("replicate: encode snapshot: %v", err)
				continue
			}
			if _, err := socket.Send(string(body), 0); err != nil {
				log.Printf("replicate: send error: %v", err)
			}
		}
	}
}

// Consumer connects to the primary's replication endpoint on the standby
// and installs every snapshot it receives, wholesale.
type Consumer struct {
	Store   *store.Store
	Address string
}

// Run connects the PULL socket and installs snapshots until ctx is
// cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return fmt.Errorf("replicate: new socket: %w", err)
	}
	defer socket.Close()
	if err := socket.Connect(c.Address); err != nil {
		return fmt.Errorf("replicate: connect %s: %w", c.Address, err)
	}
	if err := socket.SetRcvtimeo(500 * time.Millisecond); err != nil {
		return fmt.Errorf("replicate: set rcvtimeo: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		body, err := socket.Recv(0)
		if err != nil {
			if wire.IsTimeout(err) {
				continue
			}
			log.Printf("replicate: recv error: %v", err)
			continue
		}
		snap, err := wire.DecodeSnapshot([]byte(body))
		if err != nil {
			log.Printf("replicate: malformed snapshot: %v", err)
			continue
		}
		c.Store.Install(snap)
	}
}
