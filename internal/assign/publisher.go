// Package assign implements the assignment publisher (component F): a
// one-to-many broadcast of "<taxi-id>:assigned" frames, fed by a bounded
// drop-oldest queue decoupled from the request endpoint.
package assign

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/fleetdispatch/cluster/internal/wire"
)

// drainPollInterval is how often the publisher checks the queue for new
// entries when it is empty.
const drainPollInterval = 100 * time.Millisecond

// Publisher binds the assignment endpoint (§6.2) and broadcasts staged
// events.
type Publisher struct {
	Queue   *Queue
	Address string
}

// Run binds the PUB socket and drains the queue until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	socket, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return fmt.Errorf("assign: new socket: %w", err)
	}
	defer socket.Close()
	if err := socket.Bind(p.Address); err != nil {
		return fmt.Errorf("assign: bind %s: %w", p.Address, err)
	}

	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				taxiID, ok := p.Queue.Pop()
				if !ok {
					break
				}
				frame := wire.EncodeAssigned(taxiID)
				if _, err := socket.Send(frame, 0); err != nil {
					log.Printf("assign: send error: %v", err)
				}
			}
		}
	}
}
