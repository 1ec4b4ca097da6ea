// Package ingest implements the position channel consumer (component D):
// a fan-in PULL socket that feeds taxi position reports into the state
// store.
package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/fleetdispatch/cluster/internal/store"
	"github.com/fleetdispatch/cluster/internal/wire"
)

// recvPollInterval bounds how long a blocked Recv waits before the loop
// re-checks ctx cancellation.
const recvPollInterval = 500 * time.Millisecond

// Worker binds the position endpoint (§6.1) and upserts every well-formed
// report into the store, silently dropping anything malformed or
// out-of-bounds (§7: MalformedFrame, OutOfBounds).
type Worker struct {
	Store   *store.Store
	GridN   int
	GridM   int
	Address string // e.g. "tcp://*:5555"
}

// Run binds the PULL socket and blocks processing frames until ctx is
// cancelled. Each recv is one atomic frame (§6).
func (w *Worker) Run(ctx context.Context) error {
	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return fmt.Errorf("ingest: new socket: %w", err)
	}
	defer socket.Close()
	if err := socket.Bind(w.Address); err != nil {
		return fmt.Errorf("ingest: bind %s: %w", w.Address, err)
	}
	// A short receive timeout lets the loop notice ctx cancellation between
	// frames without leaving the socket blocked forever.
	if err := socket.SetRcvtimeo(recvPollInterval); err != nil {
		return fmt.Errorf("ingest: set rcvtimeo: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, err := socket.Recv(0)
		if err != nil {
			if wire.IsTimeout(err) {
				continue
			}
			log.Printf("ingest: recv error: %v", err)
			continue
		}
		w.handleFrame(frame)
	}
}

func (w *Worker) handleFrame(frame string) {
	taxiID, pos, err := wire.DecodePosition(frame)
	if err != nil {
		log.Printf("ingest: dropping malformed frame %q: %v", frame, err)
		return
	}
	if !pos.InBounds(w.GridN, w.GridM) {
		log.Printf("ingest: dropping out-of-bounds position %v for taxi %s", pos, taxiID)
		return
	}
	w.Store.UpsertPosition(taxiID, pos)
}
