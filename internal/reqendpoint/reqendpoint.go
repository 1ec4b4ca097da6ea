// Package reqendpoint implements the synchronous request/reply endpoint
// (component E) and its use of the matcher (component C): one reply per
// received request, per the strict alternation required by the request
// channel (§6.3).
package reqendpoint

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pebbe/zmq4"

	"github.com/fleetdispatch/cluster/internal/assign"
	"github.com/fleetdispatch/cluster/internal/model"
	"github.com/fleetdispatch/cluster/internal/store"
	"github.com/fleetdispatch/cluster/internal/wire"
)

// Worker binds the request endpoint and answers every request synchronously.
type Worker struct {
	Store       *store.Store
	Address     string
	Assignments *assign.Queue // staged for the assignment publisher (F)

	// Now is overridable in tests for deterministic latency assertions.
	Now func() time.Time
}

// Run binds the REP socket and serves requests until ctx is cancelled,
// matching the rest of the cluster's poll-and-recheck pattern.
func (w *Worker) Run(ctx context.Context) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	socket, err := zmq4.NewSocket(zmq4.REP)
	if err != nil {
		return fmt.Errorf("reqendpoint: new socket: %w", err)
	}
	defer socket.Close()
	if err := socket.Bind(w.Address); err != nil {
		return fmt.Errorf("reqendpoint: bind %s: %w", w.Address, err)
	}
	if err := socket.SetRcvtimeo(500 * time.Millisecond); err != nil {
		return fmt.Errorf("reqendpoint: set rcvtimeo: %w", err)
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
			log.Printf("reqendpoint: recv error: %v", err)
			continue
		}

		reply := w.handle([]byte(body))
		blob, err := wire.EncodeReply(reply)
		if err != nil {
			// Should not happen for a struct this simple, but the endpoint must
			// still reply exactly once (§4.6) so fall back to a bare error body.
			blob = []byte(`{"status":"error","mensaje":"internal encode error"}`)
		}
		if _, err := socket.Send(string(blob), 0); err != nil {
			log.Printf("reqendpoint: send error: %v", err)
		}
	}
}

// handle implements §4.6 steps 1-7 as a single function so the request
// endpoint's reply is always exactly one JSON body per received frame.
func (w *Worker) handle(body []byte) wire.ReplyMessage {
	msg, err := wire.DecodeRequest(body)
	if err != nil {
		return wire.ErrorReply(err.Error())
	}

	start := w.Now()
	pickup := model.Position{X: msg.X, Y: msg.Y}

	var reply wire.ReplyMessage
	var assignedTaxi string

	w.Store.Do(func(tx *store.Tx) {
		taxiID, _, ok := tx.TakeNearest(msg.X, msg.Y)
		entry := model.LedgerEntry{
			EntryID:   uuid.NewString(),
			UserID:    msg.UserID,
			Pickup:    pickup,
			Timestamp: w.Now(),
		}
		if ok {
			entry.TaxiID = taxiID
			entry.Outcome = model.OutcomeAssigned
			reply = wire.AssignedReply(taxiID)
			assignedTaxi = taxiID
		} else {
			entry.Outcome = model.OutcomeRejected
			entry.Reason = "no taxis available"
			reply = wire.RejectedReply("no taxis available")
		}
		tx.AppendLedger(entry)
		tx.Bump(entry.Outcome)
		tx.RecordLatency(w.Now().Sub(start).Seconds())
	})

	if assignedTaxi != "" && w.Assignments != nil {
		w.Assignments.Push(assignedTaxi)
	}
	return reply
}
