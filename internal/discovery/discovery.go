// Package discovery implements the role negotiator (component I): the
// bounded startup probe that decides primary vs. standby (§4.2), and the
// primary-side responder that answers it for late joiners (§6.4).
package discovery

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/fleetdispatch/cluster/internal/model"
	"github.com/fleetdispatch/cluster/internal/wire"
)

// Negotiate opens a client socket to the discovery endpoint at address with
// the given receive deadline, sends the probe, and returns the role this
// process should assume. Absence of an answer is indistinguishable from
// absence of a primary, so any send/receive error, timeout, or unexpected
// reply is treated as "no primary here" and this process becomes primary
// (§4.2): the design deliberately prefers dual-primary over no-primary.
func Negotiate(address string, timeout time.Duration) model.Role {
	socket, err := zmq4.NewSocket(zmq4.REQ)
	if err != nil {
		log.Printf("discovery: new socket: %v (assuming primary)", err)
		return model.RolePrimary
	}
	defer socket.Close()
	if err := socket.SetRcvtimeo(timeout); err != nil {
		log.Printf("discovery: set rcvtimeo: %v (assuming primary)", err)
		return model.RolePrimary
	}
	if err := socket.Connect(address); err != nil {
		log.Printf("discovery: connect %s: %v (assuming primary)", address, err)
		return model.RolePrimary
	}

	if _, err := socket.Send(wire.DiscoveryProbe, 0); err != nil {
		log.Printf("discovery: send probe: %v (assuming primary)", err)
		return model.RolePrimary
	}
	reply, err := socket.Recv(0)
	if err != nil {
		log.Println("discovery: no reply within deadline, assuming primary")
		return model.RolePrimary
	}
	if reply == wire.DiscoveryYes {
		return model.RoleStandby
	}
	log.Printf("discovery: unexpected reply %q, assuming primary", reply)
	return model.RolePrimary
}

// Responder binds the discovery endpoint so late joiners can find the
// primary. Only ever started on the primary (§4.8).
type Responder struct {
	Address string
}

// Run binds the REP socket and answers every probe until ctx is cancelled.
func (r *Responder) Run(ctx context.Context) error {
	socket, err := zmq4.NewSocket(zmq4.REP)
	if err != nil {
		return fmt.Errorf("discovery: new socket: %w", err)
	}
	defer socket.Close()
	if err := socket.Bind(r.Address); err != nil {
		return fmt.Errorf("discovery: bind %s: %w", r.Address, err)
	}
	if err := socket.SetRcvtimeo(500 * time.Millisecond); err != nil {
		return fmt.Errorf("discovery: set rcvtimeo: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := socket.Recv(0)
		if err != nil {
			if wire.IsTimeout(err) {
				continue
			}
			log.Printf("discovery: recv error: %v", err)
			continue
		}
		reply := "unknown"
		if msg == wire.DiscoveryProbe {
			reply = wire.DiscoveryYes
		}
		if _, err := socket.Send(reply, 0); err != nil {
			log.Printf("discovery: send error: %v", err)
		}
	}
}
