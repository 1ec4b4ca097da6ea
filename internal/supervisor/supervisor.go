// Package supervisor owns the process's role (component J) and starts or
// stops the right set of components for it: the full primary set, or the
// standby's thin mirror-and-watch set, switching over on promotion (§4.2,
// §4.3, §4.8).
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fleetdispatch/cluster/internal/assign"
	"github.com/fleetdispatch/cluster/internal/config"
	"github.com/fleetdispatch/cluster/internal/discovery"
	"github.com/fleetdispatch/cluster/internal/ingest"
	"github.com/fleetdispatch/cluster/internal/liveness"
	"github.com/fleetdispatch/cluster/internal/model"
	"github.com/fleetdispatch/cluster/internal/reqendpoint"
	"github.com/fleetdispatch/cluster/internal/replicate"
	"github.com/fleetdispatch/cluster/internal/store"
)

// Supervisor wires configured addresses to the components appropriate for
// the process's current role and runs until ctx is cancelled.
type Supervisor struct {
	Store *store.Store
	Cfg   *config.EnvConfig
}

func localAddr(host string, port int) string {
	return fmt.Sprintf("tcp://%s:%d", host, port)
}

func peerAddr(host string, port int) string {
	return fmt.Sprintf("tcp://%s:%d", host, port)
}

// Run negotiates an initial role and runs the corresponding component set,
// handling at most one standby-to-primary promotion, until ctx is
// cancelled or an unrecoverable component error occurs.
func (sv *Supervisor) Run(ctx context.Context) error {
	discoveryPeer := peerAddr(sv.Cfg.PeerAddress, sv.Cfg.DiscoveryPort)
	role := discovery.Negotiate(discoveryPeer, sv.Cfg.DiscoveryTimeout)
	log.Printf("supervisor: negotiated initial role %s", role)

	for {
		switch role {
		case model.RolePrimary:
			return sv.runPrimary(ctx)
		case model.RoleStandby:
			promoted, err := sv.runStandby(ctx)
			if err != nil {
				return err
			}
			if !promoted {
				return nil // ctx cancelled, clean shutdown
			}
			log.Println("supervisor: promoting standby to primary")
			sv.Store.Reset()
			role = model.RolePrimary
		default:
			return fmt.Errorf("supervisor: unknown role %v", role)
		}
	}
}

// runPrimary starts the full primary component set (A, D, E, F, G-producer,
// H-responder, I-responder) and blocks until ctx is cancelled or one of them
// fails.
func (sv *Supervisor) runPrimary(ctx context.Context) error {
	cfg := sv.Cfg
	queue := assign.NewQueue(cfg.AssignQueueSize)

	ingestWorker := &ingest.Worker{
		Store:   sv.Store,
		GridN:   cfg.GridN,
		GridM:   cfg.GridM,
		Address: localAddr(cfg.ListenAddress, cfg.PositionPort),
	}
	reqWorker := &reqendpoint.Worker{
		Store:       sv.Store,
		Address:     localAddr(cfg.ListenAddress, cfg.RequestPort),
		Assignments: queue,
	}
	publisher := &assign.Publisher{
		Queue:   queue,
		Address: localAddr(cfg.ListenAddress, cfg.AssignPort),
	}
	producer := &replicate.Producer{
		Store:    sv.Store,
		Address:  localAddr(cfg.ListenAddress, cfg.ReplicationPort),
		Interval: cfg.ReplicationInterval,
	}
	healthResponder := &liveness.Responder{
		Address: localAddr(cfg.ListenAddress, cfg.HealthPort),
	}
	discoveryResponder := &discovery.Responder{
		Address: localAddr(cfg.ListenAddress, cfg.DiscoveryPort),
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return ingestWorker.Run(gctx) })
	group.Go(func() error { return reqWorker.Run(gctx) })
	group.Go(func() error { return publisher.Run(gctx) })
	group.Go(func() error { return producer.Run(gctx) })
	group.Go(func() error { return healthResponder.Run(gctx) })
	group.Go(func() error { return discoveryResponder.Run(gctx) })
	group.Go(func() error { return sv.runSnapshotWriter(gctx) })

	return group.Wait()
}

// runStandby starts the standby component set (G-consumer, H-prober) and
// returns promoted=true if the prober gave up on the primary, or
// promoted=false if ctx was cancelled first.
func (sv *Supervisor) runStandby(ctx context.Context) (promoted bool, err error) {
	cfg := sv.Cfg
	consumer := &replicate.Consumer{
		Store:   sv.Store,
		Address: peerAddr(cfg.PeerAddress, cfg.ReplicationPort),
	}
	prober := &liveness.Prober{
		Address:   peerAddr(cfg.PeerAddress, cfg.HealthPort),
		Interval:  cfg.LivenessInterval,
		Timeout:   cfg.LivenessTimeout,
		MaxMisses: 1, // §4.3: a single timeout or unexpected reply promotes the standby
		OnMiss: func(misses int) {
			log.Printf("supervisor: missed %d consecutive liveness probes", misses)
		},
	}

	group, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()

	group.Go(func() error { return consumer.Run(gctx) })
	group.Go(func() error {
		runErr := prober.Run(gctx)
		if errors.Is(runErr, liveness.ErrPromote) {
			promoted = true
			cancel()
			return nil
		}
		return runErr
	})

	if waitErr := group.Wait(); waitErr != nil {
		return false, waitErr
	}
	return promoted, nil
}

// runSnapshotWriter periodically persists the store to state.json,
// independent of replication (§6.7).
func (sv *Supervisor) runSnapshotWriter(ctx context.Context) error {
	cfg := sv.Cfg
	ticker := time.NewTicker(cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := sv.Store.WriteStateFile(); err != nil {
				log.Printf("supervisor: state file write failed: %v", err)
			}
		}
	}
}
