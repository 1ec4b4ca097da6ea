package replicate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fleetdispatch/cluster/internal/model"
	"github.com/fleetdispatch/cluster/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	return store.New(store.Config{
		MaxLatencySamples: 10,
		StateFilePath:     filepath.Join(dir, "state.json"),
		LedgerFilePath:    filepath.Join(dir, "ledger.json"),
		MetricsFilePath:   filepath.Join(dir, "metrics.json"),
	})
}

func TestProducerConsumer_ReplicatesSnapshot(t *testing.T) {
	addr := "tcp://127.0.0.1:59226"

	primary := newStore(t)
	primary.UpsertPosition("t1", model.Position{X: 1, Y: 2})

	standby := newStore(t)

	producer := &Producer{Store: primary, Address: addr, Interval: 20 * time.Millisecond}
	consumer := &Consumer{Store: standby, Address: addr}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go producer.Run(ctx)
	go consumer.Run(ctx)

	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if standby.FreePoolSize() == 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if standby.FreePoolSize() != 1 {
		t.Fatalf("standby free pool size = %d, want 1 after replication", standby.FreePoolSize())
	}
	snap := standby.Snapshot()
	if _, ok := snap.Taxis["t1"]; !ok {
		t.Fatalf("standby snapshot missing replicated taxi t1: %+v", snap)
	}
}
