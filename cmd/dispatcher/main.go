// Command dispatcher runs one instance of the taxi dispatch cluster: a
// primary or standby node that negotiates its role at startup and serves
// the appropriate component set until terminated.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetdispatch/cluster/internal/buildinfo"
	"github.com/fleetdispatch/cluster/internal/config"
	"github.com/fleetdispatch/cluster/internal/store"
	"github.com/fleetdispatch/cluster/internal/supervisor"
)

func main() {
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		fatalf("%v", err)
	}
	log.Printf("dispatcher %s starting (grid %dx%d)", buildinfo.Version, envCfg.GridN, envCfg.GridM)

	st := store.New(store.Config{
		MaxLatencySamples: envCfg.MaxLatencySamples,
		StateFilePath:     envCfg.StateFilePath,
		LedgerFilePath:    envCfg.LedgerFilePath,
		MetricsFilePath:   envCfg.MetricsFilePath,
	})

	sv := &supervisor.Supervisor{Store: st, Cfg: envCfg}

	runCtx, cancelRun := context.WithCancel(context.Background())
	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- sv.Run(runCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runtimeErr error
	select {
	case sig := <-quit:
		log.Printf("received signal %s, shutting down...", sig)
		cancelRun()
	case err := <-runErrCh:
		runtimeErr = err
		log.Printf("component set exited (%v), shutting down...", err)
	}

	if runtimeErr == nil {
		select {
		case runtimeErr = <-runErrCh:
		case <-time.After(5 * time.Second):
			log.Println("timed out waiting for components to stop")
		}
	}

	if err := st.WriteStateFile(); err != nil {
		log.Printf("final state file write failed: %v", err)
	}

	log.Println("dispatcher stopped")
	if runtimeErr != nil {
		fatalf("runtime error: %v", runtimeErr)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(1)
}
