// Package config loads the dispatcher's environment-driven configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvConfig holds all environment-variable-driven settings for a dispatcher
// process. Every field has a default, so the process runs with zero
// configuration; the peer address, used to find the discovery port, defaults
// to localhost.
type EnvConfig struct {
	// Network
	ListenAddress string
	PeerAddress   string // host of the other instance in the pair, for discovery/liveness dialing

	// Ports (§6)
	PositionPort    int
	AssignPort      int
	RequestPort     int
	DiscoveryPort   int
	HealthPort      int
	ReplicationPort int

	// Grid bounds (§3): [0,N] x [0,M]
	GridN int
	GridM int

	// Timeouts / intervals (§5)
	DiscoveryTimeout    time.Duration
	LivenessTimeout     time.Duration
	LivenessInterval    time.Duration
	ReplicationInterval time.Duration
	SnapshotInterval    time.Duration
	UserReplyTimeout    time.Duration

	// Bounded metrics window (§3 "bounded append-only list")
	MaxLatencySamples int

	// Assignment publisher queue (§4.7 "bounded queue")
	AssignQueueSize int

	// Persisted files (§6.7)
	StateFilePath   string
	LedgerFilePath  string
	MetricsFilePath string
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	cfg.ListenAddress = strings.TrimSpace(envStr("DISPATCH_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.PeerAddress = strings.TrimSpace(envStr("DISPATCH_PEER_ADDRESS", "localhost"))

	cfg.PositionPort = envInt("DISPATCH_POSITION_PORT", 5555, &errs)
	cfg.AssignPort = envInt("DISPATCH_ASSIGN_PORT", 5556, &errs)
	cfg.RequestPort = envInt("DISPATCH_REQUEST_PORT", 5557, &errs)
	cfg.DiscoveryPort = envInt("DISPATCH_DISCOVERY_PORT", 5560, &errs)
	cfg.HealthPort = envInt("DISPATCH_HEALTH_PORT", 5562, &errs)
	cfg.ReplicationPort = envInt("DISPATCH_REPLICATION_PORT", 5561, &errs)

	cfg.GridN = envInt("DISPATCH_GRID_N", 100, &errs)
	cfg.GridM = envInt("DISPATCH_GRID_M", 100, &errs)

	cfg.DiscoveryTimeout = envDuration("DISPATCH_DISCOVERY_TIMEOUT", 2*time.Second, &errs)
	cfg.LivenessTimeout = envDuration("DISPATCH_LIVENESS_TIMEOUT", 2*time.Second, &errs)
	cfg.LivenessInterval = envDuration("DISPATCH_LIVENESS_INTERVAL", 2*time.Second, &errs)
	cfg.ReplicationInterval = envDuration("DISPATCH_REPLICATION_INTERVAL", 2*time.Second, &errs)
	cfg.SnapshotInterval = envDuration("DISPATCH_SNAPSHOT_INTERVAL", 5*time.Second, &errs)
	cfg.UserReplyTimeout = envDuration("DISPATCH_USER_REPLY_TIMEOUT", 5*time.Second, &errs)

	cfg.MaxLatencySamples = envInt("DISPATCH_MAX_LATENCY_SAMPLES", 4096, &errs)
	cfg.AssignQueueSize = envInt("DISPATCH_ASSIGN_QUEUE_SIZE", 256, &errs)

	cfg.StateFilePath = envStr("DISPATCH_STATE_FILE", "state.json")
	cfg.LedgerFilePath = envStr("DISPATCH_LEDGER_FILE", "ledger.json")
	cfg.MetricsFilePath = envStr("DISPATCH_METRICS_FILE", "metrics.json")

	if cfg.ListenAddress == "" {
		errs = append(errs, "DISPATCH_LISTEN_ADDRESS must not be empty")
	}
	if cfg.PeerAddress == "" {
		errs = append(errs, "DISPATCH_PEER_ADDRESS must not be empty")
	}

	for _, p := range []struct {
		name  string
		value int
	}{
		{"DISPATCH_POSITION_PORT", cfg.PositionPort},
		{"DISPATCH_ASSIGN_PORT", cfg.AssignPort},
		{"DISPATCH_REQUEST_PORT", cfg.RequestPort},
		{"DISPATCH_DISCOVERY_PORT", cfg.DiscoveryPort},
		{"DISPATCH_HEALTH_PORT", cfg.HealthPort},
		{"DISPATCH_REPLICATION_PORT", cfg.ReplicationPort},
	} {
		validatePort(p.name, p.value, &errs)
	}

	validatePositive("DISPATCH_GRID_N", cfg.GridN, &errs)
	validatePositive("DISPATCH_GRID_M", cfg.GridM, &errs)
	validatePositive("DISPATCH_MAX_LATENCY_SAMPLES", cfg.MaxLatencySamples, &errs)
	validatePositive("DISPATCH_ASSIGN_QUEUE_SIZE", cfg.AssignQueueSize, &errs)

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return cfg, nil
}

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}
