// Package common carries worker-wide configuration shared by the
// compute committee, batch executor, and runtime client. Populating a
// Config is a dependency-injection concern left to the process that
// wires this package together; this file only defines the struct and
// its defaults.
package common

import "time"

// KeyManagerConfig describes how to reach the key manager's client
// endpoint. The key manager runtime itself is out of scope; only this
// client-facing address matters here.
type KeyManagerConfig struct {
	Host string
	Port uint16
	Cert []byte

	Disabled bool
}

// TestConfig holds the deterministic fault-injection hooks exercised
// through roothash/api.TestableBackend by the roothash/tests conformance
// suite.
type TestConfig struct {
	InjectDiscrepancy    bool
	FailAfterCommit      bool
	SkipCommitUntilRound uint64
}

// Config is the worker-relevant configuration subset.
type Config struct {
	MaxBatchSize      uint64
	MaxBatchSizeBytes uint64
	MaxBatchTimeout   time.Duration

	ComputeReplicas          uint64
	ComputeBackupReplicas    uint64
	ComputeAllowedStragglers uint64

	KeyManager KeyManagerConfig

	ForwardedRPCTimeout time.Duration

	Test TestConfig
}

// DefaultConfig returns a Config populated with conservative defaults,
// suitable as a starting point before flag/env overrides are applied
// by a layer outside this package.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:             1000,
		MaxBatchSizeBytes:        16 * 1024 * 1024,
		MaxBatchTimeout:          1000 * time.Millisecond,
		ComputeReplicas:          1,
		ComputeBackupReplicas:    0,
		ComputeAllowedStragglers: 0,
		ForwardedRPCTimeout:      15 * time.Second,
	}
}
