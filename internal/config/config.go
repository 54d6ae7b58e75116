// Package config loads and validates a chordnode's startup parameters:
// the ring identifier, listen addresses, bootstrap peers, stabilization
// cadence, and logging knobs named by cmd/chordnode's flag set. Modeled
// on the teacher's config package, extended with the auth token and
// finger-fixing/liveness-check intervals the expanded stabilization core
// needs that the teacher's own config never carried.
package config

import (
	"fmt"
	"time"

	"github.com/ringkeeper/chordkeep/internal/stabilizer"
)

// Config holds everything a chordnode needs to start.
type Config struct {
	// Node identification and listen addresses.
	NodeID string
	Host   string
	Port   int

	// HTTP inspection API (health/ring/ws).
	HTTPPort int

	// BootstrapNodes holds host:port addresses of existing peers. Nothing
	// in this module reads it: cmd/chordnode joins through the single
	// address given by its -bootstrap flag.
	BootstrapNodes []string

	// Chord parameters.
	M                        int           // identifier space size in bits (160)
	StabilizeInterval        time.Duration // cadence of stabilizer.Step
	FixFingersInterval       time.Duration // cadence of the finger-fixing loop
	CheckPredecessorInterval time.Duration // cadence of the supervisor's sweep
	SuccessorListSize        int           // validated to 1..stabilizer.MaxSuccessors; the stabilizer's cap is MaxSuccessors itself
	RPCTimeout               time.Duration // deadline applied to structural RPCs

	// AuthToken, if non-empty, is required on every inbound RPC and sent
	// on every outbound one (see transport.AuthInterceptor).
	AuthToken string

	// Logging.
	LogLevel  string // trace, debug, info, warn, error
	LogFormat string // json, console
}

// DefaultConfig returns the design defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:                     "127.0.0.1",
		Port:                     8440,
		HTTPPort:                 8080,
		M:                        160,
		StabilizeInterval:        1 * time.Second,
		FixFingersInterval:       3 * time.Second,
		CheckPredecessorInterval: 5 * time.Second,
		SuccessorListSize:        stabilizer.MaxSuccessors,
		RPCTimeout:               5 * time.Second,
		LogLevel:                 "info",
		LogFormat:                "console",
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.M <= 0 || c.M > 256 {
		return fmt.Errorf("M must be between 1 and 256, got %d", c.M)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.SuccessorListSize <= 0 || c.SuccessorListSize > stabilizer.MaxSuccessors {
		return fmt.Errorf("successor list size must be between 1 and %d, got %d", stabilizer.MaxSuccessors, c.SuccessorListSize)
	}
	return nil
}
