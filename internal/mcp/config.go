package mcp

import "time"

// ClientConfig holds the tunables for a Client, following the teacher's
// ExecutorConfig/DefaultExecutorConfig pattern: one struct of named
// constants with a constructor supplying defaults.
type ClientConfig struct {
	MaxRetries             int
	ResourceTimeout        time.Duration
	FailureThreshold       int
	CircuitBreakerCooldown time.Duration
	MaxContextItems        int
	MaxParallelTools       int
	CacheTTL               time.Duration
	CacheMaxSize           int
	TraceEnabled           bool
	DryRun                 bool
}

// DefaultClientConfig returns the spec's default tunables.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxRetries:             3,
		ResourceTimeout:        30 * time.Second,
		FailureThreshold:       5,
		CircuitBreakerCooldown: 60 * time.Second,
		MaxContextItems:        200,
		MaxParallelTools:       4,
		CacheTTL:               5 * time.Minute,
		CacheMaxSize:           500,
		TraceEnabled:           false,
		DryRun:                 false,
	}
}
