// Copyright 2025 The neocore Authors
//
// Package config loads the node's out-of-scope operational configuration
// (data directory, logging, listen addresses) the way the rest of this
// lineage's services do: flat struct, env-var loader, safe defaults. The
// core's own in-scope data lives in ProtocolSettings (protocol.go).
package config

import (
	"os"
)

// NodeConfig holds the operational configuration for a wiring binary
// embedding this core (cmd/ncored). RPC/P2P/wallet surfaces are this
// module's explicit non-goals; what remains is the minimum a process needs
// to start.
type NodeConfig struct {
	DataDir     string
	LogLevel    string
	MetricsAddr string
}

// Load reads NodeConfig from environment variables, with safe defaults.
func Load() (*NodeConfig, error) {
	cfg := &NodeConfig{
		DataDir:     getEnv("DATA_DIR", "./data"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		MetricsAddr: getEnv("METRICS_ADDR", "127.0.0.1:9090"),
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
