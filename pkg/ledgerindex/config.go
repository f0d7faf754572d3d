// Copyright 2025 The neocore Authors
package ledgerindex

import "time"

// Config configures the secondary SQL index's connection pool. It is a
// sibling to pkg/config's NodeConfig and ProtocolSettings rather than a
// field on either: the index itself is optional, a query surface outside
// the core proper, so nothing in pkg/ledger or pkg/consensus should have to
// know this type exists.
type Config struct {
	DSN         string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// DefaultConfig returns pool sizing suitable for a single-node index
// feeding off one ledger's post-persist hook.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:         dsn,
		MaxConns:    10,
		MinConns:    1,
		MaxIdleTime: 5 * time.Minute,
		MaxLifetime: time.Hour,
	}
}
