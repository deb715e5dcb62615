package pokerclient

import "time"

const (
	// General
	UnsetValue = -1
)

// Connection lifecycle parameters. The reconnection values are a fixed
// protocol contract with the table server, not tunables.
const (
	DefaultAuthTimeout       = 10 * time.Second
	DefaultKeepAliveInterval = 30 * time.Second

	ReconnectBaseDelay   = 1000 * time.Millisecond
	ReconnectMaxDelay    = 30000 * time.Millisecond
	ReconnectMaxAttempts = 5
)

const (
	// Fold decision timing
	DefaultFoldCountdown = 3 * time.Second
	DefaultRevealHold    = 1500 * time.Millisecond

	// How long to wait for fresh snapshots of all subscribed tables
	// after a reconnection before giving up on stragglers (Seconds)
	DefaultResyncTimeout = 10
)
