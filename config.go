package objproxy

import "time"

// Config carries the options that govern one Client or Server: call
// timeouts, release batching, and the auto-proxy threshold, all as a
// flat struct with package defaults (no external config/flag library;
// CLI bootstrap is out of scope for this module).
type Config struct {
	// DefaultTimeout is how long a sync call waits for a reply before
	// failing with TIMEOUT. Zero means use the package default of 10
	// seconds.
	DefaultTimeout time.Duration

	// ReleaseBatchInterval and ReleaseBatchMax control RELEASE
	// coalescing. Zero means use package defaults.
	ReleaseBatchInterval time.Duration
	ReleaseBatchMax      int

	// DebugImmediateRelease disables coalescing, sending each RELEASE
	// the instant a proxy is dropped. Debug-only.
	DebugImmediateRelease bool

	// AutoProxyThreshold is the byte size above which AUTO return mode
	// prefers by-reference over by-value.
	AutoProxyThreshold int

	// ArraySerializer enables the optional numeric-array codec plug-in.
	ArraySerializer bool

	// Logger, if nil, defaults to a package logger at LogLevelInfo.
	Logger Logger
}

// Default config values.
const (
	DefaultSyncTimeout        = 10 * time.Second
	DefaultReleaseBatchMillis = 50
	DefaultReleaseBatchMax    = 64
	DefaultAutoProxyThreshold = 4096
)

// withDefaults returns a copy of c with every zero-valued field replaced
// by its package default.
func (c Config) withDefaults() Config {
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = DefaultSyncTimeout
	}
	if c.ReleaseBatchInterval == 0 {
		c.ReleaseBatchInterval = DefaultReleaseBatchMillis * time.Millisecond
	}
	if c.ReleaseBatchMax == 0 {
		c.ReleaseBatchMax = DefaultReleaseBatchMax
	}
	if c.AutoProxyThreshold == 0 {
		c.AutoProxyThreshold = DefaultAutoProxyThreshold
	}
	if c.Logger == nil {
		c.Logger = NewLogger("objproxy", LogLevelInfo)
	}
	return c
}
