package state

import "time"

// Tunable defaults. All of these are overridable from the command line /
// Config and are deliberately vars, not consts, so tests can shrink them.
var (
	DefaultThrottleWindow = 50 * time.Millisecond

	DefaultBackoffInit = 1 * time.Second
	DefaultBackoffMax  = 60 * time.Second

	DefaultPlatformSyncInterval = 60 * time.Second
	DefaultSyncRetryInit        = 1 * time.Second
	DefaultSyncRetryMax         = 30 * time.Second

	DefaultAdjacencyHold = 10 * time.Second

	DefaultAdjDbTTL = 5 * time.Minute

	// DefaultAllocatorSettle is how long a proposed node label must go
	// unchallenged by a higher-priority proposal before it is accepted.
	DefaultAllocatorSettle = 3 * time.Second
)

const (
	ConfigStoreKey = "link-monitor-config"

	PerfEventAdjDbUpdated = "ADJ_DB_UPDATED"

	// PrefixTagInterfaceSubnet marks a redistributed prefix as coming
	// from a directly-connected interface subnet rather than a learned
	// route (spec §4.4).
	PrefixTagInterfaceSubnet = "INTERFACE_SUBNET"

	// DefaultPathPreference and DefaultSourcePreference are the
	// tie-break metrics stamped onto every redistributed interface
	// subnet, matching Open/R's well-known defaults for loopback
	// redistribution (higher wins on both axes).
	DefaultPathPreference   = 1000
	DefaultSourcePreference = 200
)
