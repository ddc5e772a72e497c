package state

import (
	"fmt"
	"regexp"
	"time"

	"dario.cat/mergo"
)

// AreaConfig is the per-area configuration named in spec §6: discovery
// regex, redistribution regex, and the prefix forwarding type/algorithm.
// ForwardingType and ForwardingAlgo are loaded from the config file but
// are not read by the core or carried in any outbound message.
type AreaConfig struct {
	Area               AreaId `yaml:"area"`
	DiscoveryRegex     string `yaml:"discovery_regex"`
	RedistributeRegex  string `yaml:"redistribute_regex"`
	ForwardingType     string `yaml:"forwarding_type,omitempty"`
	ForwardingAlgo     string `yaml:"forwarding_algo,omitempty"`

	discoveryRe    *regexp.Regexp
	redistributeRe *regexp.Regexp
}

func (a *AreaConfig) compile() error {
	var err error
	a.discoveryRe, err = regexp.Compile(a.DiscoveryRegex)
	if err != nil {
		return fmt.Errorf("area %s: bad discovery_regex: %w", a.Area, err)
	}
	a.redistributeRe, err = regexp.Compile(a.RedistributeRegex)
	if err != nil {
		return fmt.Errorf("area %s: bad redistribute_regex: %w", a.Area, err)
	}
	return nil
}

// MatchesDiscovery reports whether this area publishes neighbor-discovery
// for the given interface name.
func (a *AreaConfig) MatchesDiscovery(ifName string) bool {
	return a.discoveryRe != nil && a.discoveryRe.MatchString(ifName)
}

// MatchesRedistribute reports whether this area redistributes prefixes
// owned by the given interface name.
func (a *AreaConfig) MatchesRedistribute(ifName string) bool {
	return a.redistributeRe != nil && a.redistributeRe.MatchString(ifName)
}

// Config is the node's full configuration: identity, per-area config, and
// the tunables of spec §6.
type Config struct {
	NodeName string       `yaml:"node_name"`
	Areas    []AreaConfig `yaml:"areas"`

	EnableV4               bool `yaml:"enable_v4"`
	EnableSegmentRouting    bool `yaml:"enable_segment_routing"`
	EnablePerfMeasurement   bool `yaml:"enable_perf_measurement"`
	UseRtt                  bool `yaml:"use_rtt"`

	AssumeDrained      bool `yaml:"assume_drained"`
	OverrideDrainState bool `yaml:"override_drain_state"`

	SrRangeLow  uint32 `yaml:"sr_range_low,omitempty"`
	SrRangeHigh uint32 `yaml:"sr_range_high,omitempty"`

	ThrottleWindow        time.Duration `yaml:"throttle_window,omitempty"`
	BackoffInit           time.Duration `yaml:"backoff_init,omitempty"`
	BackoffMax            time.Duration `yaml:"backoff_max,omitempty"`
	SyncRetryInit         time.Duration `yaml:"sync_retry_init,omitempty"`
	SyncRetryMax          time.Duration `yaml:"sync_retry_max,omitempty"`
	PlatformSyncInterval  time.Duration `yaml:"platform_sync_interval,omitempty"`
	AdjacencyHold         time.Duration `yaml:"adjacency_hold,omitempty"`
	AdjDbTTL              time.Duration `yaml:"adj_db_ttl,omitempty"`
	AllocatorSettle       time.Duration `yaml:"allocator_settle,omitempty"`

	AdminSocketPath string `yaml:"admin_socket_path,omitempty"`
	ConfigStorePath string `yaml:"config_store_path,omitempty"`
	MetricsAddr     string `yaml:"metrics_addr,omitempty"`
}

// ApplyDefaults fills unset tunables from state's package defaults using
// mergo, the same defaulting approach the teacher's central/node config
// merge relies on for optional fields.
func ApplyDefaults(c *Config) error {
	defaults := Config{
		ThrottleWindow:       DefaultThrottleWindow,
		BackoffInit:          DefaultBackoffInit,
		BackoffMax:           DefaultBackoffMax,
		SyncRetryInit:        DefaultSyncRetryInit,
		SyncRetryMax:         DefaultSyncRetryMax,
		PlatformSyncInterval: DefaultPlatformSyncInterval,
		AdjacencyHold:        DefaultAdjacencyHold,
		AdjDbTTL:             DefaultAdjDbTTL,
		AllocatorSettle:      DefaultAllocatorSettle,
		AdminSocketPath:      "/var/run/linkmond.sock",
		ConfigStorePath:      "/etc/linkmond/link-monitor-config.yaml",
		MetricsAddr:          "127.0.0.1:9101",
	}
	return mergo.Merge(c, defaults)
}

// Validate compiles area regexes and checks for duplicate area ids.
func Validate(c *Config) error {
	if c.NodeName == "" {
		return fmt.Errorf("node_name must not be empty")
	}
	seen := make(map[AreaId]struct{})
	for i := range c.Areas {
		if _, dup := seen[c.Areas[i].Area]; dup {
			return fmt.Errorf("duplicate area %s", c.Areas[i].Area)
		}
		seen[c.Areas[i].Area] = struct{}{}
		if err := c.Areas[i].compile(); err != nil {
			return err
		}
	}
	if c.EnableSegmentRouting && c.SrRangeLow >= c.SrRangeHigh {
		return fmt.Errorf("sr_range_low must be < sr_range_high when segment routing is enabled")
	}
	return nil
}
