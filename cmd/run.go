package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/linkmond/linkmond/core"
	"github.com/linkmond/linkmond/impl"
	"github.com/linkmond/linkmond/state"
)

var (
	logPath string
	verbose bool

	assumeDrained         bool
	overrideDrainState    bool
	enableV4              bool
	enableSegmentRouting  bool
	enablePerfMeasurement bool
	useRtt                bool

	throttleWindow       time.Duration
	backoffInit          time.Duration
	backoffMax           time.Duration
	syncRetryInit        time.Duration
	syncRetryMax         time.Duration
	platformSyncInterval time.Duration
	adjacencyHold        time.Duration
	adjDbTTL             time.Duration
	allocatorSettle      time.Duration

	srRangeLow  uint32
	srRangeHigh uint32

	areaFlags []string
)

// runCmd starts the Link Monitor daemon in the foreground.
var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Run the link monitor",
	GroupID: "lm",
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath
		if path == "" {
			path = "/etc/linkmond/linkmond.yaml"
		}
		data, err := os.ReadFile(path)
		if err != nil {
			panic(err)
		}

		var cfg state.Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			panic(err)
		}
		if err := applyFlagOverrides(cmd, &cfg); err != nil {
			panic(err)
		}
		if err := state.ApplyDefaults(&cfg); err != nil {
			panic(err)
		}
		if err := state.Validate(&cfg); err != nil {
			panic(err)
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		metrics := state.NewMetrics()
		deps := core.Deps{
			KVStore:     impl.NewKVStore(),
			ConfigStore: impl.NewConfigStore(cfg.ConfigStorePath),
			Netlink:     impl.NewNetlinkTransport(),
			Metrics:     metrics,
		}

		metricsCtx, cancelMetrics := context.WithCancel(context.Background())
		defer cancelMetrics()
		go func() {
			if err := impl.ServeMetrics(metricsCtx, cfg.MetricsAddr, metrics); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()

		if err := core.Start(&cfg, deps, level, logPath); err != nil {
			panic(err)
		}
	},
}

// applyFlagOverrides layers every explicitly-set command-line tunable onto
// the YAML-loaded config (spec §6). Flags not given on the command line
// are left alone so the config file's value survives; "explicitly set" is
// cobra's Changed(), not a zero-value check, so --enable-v4=false and an
// unset --enable-v4 are distinguishable.
func applyFlagOverrides(cmd *cobra.Command, cfg *state.Config) error {
	flags := cmd.Flags()
	boolOverrides := []struct {
		name string
		dst  *bool
		src  bool
	}{
		{"assume-drained", &cfg.AssumeDrained, assumeDrained},
		{"override-drain-state", &cfg.OverrideDrainState, overrideDrainState},
		{"enable-v4", &cfg.EnableV4, enableV4},
		{"enable-segment-routing", &cfg.EnableSegmentRouting, enableSegmentRouting},
		{"enable-perf-measurement", &cfg.EnablePerfMeasurement, enablePerfMeasurement},
		{"use-rtt", &cfg.UseRtt, useRtt},
	}
	for _, o := range boolOverrides {
		if flags.Changed(o.name) {
			*o.dst = o.src
		}
	}

	durationOverrides := []struct {
		name string
		dst  *time.Duration
		src  time.Duration
	}{
		{"throttle-window", &cfg.ThrottleWindow, throttleWindow},
		{"backoff-init", &cfg.BackoffInit, backoffInit},
		{"backoff-max", &cfg.BackoffMax, backoffMax},
		{"sync-retry-init", &cfg.SyncRetryInit, syncRetryInit},
		{"sync-retry-max", &cfg.SyncRetryMax, syncRetryMax},
		{"platform-sync-interval", &cfg.PlatformSyncInterval, platformSyncInterval},
		{"adjacency-hold", &cfg.AdjacencyHold, adjacencyHold},
		{"adj-db-ttl", &cfg.AdjDbTTL, adjDbTTL},
		{"allocator-settle", &cfg.AllocatorSettle, allocatorSettle},
	}
	for _, o := range durationOverrides {
		if flags.Changed(o.name) {
			*o.dst = o.src
		}
	}

	if flags.Changed("sr-range-low") {
		cfg.SrRangeLow = srRangeLow
	}
	if flags.Changed("sr-range-high") {
		cfg.SrRangeHigh = srRangeHigh
	}

	for _, spec := range areaFlags {
		area, err := parseAreaFlag(spec)
		if err != nil {
			return err
		}
		cfg.Areas = append(cfg.Areas, area)
	}
	return nil
}

// parseAreaFlag parses one --area flag of the form
// "id:discovery_regex:redistribute_regex" into an AreaConfig, per the
// per-area configuration named in spec §6.
func parseAreaFlag(spec string) (state.AreaConfig, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return state.AreaConfig{}, fmt.Errorf("--area %q: expected id:discovery_regex:redistribute_regex", spec)
	}
	return state.AreaConfig{
		Area:              state.AreaId(parts[0]),
		DiscoveryRegex:    parts[1],
		RedistributeRegex: parts[2],
	}, nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")
	runCmd.Flags().StringVarP(&logPath, "log-file", "l", "", "optional JSON log file, in addition to console output")

	runCmd.Flags().BoolVar(&assumeDrained, "assume-drained", false, "seed the overload bit as set on first boot")
	runCmd.Flags().BoolVar(&overrideDrainState, "override-drain-state", false, "force the overload bit to assume-drained even if persisted state disagrees")
	runCmd.Flags().BoolVar(&enableV4, "enable-v4", false, "redistribute IPv4 prefixes in addition to IPv6")
	runCmd.Flags().BoolVar(&enableSegmentRouting, "enable-segment-routing", false, "run the range allocator and publish node labels")
	runCmd.Flags().BoolVar(&enablePerfMeasurement, "enable-perf-measurement", false, "attach a perf event to every published adjacency database")
	runCmd.Flags().BoolVar(&useRtt, "use-rtt", false, "derive adjacency metrics from measured RTT instead of a constant")

	runCmd.Flags().DurationVar(&throttleWindow, "throttle-window", 0, "debounce window for advertisement (default from config/state defaults)")
	runCmd.Flags().DurationVar(&backoffInit, "backoff-init", 0, "initial flap-damping backoff interval")
	runCmd.Flags().DurationVar(&backoffMax, "backoff-max", 0, "maximum flap-damping backoff interval")
	runCmd.Flags().DurationVar(&syncRetryInit, "sync-retry-init", 0, "initial netlink resync retry interval")
	runCmd.Flags().DurationVar(&syncRetryMax, "sync-retry-max", 0, "maximum netlink resync retry interval")
	runCmd.Flags().DurationVar(&platformSyncInterval, "platform-sync-interval", 0, "periodic full netlink resync interval")
	runCmd.Flags().DurationVar(&adjacencyHold, "adjacency-hold", 0, "hold-down before the range allocator starts; interface and redistribute-address advertisement are not held")
	runCmd.Flags().DurationVar(&adjDbTTL, "adj-db-ttl", 0, "TTL of a published adjacency database entry")
	runCmd.Flags().DurationVar(&allocatorSettle, "allocator-settle", 0, "settling interval before a proposed node label is accepted")

	runCmd.Flags().Uint32Var(&srRangeLow, "sr-range-low", 0, "inclusive low end of the segment-routing node label range")
	runCmd.Flags().Uint32Var(&srRangeHigh, "sr-range-high", 0, "exclusive high end of the segment-routing node label range")

	runCmd.Flags().StringArrayVar(&areaFlags, "area", nil, "repeatable: id:discovery_regex:redistribute_regex, appended to the areas in the config file")
}
