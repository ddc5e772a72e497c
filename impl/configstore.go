package impl

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/linkmond/linkmond/state"
)

// ConfigStore is a YAML-file-backed state.ConfigStore, matching the
// teacher's config-file precedent (state/config.go) rather than a binary
// or thrift-shaped format. AdjMetricOverrides keys are composite
// (remote-node, local-interface) pairs, which YAML cannot use as mapping
// keys, so the file stores them as a flat slice and fromWire reassembles
// the map on load.
type ConfigStore struct {
	path string
}

func NewConfigStore(path string) *ConfigStore {
	return &ConfigStore{path: path}
}

type adjOverrideEntry struct {
	RemoteNode string `yaml:"remote_node"`
	LocalIface string `yaml:"local_iface"`
	Metric     uint32 `yaml:"metric"`
}

type persistentStateWire struct {
	NodeLabel           uint32             `yaml:"node_label"`
	IsOverloaded        bool               `yaml:"is_overloaded"`
	OverloadedLinks     []string           `yaml:"overloaded_links"`
	LinkMetricOverrides map[string]uint32  `yaml:"link_metric_overrides"`
	AdjMetricOverrides  []adjOverrideEntry `yaml:"adj_metric_overrides"`
}

func toWire(v *state.PersistentState) persistentStateWire {
	w := persistentStateWire{
		NodeLabel:           v.NodeLabel,
		IsOverloaded:        v.IsOverloaded,
		LinkMetricOverrides: v.LinkMetricOverrides,
	}
	for name := range v.OverloadedLinks {
		w.OverloadedLinks = append(w.OverloadedLinks, name)
	}
	for key, metric := range v.AdjMetricOverrides {
		w.AdjMetricOverrides = append(w.AdjMetricOverrides, adjOverrideEntry{
			RemoteNode: string(key.RemoteNode),
			LocalIface: key.LocalIface,
			Metric:     metric,
		})
	}
	return w
}

func fromWire(w persistentStateWire) *state.PersistentState {
	v := state.NewPersistentState()
	v.NodeLabel = w.NodeLabel
	v.IsOverloaded = w.IsOverloaded
	for _, name := range w.OverloadedLinks {
		v.OverloadedLinks[name] = struct{}{}
	}
	for name, metric := range w.LinkMetricOverrides {
		v.LinkMetricOverrides[name] = metric
	}
	for _, e := range w.AdjMetricOverrides {
		key := state.AdjacencyKey{RemoteNode: state.NodeId(e.RemoteNode), LocalIface: e.LocalIface}
		v.AdjMetricOverrides[key] = e.Metric
	}
	return v
}

// Load returns nil, nil if the file does not exist, honoring the
// ConfigStore contract (state/ports.go) so callers can distinguish
// first-boot from a persisted-but-empty record.
func (c *ConfigStore) Load(key string) (*state.PersistentState, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config store %s: %w", c.path, err)
	}
	var w persistentStateWire
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal config store %s: %w", c.path, err)
	}
	return fromWire(w), nil
}

func (c *ConfigStore) Store(key string, v *state.PersistentState) error {
	data, err := yaml.Marshal(toWire(v))
	if err != nil {
		return fmt.Errorf("marshal persistent state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("mkdir config store dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write config store %s: %w", tmp, err)
	}
	return os.Rename(tmp, c.path)
}
