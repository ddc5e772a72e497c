package core

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/linkmond/linkmond/state"
)

// AdminModule serves the line-oriented admin protocol over a UNIX domain
// socket, grounded on the teacher's UAPI-style ipc.go: one bufio
// ReadWriter per connection, one newline-terminated command per
// round-trip, mutations go through DispatchWait so the reply always
// reflects the applied state.
type AdminModule struct {
	listener net.Listener
}

func (m *AdminModule) Init(s *state.State) error {
	path := s.Config.AdminSocketPath
	_ = os.Remove(path)
	l, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("admin socket listen on %s: %w", path, err)
	}
	m.listener = l

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			connId := uuid.New()
			go serveAdminConn(s.Env, connId, conn)
		}
	}()

	go func() {
		<-s.Context.Done()
		_ = l.Close()
	}()

	return nil
}

func (m *AdminModule) Cleanup(s *state.State) error {
	if m.listener != nil {
		return m.listener.Close()
	}
	return nil
}

func serveAdminConn(e *state.Env, connId uuid.UUID, conn net.Conn) {
	defer conn.Close()
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	for {
		line, err := rw.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		reply := dispatchAdminCommand(e, line)
		if _, err := rw.WriteString(reply + "\n"); err != nil {
			return
		}
		if err := rw.Flush(); err != nil {
			return
		}
		e.Log.Debug("admin command handled", "conn", connId, "cmd", line)
	}
}

func dispatchAdminCommand(e *state.Env, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERR empty command"
	}

	switch fields[0] {
	case "overload":
		if len(fields) != 2 {
			return "ERR usage: overload set|unset"
		}
		return runAdminMutation(e, func(s *state.State) error {
			return SetNodeOverload(s, fields[1] == "set")
		})

	case "link-overload":
		if len(fields) != 3 {
			return "ERR usage: link-overload <iface> set|unset"
		}
		return runAdminMutation(e, func(s *state.State) error {
			return SetInterfaceOverload(s, fields[1], fields[2] == "set")
		})

	case "link-metric":
		if len(fields) != 3 {
			return "ERR usage: link-metric <iface> <n>|clear"
		}
		metric, err := parseOptionalMetric(fields[2])
		if err != nil {
			return "ERR " + err.Error()
		}
		return runAdminMutation(e, func(s *state.State) error {
			return SetLinkMetric(s, fields[1], metric)
		})

	case "adj-metric":
		if len(fields) != 4 {
			return "ERR usage: adj-metric <remote> <iface> <n>|clear"
		}
		metric, err := parseOptionalMetric(fields[3])
		if err != nil {
			return "ERR " + err.Error()
		}
		return runAdminMutation(e, func(s *state.State) error {
			return SetAdjacencyMetric(s, state.NodeId(fields[1]), fields[2], metric)
		})

	case "dump-links":
		res, err := e.DispatchWait(func(s *state.State) (any, error) {
			return GetInterfaces(s), nil
		})
		if err != nil {
			return "ERR " + err.Error()
		}
		return formatInterfaces(res.([]InterfaceSnapshot))

	case "dump-adjacencies":
		areas := make([]state.AreaId, 0, len(fields)-1)
		for _, a := range fields[1:] {
			areas = append(areas, state.AreaId(a))
		}
		res, err := e.DispatchWait(func(s *state.State) (any, error) {
			return GetAdjacencies(s, areas), nil
		})
		if err != nil {
			return "ERR " + err.Error()
		}
		return formatAdjacencies(res.([]AdjacencySnapshot))

	default:
		return "ERR unknown command " + fields[0]
	}
}

func runAdminMutation(e *state.Env, fn func(*state.State) error) string {
	// The handler's error is carried back as the result rather than
	// returned to the dispatch loop, which would treat it as fatal.
	res, err := e.DispatchWait(func(s *state.State) (any, error) {
		return fn(s), nil
	})
	if err != nil {
		return "ERR " + err.Error()
	}
	if herr, _ := res.(error); herr != nil {
		return "ERR " + herr.Error()
	}
	return "OK"
}

func parseOptionalMetric(field string) (*uint32, error) {
	if field == "clear" {
		return nil, nil
	}
	n, err := strconv.ParseUint(field, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad metric %q: %w", field, err)
	}
	v := uint32(n)
	return &v, nil
}

// --- RPC surface handlers (spec §4.6) --------------------------------------

// SetNodeOverload sets or clears node drain. No-op if already in the
// requested state; otherwise persists and advertises immediately,
// bypassing the throttle.
func SetNodeOverload(s *state.State, overload bool) error {
	if s.Persist.IsOverloaded == overload {
		return nil
	}
	s.Persist.IsOverloaded = overload
	if err := persistState(s); err != nil {
		return err
	}
	for i := range s.Config.Areas {
		if err := advertiseAdjacencyDatabase(s, s.Config.Areas[i].Area); err != nil {
			return err
		}
	}
	return nil
}

// SetInterfaceOverload marks a single interface overloaded/clear.
func SetInterfaceOverload(s *state.State, name string, overload bool) error {
	if _, ok := s.Ifaces.Get(name); !ok {
		return fmt.Errorf("unknown interface %q", name)
	}
	_, already := s.Persist.OverloadedLinks[name]
	if already == overload {
		return nil
	}
	if overload {
		s.Persist.OverloadedLinks[name] = struct{}{}
	} else {
		delete(s.Persist.OverloadedLinks, name)
	}
	if err := persistState(s); err != nil {
		return err
	}
	scheduleDebouncedAdjacencyAdvertise(s)
	return nil
}

// SetLinkMetric sets (metric != nil) or clears (metric == nil) a
// per-interface metric override.
func SetLinkMetric(s *state.State, name string, metric *uint32) error {
	if _, ok := s.Ifaces.Get(name); !ok {
		return fmt.Errorf("unknown interface %q", name)
	}
	cur, had := s.Persist.LinkMetricOverrides[name]
	if metric == nil {
		if !had {
			return nil
		}
		delete(s.Persist.LinkMetricOverrides, name)
	} else {
		if had && cur == *metric {
			return nil
		}
		s.Persist.LinkMetricOverrides[name] = *metric
	}
	if err := persistState(s); err != nil {
		return err
	}
	scheduleDebouncedAdjacencyAdvertise(s)
	return nil
}

// SetAdjacencyMetric sets/clears a per-adjacency metric override.
func SetAdjacencyMetric(s *state.State, remote state.NodeId, iface string, metric *uint32) error {
	key := state.AdjacencyKey{RemoteNode: remote, LocalIface: iface}
	if _, ok := findAdjacencyArea(s, key); !ok {
		return fmt.Errorf("unknown adjacency (%s, %s)", remote, iface)
	}
	cur, had := s.Persist.AdjMetricOverrides[key]
	if metric == nil {
		if !had {
			return nil
		}
		delete(s.Persist.AdjMetricOverrides, key)
	} else {
		if had && cur == *metric {
			return nil
		}
		s.Persist.AdjMetricOverrides[key] = *metric
	}
	if err := persistState(s); err != nil {
		return err
	}
	scheduleDebouncedAdjacencyAdvertise(s)
	return nil
}

func findAdjacencyArea(s *state.State, key state.AdjacencyKey) (state.AreaId, bool) {
	if v, ok := s.Adjacencies.Get(key); ok {
		return v.Area, true
	}
	return "", false
}

// InterfaceSnapshot/AdjacencySnapshot are read-only views returned by the
// dump-* commands, built on the dispatcher so they never race a mutation.

type InterfaceSnapshot struct {
	Name   string
	Index  int
	Active bool
	Weight int
}

func GetInterfaces(s *state.State) []InterfaceSnapshot {
	out := make([]InterfaceSnapshot, 0, len(s.Ifaces.All()))
	for name, iface := range s.Ifaces.All() {
		out = append(out, InterfaceSnapshot{Name: name, Index: iface.Index, Active: iface.Active(), Weight: iface.Weight})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type AdjacencySnapshot struct {
	Area   state.AreaId
	Key    state.AdjacencyKey
	Record state.AdjacencyRecord
}

// GetAdjacencies returns adjacencies in the given areas, or every area if
// areas is empty.
func GetAdjacencies(s *state.State, areas []state.AreaId) []AdjacencySnapshot {
	wanted := make(map[state.AreaId]struct{}, len(areas))
	for _, a := range areas {
		wanted[a] = struct{}{}
	}
	var out []AdjacencySnapshot
	for key, v := range s.Adjacencies.All() {
		if len(wanted) > 0 {
			if _, ok := wanted[v.Area]; !ok {
				continue
			}
		}
		out = append(out, AdjacencySnapshot{Area: v.Area, Key: key, Record: v.Adjacency})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.RemoteNode != out[j].Key.RemoteNode {
			return out[i].Key.RemoteNode < out[j].Key.RemoteNode
		}
		return out[i].Key.LocalIface < out[j].Key.LocalIface
	})
	return out
}

func formatInterfaces(ifaces []InterfaceSnapshot) string {
	var sb strings.Builder
	for _, i := range ifaces {
		fmt.Fprintf(&sb, "%s index=%d active=%t weight=%d\n", i.Name, i.Index, i.Active, i.Weight)
	}
	sb.WriteString(".")
	return sb.String()
}

func formatAdjacencies(adjs []AdjacencySnapshot) string {
	var sb strings.Builder
	for _, a := range adjs {
		fmt.Fprintf(&sb, "%s %s area=%s metric=%d label=%d\n",
			a.Key.RemoteNode, a.Key.LocalIface, a.Area, a.Record.Metric, a.Record.Label)
	}
	sb.WriteString(".")
	return sb.String()
}
