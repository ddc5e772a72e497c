package state

import "net/netip"

// InterfaceTable is keyed by interface name, the stable identifier per spec
// §3 (kernel index may change across reboots; name does not).
type InterfaceTable struct {
	byName map[string]*Interface
	// indexToName lets kernel events that only carry an index look up the
	// owning interface.
	indexToName map[int]string
}

func NewInterfaceTable() *InterfaceTable {
	return &InterfaceTable{
		byName:      make(map[string]*Interface),
		indexToName: make(map[int]string),
	}
}

func (t *InterfaceTable) Get(name string) (*Interface, bool) {
	i, ok := t.byName[name]
	return i, ok
}

func (t *InterfaceTable) GetByIndex(index int) (*Interface, bool) {
	name, ok := t.indexToName[index]
	if !ok {
		return nil, false
	}
	return t.Get(name)
}

// GetOrCreate returns the interface record for name, creating an empty one
// (up=false, weight=1) if this is the first observation.
func (t *InterfaceTable) GetOrCreate(name string) *Interface {
	i, ok := t.byName[name]
	if ok {
		return i
	}
	i = &Interface{
		Name:   name,
		Weight: 1,
		Addrs:  make(map[netip.Prefix]Network),
	}
	t.byName[name] = i
	return i
}

func (t *InterfaceTable) SetIndex(name string, index int) {
	if old, ok := t.byName[name]; ok && old.Index != 0 && old.Index != index {
		delete(t.indexToName, old.Index)
	}
	t.indexToName[index] = name
}

// All returns every known interface keyed by name. The caller must treat
// the map as read-only; it is the table's own backing storage.
func (t *InterfaceTable) All() map[string]*Interface {
	return t.byName
}
