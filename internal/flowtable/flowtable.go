// Package flowtable maintains the authoritative in-memory mirror of the
// forwarding state this controller has installed on the switches it
// manages. It never talks to a switch itself. For a switch with a live
// connection, ControlPlane updates the mirror only after the flow-mod
// has been sent, and not at all if that send fails; for a switch with
// no live connection, the mirror is updated without any flow-mod being
// sent (see internal/controlplane).
package flowtable

import (
	"fmt"
	"sync"

	"github.com/chuyangliu/dcell/internal/logger"
)

// Entry is a single forwarding rule: frames from Src to Dst egress
// OutPort on the switch that owns this entry.
type Entry struct {
	Src     int
	Dst     int
	OutPort int
}

type pair struct {
	src, dst int
}

// FlowTable indexes installed entries per switch (dpid), supporting the
// two queries the control plane needs: all entries on a switch, and all
// entries on a switch that egress a given port.
type FlowTable struct {
	logger logger.Logger

	mu       sync.RWMutex
	switches map[int]map[pair]int // dpid -> (src,dst) -> outPort
}

// New creates an empty FlowTable.
func New(opts ...Option) *FlowTable {
	ft := &FlowTable{
		logger:   &logger.NopLogger{},
		switches: make(map[int]map[pair]int),
	}
	for _, opt := range opts {
		opt(ft)
	}
	return ft
}

// Add installs or replaces the entry for (dpid, src, dst) with the given
// output port. The operation is idempotent: adding the same triple
// twice with the same port leaves the table unchanged.
func (ft *FlowTable) Add(dpid, src, dst, outPort int) error {
	if outPort < 1 {
		return fmt.Errorf("flowtable: out_port must be >= 1, got %d", outPort)
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	entries, ok := ft.switches[dpid]
	if !ok {
		entries = make(map[pair]int)
		ft.switches[dpid] = entries
	}
	key := pair{src, dst}
	prev, existed := entries[key]
	entries[key] = outPort

	if !existed {
		ft.logger.Debug("flow installed",
			logger.F("dpid", dpid), logger.F("src", src), logger.F("dst", dst), logger.F("out_port", outPort))
	} else if prev != outPort {
		ft.logger.Debug("flow replaced",
			logger.F("dpid", dpid), logger.F("src", src), logger.F("dst", dst),
			logger.F("prev_out_port", prev), logger.F("out_port", outPort))
	}
	return nil
}

// Install satisfies router.Installer, letting tests back a Router
// directly with a bare FlowTable instead of a live flow-mod sender.
func (ft *FlowTable) Install(dpid, src, dst, outPort int) error {
	return ft.Add(dpid, src, dst, outPort)
}

// Remove deletes every entry on dpid matching the supplied fields.
// A nil field acts as a wildcard. It returns the removed entries.
func (ft *FlowTable) Remove(dpid int, src, dst, outPort *int) []Entry {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	entries, ok := ft.switches[dpid]
	if !ok {
		return nil
	}

	var removed []Entry
	for key, port := range entries {
		if src != nil && key.src != *src {
			continue
		}
		if dst != nil && key.dst != *dst {
			continue
		}
		if outPort != nil && port != *outPort {
			continue
		}
		removed = append(removed, Entry{Src: key.src, Dst: key.dst, OutPort: port})
		delete(entries, key)
	}
	if len(entries) == 0 {
		delete(ft.switches, dpid)
	}
	if len(removed) > 0 {
		ft.logger.Debug("flows removed", logger.F("dpid", dpid), logger.F("count", len(removed)))
	}
	return removed
}

// EntriesOn returns every entry currently installed on dpid.
func (ft *FlowTable) EntriesOn(dpid int) []Entry {
	ft.mu.RLock()
	defer ft.mu.RUnlock()

	entries := ft.switches[dpid]
	out := make([]Entry, 0, len(entries))
	for key, port := range entries {
		out = append(out, Entry{Src: key.src, Dst: key.dst, OutPort: port})
	}
	return out
}

// EntriesVia returns every entry on dpid that egresses outPort.
func (ft *FlowTable) EntriesVia(dpid, outPort int) []Entry {
	ft.mu.RLock()
	defer ft.mu.RUnlock()

	entries := ft.switches[dpid]
	var out []Entry
	for key, port := range entries {
		if port == outPort {
			out = append(out, Entry{Src: key.src, Dst: key.dst, OutPort: port})
		}
	}
	return out
}

// OutPort returns the installed output port for (dpid, src, dst), if any.
func (ft *FlowTable) OutPort(dpid, src, dst int) (int, bool) {
	ft.mu.RLock()
	defer ft.mu.RUnlock()

	entries, ok := ft.switches[dpid]
	if !ok {
		return 0, false
	}
	port, ok := entries[pair{src, dst}]
	return port, ok
}
