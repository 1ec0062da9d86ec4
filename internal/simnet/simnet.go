// Package simnet replays the forwarding entries a FlowTable holds for
// one host pair as an actual hop-by-hop path, without a real network.
// internal/controlplane's tests use it to check the properties
// DCellFaultTolerantRouting promises — every installed route reaches
// its destination, and a route recomputed after a link failure no
// longer uses the broken link — against the same data structure the
// control plane itself populates.
package simnet

import (
	"fmt"

	"github.com/chuyangliu/dcell/internal/addressing"
	"github.com/chuyangliu/dcell/internal/flowtable"
	"github.com/chuyangliu/dcell/internal/router"
)

const (
	hostPort = 1
	miniPort = 2
)

// maxHops bounds the walk generously above the DCell path lengths the
// Router installs for the small geometries this is used with; exceeding
// it means the installed entries form a loop, which a correct Router
// never produces.
const maxHops = 256

// Hop is one switch a frame traverses, and the port it egressed.
type Hop struct {
	DPID    int
	OutPort int
}

// TracePath follows the entries flows holds for (macSrc, macDst),
// starting at macSrc's own host-switch, until it reaches macDst's
// host-switch by way of the host-facing port. It returns the hops
// actually walked even when the path breaks, so a failing test can
// show how far the route got.
func TracePath(geom addressing.Geometry, flows *flowtable.FlowTable, macSrc, macDst int) ([]Hop, error) {
	numHosts, _ := geom.Counts()
	if macSrc < 1 || macSrc > numHosts {
		return nil, fmt.Errorf("simnet: host id %d out of range [1,%d]", macSrc, numHosts)
	}
	if macDst < 1 || macDst > numHosts {
		return nil, fmt.Errorf("simnet: host id %d out of range [1,%d]", macDst, numHosts)
	}

	dpid := macSrc // a host's own switch shares its host id.
	var hops []Hop

	for i := 0; i < maxHops; i++ {
		outPort, ok := flows.OutPort(dpid, macSrc, macDst)
		if !ok {
			return hops, fmt.Errorf("simnet: no entry for %d->%d on switch %d", macSrc, macDst, dpid)
		}
		hops = append(hops, Hop{DPID: dpid, OutPort: outPort})

		if dpid == macDst && outPort == hostPort {
			return hops, nil
		}

		next, err := nextHop(geom, dpid, outPort, numHosts)
		if err != nil {
			return hops, err
		}
		dpid = next
	}
	return hops, fmt.Errorf("simnet: path exceeded %d hops without reaching host %d, probable loop", maxHops, macDst)
}

// nextHop resolves the switch on the far end of (dpid, outPort),
// mirroring router's port-numbering scheme in reverse.
func nextHop(geom addressing.Geometry, dpid, outPort, numHosts int) (int, error) {
	if dpid > numHosts {
		return miniSwitchNextHop(geom, dpid, outPort, numHosts)
	}
	return hostSwitchNextHop(geom, dpid, outPort)
}

func hostSwitchNextHop(geom addressing.Geometry, dpid, outPort int) (int, error) {
	if outPort == miniPort {
		return geom.MiniDPID(dpid), nil
	}
	// level is the common-prefix length router.routeCrossCell used to
	// pick this port (out_port = K - level + 2), so it lies in [0, K).
	level := geom.K - outPort + 2
	if level < 0 || level >= geom.K {
		return 0, fmt.Errorf("simnet: switch %d: unexpected out_port %d", dpid, outPort)
	}
	return crossLinkNeighbor(geom, dpid, level)
}

// miniSwitchNextHop maps a mini switch's local port (1..n) back to the
// host-switch occupying that position in its DCell0. Every host in a
// DCell0 shares every tuple digit but the last, so the rack's shared
// prefix is recovered from any one member — the first host id in the
// block the mini switch's own dpid was derived from.
func miniSwitchNextHop(geom addressing.Geometry, dpid, outPort, numHosts int) (int, error) {
	n := geom.N
	if outPort < 1 || outPort > n {
		return 0, fmt.Errorf("simnet: mini switch %d: out_port %d out of range [1,%d]", dpid, outPort, n)
	}

	rackIndex := dpid - numHosts - 1
	firstHost := rackIndex*n + 1
	firstTuple, err := geom.TupleOf(firstHost)
	if err != nil {
		return 0, fmt.Errorf("simnet: mini switch %d: %w", dpid, err)
	}

	tuple := append(append([]int{}, firstTuple[:geom.K]...), outPort-1)
	return geom.HostOf(tuple)
}

// crossLinkNeighbor finds the sub-cell on the other end of dpid's
// inter-DCell link at level, by searching the sibling sub-cells for
// the one router.MiddleLink pairs with dpid's own tuple. Every host
// above its own DCell0 has exactly one partner per level, so exactly
// one candidate matches.
func crossLinkNeighbor(geom addressing.Geometry, dpid, level int) (int, error) {
	tuple, err := geom.TupleOf(dpid)
	if err != nil {
		return 0, fmt.Errorf("simnet: %w", err)
	}
	prefix := tuple[:level]
	ownDigit := tuple[level]
	dCount := geom.GLevels()[geom.K-level]

	for other := 0; other < dCount; other++ {
		if other == ownDigit {
			continue
		}
		midSrc, midDst, err := router.MiddleLink(prefix, ownDigit, other, geom.K, geom.N)
		if err != nil {
			continue
		}
		switch {
		case equalTuple(midSrc, tuple):
			if neighbor, err := addressing.HostOfParams(midDst, geom.N); err == nil {
				return neighbor, nil
			}
		case equalTuple(midDst, tuple):
			if neighbor, err := addressing.HostOfParams(midSrc, geom.N); err == nil {
				return neighbor, nil
			}
		}
	}
	return 0, fmt.Errorf("simnet: switch %d: no inter-DCell partner found at level %d", dpid, level)
}

func equalTuple(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
