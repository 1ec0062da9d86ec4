// Package controlplane wires link state, the flow-table mirror, and
// the router together behind a single event loop: every reaction to a
// switch connecting, a link changing health, or an unmatched frame
// arriving happens on one goroutine, in the order events are read off
// its event channels. internal/flowtable and internal/linkstate keep their
// own mutexes for safety, but nothing here ever needs a second lock to
// coordinate a sequence of reads and writes across them — the channel's
// program order already gives that.
package controlplane

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chuyangliu/dcell/internal/addressing"
	"github.com/chuyangliu/dcell/internal/flowtable"
	"github.com/chuyangliu/dcell/internal/linkstate"
	"github.com/chuyangliu/dcell/internal/logger"
	"github.com/chuyangliu/dcell/internal/openflow"
	"github.com/chuyangliu/dcell/internal/router"
	"github.com/chuyangliu/dcell/internal/telemetry"
)

// miniPort is the fixed port a host switch uses to reach its own
// DCell0's mini switch, mirroring router's unexported constant of the
// same name and value.
const miniPort = 2

// PacketHandler reacts to a frame a switch could not match against any
// installed entry. internal/switchsession implements this to answer
// ARP requests for host IPs.
type PacketHandler interface {
	HandlePacketIn(msg openflow.PacketInMessage) error
}

// ControlPlane is the long-lived object coordinating route
// installation for one DCell deployment.
type ControlPlane struct {
	geom    addressing.Geometry
	links   *linkstate.LinkState
	flows   *flowtable.FlowTable
	router  *router.Router
	handler PacketHandler
	logger  logger.Logger

	connected map[uint64]struct{}
	built     bool
}

// New constructs a ControlPlane for geom, backed by flows and links,
// sending real flow-mods through whatever connections conns can look
// up, and delegating unmatched frames to handler.
func New(
	geom addressing.Geometry,
	flows *flowtable.FlowTable,
	links *linkstate.LinkState,
	conns registry,
	handler PacketHandler,
	opts ...Option,
) *ControlPlane {
	cp := &ControlPlane{
		geom:      geom,
		links:     links,
		flows:     flows,
		handler:   handler,
		logger:    &logger.NopLogger{},
		connected: make(map[uint64]struct{}),
	}
	for _, opt := range opts {
		opt(cp)
	}

	installer := &flowInstaller{ft: flows, conns: conns, logger: cp.logger}
	cp.router = router.New(geom, links, installer, router.WithLogger(cp.logger))
	return cp
}

// Run reads events from ofEvents and linkEvents until ctx is
// cancelled. Call it from its own goroutine.
func (cp *ControlPlane) Run(ctx context.Context, ofEvents, linkEvents <-chan openflow.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ofEvents:
			cp.handleEvent(ctx, ev)
		case ev := <-linkEvents:
			cp.handleEvent(ctx, ev)
		}
	}
}

// HandleEvent processes a single event synchronously. Run calls this
// for every event it reads; tests call it directly to drive the
// control plane without a live event source.
func (cp *ControlPlane) HandleEvent(ctx context.Context, ev openflow.Event) {
	cp.handleEvent(ctx, ev)
}

func (cp *ControlPlane) handleEvent(ctx context.Context, ev openflow.Event) {
	switch e := ev.(type) {
	case openflow.ConnectionUpEvent:
		cp.onConnectionUp(ctx, e)
	case openflow.ConnectionDownEvent:
		cp.onConnectionDown(e)
	case openflow.PacketInMessage:
		cp.onPacketIn(e)
	case openflow.LinkEvent:
		cp.onLinkEvent(ctx, e)
	default:
		cp.logger.Warn("unrecognized control-plane event", logger.F("type", fmt.Sprintf("%T", ev)))
	}
}

func (cp *ControlPlane) onConnectionUp(ctx context.Context, e openflow.ConnectionUpEvent) {
	cp.connected[e.DPID] = struct{}{}
	_, numSwitches := cp.geom.Counts()

	cp.logger.Info("switch connected",
		logger.F("dpid", e.DPID), logger.F("connected", len(cp.connected)), logger.F("total", numSwitches))

	if !cp.built && len(cp.connected) == numSwitches {
		cp.built = true
		cp.BuildAllRoutes(ctx)
	}
}

func (cp *ControlPlane) onConnectionDown(e openflow.ConnectionDownEvent) {
	delete(cp.connected, e.DPID)
	cp.logger.Info("switch disconnected", logger.F("dpid", e.DPID))
	cp.built = false
}

func (cp *ControlPlane) onPacketIn(msg openflow.PacketInMessage) {
	if cp.handler == nil {
		return
	}
	if err := cp.handler.HandlePacketIn(msg); err != nil {
		cp.logger.Warn("packet_in handling failed", logger.F("dpid", msg.DPID), logger.F("error", err.Error()))
	}
}

// onLinkEvent rebuilds only the routes a link's health change could
// actually affect, never the full O(num_hosts²) pass: a recovery
// rebuilds every pair presently routed through either endpoint (it may
// now have a shorter path available), while a failure rebuilds only
// the pairs whose installed entry on either endpoint egresses the
// now-broken port (every other entry on that switch is unaffected).
func (cp *ControlPlane) onLinkEvent(ctx context.Context, e openflow.LinkEvent) {
	dpid1, dpid2 := int(e.DPID1), int(e.DPID2)

	if e.Up {
		if !cp.links.MarkUp(dpid1, dpid2) || !cp.built {
			return
		}
		cp.rebuildEntriesOn(ctx, dpid1)
		cp.rebuildEntriesOn(ctx, dpid2)
		return
	}

	if !cp.links.MarkDown(dpid1, dpid2) || !cp.built {
		return
	}
	port1, port2, ok := cp.linkPorts(dpid1, dpid2)
	if !ok {
		cp.logger.Warn("could not determine broken port, rebuilding both endpoints in full",
			logger.F("dpid1", dpid1), logger.F("dpid2", dpid2))
		cp.rebuildEntriesOn(ctx, dpid1)
		cp.rebuildEntriesOn(ctx, dpid2)
		return
	}
	cp.rebuildEntriesVia(ctx, dpid1, port1)
	cp.rebuildEntriesVia(ctx, dpid2, port2)
}

// rebuildEntriesOn rebuilds every pair with an entry presently
// installed on dpid, regardless of output port.
func (cp *ControlPlane) rebuildEntriesOn(ctx context.Context, dpid int) {
	for _, entry := range cp.flows.EntriesOn(dpid) {
		cp.rebuildPair(ctx, entry.Src, entry.Dst)
	}
}

// rebuildEntriesVia rebuilds every pair whose entry on dpid egresses
// port.
func (cp *ControlPlane) rebuildEntriesVia(ctx context.Context, dpid, port int) {
	for _, entry := range cp.flows.EntriesVia(dpid, port) {
		cp.rebuildPair(ctx, entry.Src, entry.Dst)
	}
}

func (cp *ControlPlane) rebuildPair(ctx context.Context, macSrc, macDst int) {
	if err := cp.router.BuildRoute(ctx, macSrc, macDst); err != nil {
		cp.logger.Error("build_route failed (link event rebuild)",
			logger.F("src", macSrc), logger.F("dst", macDst), logger.F("error", err.Error()))
	}
}

// linkPorts returns the output port each of dpid1 and dpid2 uses to
// reach the other, derived the same way Router chose them when it
// installed the crossing: a rack link always uses the host switch's
// fixed mini port on one end and the host's local rack index on the
// mini switch's end; an inter-DCell link uses the same out_port,
// k-level+2, on both host switches, where level is the length of the
// common prefix between their tuples.
func (cp *ControlPlane) linkPorts(dpid1, dpid2 int) (port1, port2 int, ok bool) {
	numHosts, _ := cp.geom.Counts()

	if dpid1 > numHosts || dpid2 > numHosts {
		hostDPID, miniDPID := dpid1, dpid2
		if hostDPID > numHosts {
			hostDPID, miniDPID = dpid2, dpid1
		}
		if cp.geom.MiniDPID(hostDPID) != miniDPID {
			return 0, 0, false
		}
		tuple, err := cp.geom.TupleOf(hostDPID)
		if err != nil {
			return 0, 0, false
		}
		miniPortToHost := tuple[cp.geom.K] + 1
		if dpid1 == hostDPID {
			return miniPort, miniPortToHost, true
		}
		return miniPortToHost, miniPort, true
	}

	t1, err := cp.geom.TupleOf(dpid1)
	if err != nil {
		return 0, 0, false
	}
	t2, err := cp.geom.TupleOf(dpid2)
	if err != nil {
		return 0, 0, false
	}
	level := len(addressing.CommonPrefix(t1, t2))
	port := cp.geom.K - level + 2
	return port, port, true
}

// BuildAllRoutes installs forwarding entries for every unordered host
// pair. It is called automatically once every switch has connected,
// and may also be invoked directly (e.g. from an operator command) to
// force a full recomputation; subsequent link-health changes only
// rebuild the pairs they could have affected (see onLinkEvent).
//
// The whole pass runs inside one span, with every per-pair
// router.BuildRoute span nesting underneath it — this is the
// O(num_hosts²) operation that only ever runs in full at bring-up or
// on an operator-forced recomputation.
func (cp *ControlPlane) BuildAllRoutes(ctx context.Context) {
	numHosts, _ := cp.geom.Counts()

	ctx, span := telemetry.Tracer.Start(ctx, "controlplane.BuildAllRoutes",
		trace.WithAttributes(attribute.Int("dcell.num_hosts", numHosts)))
	defer span.End()

	cp.logger.Info("building all routes", logger.F("num_hosts", numHosts))

	for i := 1; i <= numHosts; i++ {
		for j := i + 1; j <= numHosts; j++ {
			if err := cp.router.BuildRoute(ctx, i, j); err != nil {
				cp.logger.Error("build_route failed",
					logger.F("src", i), logger.F("dst", j), logger.F("error", err.Error()))
			}
		}
	}
}
