// Package router computes and installs the DCell fault-tolerant
// forwarding entries for a host pair.
//
// The algorithm mirrors DCellFaultTolerantRouting's recursive
// definition (find the longest common address prefix, route within the
// shared sub-cell if it is a DCell0, otherwise cross at the level's
// pre-defined inter-DCell link, detouring through a sibling sub-cell
// when that link is down), but runs as an explicit work-queue instead
// of native recursion so the routing depth never touches the Go call
// stack.
package router

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/chuyangliu/dcell/internal/addressing"
	"github.com/chuyangliu/dcell/internal/linkstate"
	"github.com/chuyangliu/dcell/internal/logger"
	"github.com/chuyangliu/dcell/internal/telemetry"
)

const (
	hostPort = 1
	miniPort = 2
)

// Installer installs a single forwarding rule on a switch, keyed by
// dpid and the (src, dst) host pair the rule matches. It is the seam
// between Router's routing logic and the live control plane: the
// production Installer sends flow-mod messages through
// internal/openflow (deleting any stale entry first); tests back it
// with a bare internal/flowtable.FlowTable.
type Installer interface {
	Install(dpid, src, dst, outPort int) error
}

// Router builds forwarding routes for host pairs within a fixed DCell
// geometry, consulting link state to route around known-bad links.
type Router struct {
	geom      addressing.Geometry
	links     *linkstate.LinkState
	installer Installer
	logger    logger.Logger
}

// New constructs a Router for the given geometry.
func New(geom addressing.Geometry, links *linkstate.LinkState, installer Installer, opts ...Option) *Router {
	r := &Router{
		geom:      geom,
		links:     links,
		installer: installer,
		logger:    &logger.NopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// routeLeg is one unresolved (source-tuple, destination-tuple)
// sub-problem waiting to be routed.
type routeLeg struct {
	src, dst []int
}

// BuildRoute installs every forwarding entry needed for traffic
// between macSrc and macDst to flow in both directions. Entries are
// (re)installed unconditionally; Installer implementations are
// expected to replace any prior entry for the same (dpid, src, dst),
// so calling BuildRoute again after a topology change is safe and is
// exactly how the control plane recovers from a link failure.
//
// Every call is wrapped in its own span, since a single build_all_routes
// pass fans out into one of these per host pair.
func (r *Router) BuildRoute(ctx context.Context, macSrc, macDst int) error {
	_, span := telemetry.Tracer.Start(ctx, "router.BuildRoute",
		trace.WithAttributes(telemetry.HostPairAttributes(macSrc, macDst)...))
	defer span.End()

	tSrc, err := r.geom.TupleOf(macSrc)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	tDst, err := r.geom.TupleOf(macDst)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}

	if err := r.route(macSrc, macDst, tSrc, tDst); err != nil {
		return err
	}
	if err := r.route(macDst, macSrc, tDst, tSrc); err != nil {
		return err
	}

	dstSwitch, err := r.geom.HostOf(tDst)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	srcSwitch, err := r.geom.HostOf(tSrc)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}

	// The last hop on each direction's path is the host-facing port of
	// the destination's own host-switch.
	if err := r.installer.Install(dstSwitch, macSrc, macDst, hostPort); err != nil {
		return fmt.Errorf("router: install host leg on switch %d: %w", dstSwitch, err)
	}
	if err := r.installer.Install(srcSwitch, macDst, macSrc, hostPort); err != nil {
		return fmt.Errorf("router: install host leg on switch %d: %w", srcSwitch, err)
	}
	return nil
}

// route drains a work queue of legs for one direction (macSrc ->
// macDst), each either resolved immediately (same DCell0) or split
// into smaller legs pushed back onto the queue (cross-cell).
func (r *Router) route(macSrc, macDst int, tSrc, tDst []int) error {
	queue := []routeLeg{{src: tSrc, dst: tDst}}

	for len(queue) > 0 {
		leg := queue[0]
		queue = queue[1:]

		if equalTuple(leg.src, leg.dst) {
			continue
		}

		prefix := addressing.CommonPrefix(leg.src, leg.dst)
		level := len(prefix)

		if level == r.geom.K {
			if err := r.routeSameDCell0(macSrc, macDst, leg); err != nil {
				return err
			}
			continue
		}

		next, err := r.routeCrossCell(macSrc, macDst, leg, prefix, level)
		if err != nil {
			return err
		}
		queue = append(queue, next...)
	}
	return nil
}

// routeSameDCell0 handles the base case where src and dst share a
// DCell0: route through that DCell0's mini switch. This installs both
// directions of travel through the mini switch in one pass, since the
// mini switch's two (src, dst)-keyed entries are independent of which
// direction triggered this leg.
func (r *Router) routeSameDCell0(macSrc, macDst int, leg routeLeg) error {
	srcSwitch, err := r.geom.HostOf(leg.src)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	dstSwitch, err := r.geom.HostOf(leg.dst)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	mini := r.geom.MiniDPID(srcSwitch)

	if r.links.IsBad(mini, srcSwitch) || r.links.IsBad(mini, dstSwitch) {
		r.logger.Warn("rack link down, abandoning leg",
			logger.F("mini_dpid", mini),
			logger.F("src_switch", srcSwitch),
			logger.F("dst_switch", dstSwitch))
		return nil
	}

	n := r.geom.N
	k := r.geom.K
	if err := r.installer.Install(mini, macSrc, macDst, leg.dst[k]%n+1); err != nil {
		return fmt.Errorf("router: install mini switch %d: %w", mini, err)
	}
	if err := r.installer.Install(mini, macDst, macSrc, leg.src[k]%n+1); err != nil {
		return fmt.Errorf("router: install mini switch %d: %w", mini, err)
	}
	if err := r.installer.Install(srcSwitch, macSrc, macDst, miniPort); err != nil {
		return fmt.Errorf("router: install switch %d: %w", srcSwitch, err)
	}
	if err := r.installer.Install(dstSwitch, macDst, macSrc, miniPort); err != nil {
		return fmt.Errorf("router: install switch %d: %w", dstSwitch, err)
	}
	return nil
}

// routeCrossCell handles a leg whose src and dst diverge above a
// DCell0, crossing at the pre-defined inter-DCell link for this level.
// If that link is down it looks for a proxy sub-cell to detour
// through; if none of the sibling sub-cells offer a healthy link
// either, the leg is abandoned.
func (r *Router) routeCrossCell(macSrc, macDst int, leg routeLeg, prefix []int, level int) ([]routeLeg, error) {
	midSrc, midDst, err := MiddleLink(prefix, leg.src[level], leg.dst[level], r.geom.K, r.geom.N)
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	midSrcSwitch, err := addressing.HostOfParams(midSrc, r.geom.N)
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	midDstSwitch, err := addressing.HostOfParams(midDst, r.geom.N)
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	if r.links.IsBad(midSrcSwitch, midDstSwitch) {
		proxy := r.selectProxy(leg.src, leg.dst, prefix, level)
		if proxy == nil {
			r.logger.Warn("no proxy available, abandoning leg",
				logger.F("src_tuple", fmt.Sprint(leg.src)),
				logger.F("dst_tuple", fmt.Sprint(leg.dst)))
			return nil, nil
		}
		return []routeLeg{
			{src: leg.src, dst: proxy},
			{src: proxy, dst: leg.dst},
		}, nil
	}

	outPort := r.geom.K - level + 2
	if err := r.installer.Install(midSrcSwitch, macSrc, macDst, outPort); err != nil {
		return nil, fmt.Errorf("router: install switch %d: %w", midSrcSwitch, err)
	}
	if err := r.installer.Install(midDstSwitch, macDst, macSrc, outPort); err != nil {
		return nil, fmt.Errorf("router: install switch %d: %w", midDstSwitch, err)
	}

	return []routeLeg{
		{src: leg.src, dst: midSrc},
		{src: midDst, dst: leg.dst},
	}, nil
}

// selectProxy looks for a sibling sub-cell at this level whose link
// back to src's sub-cell is healthy, returning the tuple of the entry
// point into that sub-cell's path toward dst. It returns nil if every
// sibling's link is also down.
func (r *Router) selectProxy(tSrc, tDst, prefix []int, level int) []int {
	dCount := r.geom.GLevels()[r.geom.K-level]

	for i := 1; i < dCount; i++ {
		idx := (tSrc[level] + i) % dCount
		if idx == tDst[level] {
			continue
		}
		mSrc, mDst, err := MiddleLink(prefix, tSrc[level], idx, r.geom.K, r.geom.N)
		if err != nil {
			continue
		}
		mSrcSwitch, err1 := addressing.HostOfParams(mSrc, r.geom.N)
		mDstSwitch, err2 := addressing.HostOfParams(mDst, r.geom.N)
		if err1 != nil || err2 != nil {
			continue
		}
		if r.links.IsBad(mSrcSwitch, mDstSwitch) {
			continue
		}
		return mDst
	}
	return nil
}

// MiddleLink computes the two tuples at the opposite ends of the
// pre-defined inter-DCell link connecting the sub-cell identified by
// digit s to the sub-cell identified by digit d, both addressed within
// prefix's sub-DCell. s and d must differ.
//
// The classic DCell construction pairs the host with local address d
// in sub-cell s to the host with local address s+1 in sub-cell d
// (indices canonicalized so s < d), giving every pair of sub-cells
// exactly one direct link. Exported since internal/simnet walks the
// same pairing in reverse to identify a cross-link neighbor from a
// switch's own tuple and output port.
func MiddleLink(prefix []int, s, d, k, n int) (midSrc, midDst []int, err error) {
	swapped := s > d
	if swapped {
		s, d = d, s
	}

	suffixLen := k - len(prefix) - 1
	suffixSrc, err := addressing.TupleOfParams(d, suffixLen, n)
	if err != nil {
		return nil, nil, err
	}
	suffixDst, err := addressing.TupleOfParams(s+1, suffixLen, n)
	if err != nil {
		return nil, nil, err
	}

	midSrc = concatTuple(prefix, s, suffixSrc)
	midDst = concatTuple(prefix, d, suffixDst)
	if swapped {
		midSrc, midDst = midDst, midSrc
	}
	return midSrc, midDst, nil
}

func concatTuple(prefix []int, digit int, suffix []int) []int {
	out := make([]int, 0, len(prefix)+1+len(suffix))
	out = append(out, prefix...)
	out = append(out, digit)
	out = append(out, suffix...)
	return out
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
