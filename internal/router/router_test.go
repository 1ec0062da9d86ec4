package router

import (
	"context"
	"testing"

	"github.com/chuyangliu/dcell/internal/addressing"
	"github.com/chuyangliu/dcell/internal/flowtable"
	"github.com/chuyangliu/dcell/internal/linkstate"
)

func mustGeom(t *testing.T, k, n int) addressing.Geometry {
	t.Helper()
	g, err := addressing.NewGeometry(k, n)
	if err != nil {
		t.Fatalf("NewGeometry(%d,%d): %v", k, n, err)
	}
	return g
}

func TestBuildRouteWithinDCell0(t *testing.T) {
	geom := mustGeom(t, 0, 3)
	ft := flowtable.New()
	ls := linkstate.New()
	r := New(geom, ls, ft)

	if err := r.BuildRoute(context.Background(), 1, 2); err != nil {
		t.Fatalf("BuildRoute: %v", err)
	}

	mini := geom.MiniDPID(1)
	if port, ok := ft.OutPort(mini, 1, 2); !ok || port != 2 {
		t.Errorf("mini switch %d (1->2) port = %d,%v, want 2,true", mini, port, ok)
	}
	if port, ok := ft.OutPort(mini, 2, 1); !ok || port != 1 {
		t.Errorf("mini switch %d (2->1) port = %d,%v, want 1,true", mini, port, ok)
	}
	if len(ft.EntriesOn(1)) != 2 {
		t.Errorf("switch 1 entries = %v, want 2", ft.EntriesOn(1))
	}
	if port, ok := ft.OutPort(1, 2, 1); !ok || port != 1 {
		t.Errorf("switch 1 (2->1) port = %d,%v, want 1 (host leg)", port, ok)
	}
	if port, ok := ft.OutPort(2, 1, 2); !ok || port != 1 {
		t.Errorf("switch 2 (1->2) port = %d,%v, want 1 (host leg)", port, ok)
	}
}

// TestBuildRouteCrossCell exercises a pair in different DCell0s of a
// DCell1: one crossing at the top level, then a same-DCell0 leg within
// the destination's sub-cell.
func TestBuildRouteCrossCell(t *testing.T) {
	geom := mustGeom(t, 1, 3)
	ft := flowtable.New()
	ls := linkstate.New()
	r := New(geom, ls, ft)

	if err := r.BuildRoute(context.Background(), 1, 6); err != nil {
		t.Fatalf("BuildRoute: %v", err)
	}

	// host 1 = [0,0], host 4 = [1,0]: the canonical crossing point
	// between sub-cell 0 and sub-cell 1.
	if port, ok := ft.OutPort(1, 1, 6); !ok || port != 3 {
		t.Errorf("switch 1 (1->6) crossing port = %d,%v, want 3", port, ok)
	}
	if port, ok := ft.OutPort(4, 6, 1); !ok || port != 3 {
		t.Errorf("switch 4 (6->1) crossing port = %d,%v, want 3", port, ok)
	}

	// host 4 = [1,0], host 6 = [1,2]: same DCell0 (sub-cell 1), routed
	// through its mini switch.
	mini := geom.MiniDPID(4)
	if port, ok := ft.OutPort(mini, 1, 6); !ok || port != 3 {
		t.Errorf("mini switch %d (1->6) port = %d,%v, want 3", mini, port, ok)
	}
	if port, ok := ft.OutPort(mini, 6, 1); !ok || port != 1 {
		t.Errorf("mini switch %d (6->1) port = %d,%v, want 1", mini, port, ok)
	}

	if port, ok := ft.OutPort(6, 6, 1); !ok || port != 2 {
		t.Errorf("switch 6 (6->1) port = %d,%v, want 2 (mini leg)", port, ok)
	}
}

// TestBuildRouteAvoidsDownLink marks the canonical crossing link
// between sub-cell 0 and sub-cell 1 down and checks the route detours
// through a different sub-cell instead of using it.
func TestBuildRouteAvoidsDownLink(t *testing.T) {
	geom := mustGeom(t, 1, 3)
	ft := flowtable.New()
	ls := linkstate.New()
	ls.MarkDown(1, 4) // host1 <-> host4, the direct crossing for (0,0)-(1,0)

	r := New(geom, ls, ft)
	if err := r.BuildRoute(context.Background(), 1, 6); err != nil {
		t.Fatalf("BuildRoute: %v", err)
	}

	// Switch 1 is not the crossing point for the sub-cell 0 <-> sub-cell
	// 2 detour (switch 2 is), so it only gets the local mini-switch hop
	// toward switch 2, never the down link's crossing port.
	if port, ok := ft.OutPort(1, 1, 6); !ok || port == 3 {
		t.Errorf("switch 1 (1->6) port = %d,%v, want the local mini-switch leg, not the down crossing port 3", port, ok)
	}

	// The first healthy sibling sub-cell (index 2) should have been
	// used instead, crossing via host 2 <-> host 7.
	if port, ok := ft.OutPort(2, 1, 6); !ok || port != 3 {
		t.Errorf("expected a detour route installed through sub-cell 2 (switch 2), got %d,%v", port, ok)
	}
}

// TestBuildRouteNoProxyAbandonsLeg marks every inter-cell link touching
// sub-cell 0 or sub-cell 1 down, leaving no viable proxy from either
// side of the crossing, and checks the leg is silently abandoned in
// both directions rather than erroring.
func TestBuildRouteNoProxyAbandonsLeg(t *testing.T) {
	geom := mustGeom(t, 1, 3)
	ft := flowtable.New()
	ls := linkstate.New()
	ls.MarkDown(1, 4)  // sub-cell 0 <-> sub-cell 1 (direct pair)
	ls.MarkDown(2, 7)  // sub-cell 0 <-> sub-cell 2
	ls.MarkDown(3, 10) // sub-cell 0 <-> sub-cell 3
	ls.MarkDown(5, 8)  // sub-cell 1 <-> sub-cell 2
	ls.MarkDown(6, 11) // sub-cell 1 <-> sub-cell 3

	r := New(geom, ls, ft)
	if err := r.BuildRoute(context.Background(), 1, 4); err != nil {
		t.Fatalf("BuildRoute should not error on an abandoned leg: %v", err)
	}

	if _, ok := ft.OutPort(1, 1, 4); ok {
		t.Error("expected no crossing entry to be installed when no proxy exists")
	}
	// The host-facing leg on the destination switch is still installed
	// unconditionally.
	if port, ok := ft.OutPort(4, 1, 4); !ok || port != 1 {
		t.Errorf("switch 4 host leg (1->4) = %d,%v, want 1,true", port, ok)
	}
}

func TestMiddleLinkIsSymmetric(t *testing.T) {
	midSrc1, midDst1, err := MiddleLink(nil, 0, 1, 1, 3)
	if err != nil {
		t.Fatalf("MiddleLink(0,1): %v", err)
	}
	midSrc2, midDst2, err := MiddleLink(nil, 1, 0, 1, 3)
	if err != nil {
		t.Fatalf("MiddleLink(1,0): %v", err)
	}
	if !equalTuple(midSrc1, midDst2) || !equalTuple(midDst1, midSrc2) {
		t.Errorf("middleLink not symmetric: (%v,%v) vs (%v,%v)", midSrc1, midDst1, midSrc2, midDst2)
	}
}
