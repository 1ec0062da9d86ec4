package openflow

import (
	"context"
	"sync"
	"time"

	"github.com/chuyangliu/dcell/internal/logger"
)

type linkKey struct {
	low, high uint64
}

func canonLink(a, b uint64) linkKey {
	if a > b {
		a, b = b, a
	}
	return linkKey{low: a, high: b}
}

// LinkDiscovery tracks inter-switch links by heartbeat: something
// outside this package (LLDP probes relayed as PACKET_IN, in a real
// deployment) calls Touch whenever it observes a link is alive, and a
// background tick scans for links that have gone quiet longer than the
// configured timeout, emitting a LinkEvent the first time a link
// crosses that threshold in either direction.
type LinkDiscovery struct {
	timeout time.Duration
	logger  logger.Logger
	events  chan Event

	mu       sync.Mutex
	lastSeen map[linkKey]time.Time
	down     map[linkKey]bool
}

// NewLinkDiscovery creates a LinkDiscovery that considers a link down
// once timeout elapses since its last Touch.
func NewLinkDiscovery(timeout time.Duration, l logger.Logger) *LinkDiscovery {
	return &LinkDiscovery{
		timeout:  timeout,
		logger:   l,
		events:   make(chan Event, 64),
		lastSeen: make(map[linkKey]time.Time),
		down:     make(map[linkKey]bool),
	}
}

// Events returns the channel on which LinkEvent values are published.
func (d *LinkDiscovery) Events() <-chan Event { return d.events }

// Touch records that the link between dpidA and dpidB was just
// observed alive, at observedAt. It emits a LinkEvent{Up: true} if the
// link was previously marked down.
func (d *LinkDiscovery) Touch(dpidA, dpidB uint64, observedAt time.Time) {
	key := canonLink(dpidA, dpidB)

	d.mu.Lock()
	d.lastSeen[key] = observedAt
	wasDown := d.down[key]
	if wasDown {
		delete(d.down, key)
	}
	d.mu.Unlock()

	if wasDown {
		d.logger.Info("link recovered", logger.F("dpid_low", key.low), logger.F("dpid_high", key.high))
		d.events <- LinkEvent{DPID1: key.low, DPID2: key.high, Up: true}
	}
}

// Run periodically scans tracked links for staleness until ctx is
// cancelled. Call it from its own goroutine.
func (d *LinkDiscovery) Run(ctx context.Context, now func() time.Time) {
	ticker := time.NewTicker(d.timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			d.sweep(valueOr(now, t))
		}
	}
}

func valueOr(now func() time.Time, fallback time.Time) time.Time {
	if now != nil {
		return now()
	}
	return fallback
}

func (d *LinkDiscovery) sweep(at time.Time) {
	var newlyDown []linkKey

	d.mu.Lock()
	for key, last := range d.lastSeen {
		if d.down[key] {
			continue
		}
		if at.Sub(last) > d.timeout {
			d.down[key] = true
			newlyDown = append(newlyDown, key)
		}
	}
	d.mu.Unlock()

	for _, key := range newlyDown {
		d.logger.Warn("link timed out", logger.F("dpid_low", key.low), logger.F("dpid_high", key.high))
		d.events <- LinkEvent{DPID1: key.low, DPID2: key.high, Up: false}
	}
}
