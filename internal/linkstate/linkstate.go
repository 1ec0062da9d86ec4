// Package linkstate tracks the set of currently broken links between
// switches, keyed on the canonicalized (low, high) dpid pair. It holds
// no other state and performs no I/O; ControlPlane is the only caller
// that mutates it, in response to LinkEvents from internal/openflow.
package linkstate

import (
	"sync"

	"github.com/chuyangliu/dcell/internal/logger"
)

type link struct {
	low, high int
}

func canon(a, b int) link {
	if a <= b {
		return link{a, b}
	}
	return link{b, a}
}

// LinkState is the set of links currently marked down.
type LinkState struct {
	logger logger.Logger

	mu  sync.RWMutex
	bad map[link]struct{}
}

// New creates an empty LinkState (no link starts out broken).
func New(opts ...Option) *LinkState {
	ls := &LinkState{
		logger: &logger.NopLogger{},
		bad:    make(map[link]struct{}),
	}
	for _, opt := range opts {
		opt(ls)
	}
	return ls
}

// MarkDown records the link between dpids a and b as broken. It returns
// true if the link was not already marked down.
func (ls *LinkState) MarkDown(a, b int) bool {
	l := canon(a, b)

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if _, already := ls.bad[l]; already {
		return false
	}
	ls.bad[l] = struct{}{}
	ls.logger.Info("link marked down", logger.F("dpid_low", l.low), logger.F("dpid_high", l.high))
	return true
}

// MarkUp clears the broken mark on the link between dpids a and b. It
// returns true if the link had been marked down.
func (ls *LinkState) MarkUp(a, b int) bool {
	l := canon(a, b)

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if _, ok := ls.bad[l]; !ok {
		return false
	}
	delete(ls.bad, l)
	ls.logger.Info("link marked up", logger.F("dpid_low", l.low), logger.F("dpid_high", l.high))
	return true
}

// IsBad reports whether the link between dpids a and b is currently
// marked down. The argument order does not matter.
func (ls *LinkState) IsBad(a, b int) bool {
	l := canon(a, b)

	ls.mu.RLock()
	defer ls.mu.RUnlock()

	_, bad := ls.bad[l]
	return bad
}

// Count returns the number of links currently marked down.
func (ls *LinkState) Count() int {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return len(ls.bad)
}
