package openflow

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/chuyangliu/dcell/internal/logger"
)

// Conn is a single switch's control connection. It serializes writes
// and hands out monotonically increasing transaction IDs; it does not
// buffer or retry — a write failure means the connection is dead and
// the caller should treat the switch as disconnected.
type Conn struct {
	dpid   uint64
	nc     net.Conn
	logger logger.Logger

	xid uint64

	mu     sync.Mutex
	closed bool
}

// NewConn wraps an already-authenticated switch connection. Listener
// calls this after a successful handshake; tests use it directly to
// exercise Conn against an in-process net.Pipe.
func NewConn(dpid uint64, nc net.Conn, l logger.Logger) *Conn {
	return &Conn{dpid: dpid, nc: nc, logger: l}
}

// DPID returns the datapath ID this connection was authenticated as
// during the FEATURES handshake.
func (c *Conn) DPID() uint64 { return c.dpid }

func (c *Conn) nextXID() uint32 {
	return uint32(atomic.AddUint64(&c.xid, 1))
}

func (c *Conn) write(buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("openflow: connection to dpid %d is closed", c.dpid)
	}
	_, err := c.nc.Write(buf)
	return err
}

// SendFlowMod issues a flow-mod to this switch.
func (c *Conn) SendFlowMod(msg FlowModifyMessage) error {
	if err := c.write(encodeFlowMod(c.nextXID(), msg)); err != nil {
		return fmt.Errorf("openflow: send flow_mod to dpid %d: %w", c.dpid, err)
	}
	return nil
}

// SendPacketOut issues a packet-out to this switch.
func (c *Conn) SendPacketOut(msg PacketOutMessage) error {
	if err := c.write(encodePacketOut(c.nextXID(), msg)); err != nil {
		return fmt.Errorf("openflow: send packet_out to dpid %d: %w", c.dpid, err)
	}
	return nil
}

// Close closes the underlying socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.nc.Close()
}
