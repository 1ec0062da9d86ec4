package openflow

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/chuyangliu/dcell/internal/logger"
)

// Option customizes a Listener at construction time.
type Option func(*Listener)

// WithLogger attaches a structured logger to a Listener.
func WithLogger(l logger.Logger) Option {
	return func(ln *Listener) { ln.logger = l }
}

// Listener accepts switch connections on a TCP port, runs the
// HELLO/FEATURES handshake on each, and publishes ConnectionUpEvent,
// ConnectionDownEvent and PacketInMessage values on its event channel.
type Listener struct {
	addr   string
	logger logger.Logger
	events chan Event

	mu    sync.Mutex
	conns map[uint64]*Conn
}

// NewListener creates a Listener bound to addr (e.g. ":6633"). It does
// not start accepting connections until Serve is called.
func NewListener(addr string, opts ...Option) *Listener {
	ln := &Listener{
		addr:   addr,
		logger: &logger.NopLogger{},
		events: make(chan Event, 64),
		conns:  make(map[uint64]*Conn),
	}
	for _, opt := range opts {
		opt(ln)
	}
	return ln
}

// Events returns the channel on which this Listener publishes events.
// It is never closed.
func (ln *Listener) Events() <-chan Event { return ln.events }

// Conn returns the live connection for dpid, if any.
func (ln *Listener) Conn(dpid uint64) (*Conn, bool) {
	ln.mu.Lock()
	defer ln.mu.Unlock()
	c, ok := ln.conns[dpid]
	return c, ok
}

// Serve accepts connections until ctx is cancelled or the listener
// socket fails.
func (ln *Listener) Serve(ctx context.Context) error {
	tcpLn, err := net.Listen("tcp", ln.addr)
	if err != nil {
		return fmt.Errorf("openflow: listen on %s: %w", ln.addr, err)
	}
	go func() {
		<-ctx.Done()
		tcpLn.Close()
	}()

	ln.logger.Info("openflow listener started", logger.F("addr", ln.addr))
	for {
		nc, err := tcpLn.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("openflow: accept: %w", err)
		}
		go ln.handleConn(ctx, nc)
	}
}

func (ln *Listener) handleConn(ctx context.Context, nc net.Conn) {
	dpid, err := handshake(nc)
	if err != nil {
		ln.logger.Warn("openflow handshake failed", logger.F("remote_addr", nc.RemoteAddr().String()), logger.F("error", err.Error()))
		nc.Close()
		return
	}

	conn := NewConn(dpid, nc, ln.logger)
	ln.mu.Lock()
	ln.conns[dpid] = conn
	ln.mu.Unlock()

	ln.logger.Info("switch connected", logger.F("dpid", dpid))
	ln.events <- ConnectionUpEvent{DPID: dpid, Conn: conn}

	ln.readLoop(ctx, conn)

	ln.mu.Lock()
	delete(ln.conns, dpid)
	ln.mu.Unlock()
	ln.logger.Info("switch disconnected", logger.F("dpid", dpid))
	ln.events <- ConnectionDownEvent{DPID: dpid}
}

func (ln *Listener) readLoop(ctx context.Context, conn *Conn) {
	defer conn.Close()
	for {
		if ctx.Err() != nil {
			return
		}
		hdr, err := readHeader(conn.nc)
		if err != nil {
			return
		}
		body := make([]byte, int(hdr.Length)-headerLen)
		if len(body) > 0 {
			if _, err := readFull(conn.nc, body); err != nil {
				return
			}
		}

		switch hdr.Type {
		case typePacketIn:
			msg, err := decodePacketIn(body)
			if err != nil {
				ln.logger.Warn("malformed packet_in", logger.F("dpid", conn.dpid), logger.F("error", err.Error()))
				continue
			}
			msg.DPID = conn.dpid
			ln.events <- msg
		default:
			// Unhandled message types (port status, stats, errors) are
			// logged and dropped; none of them drive routing decisions.
			ln.logger.Debug("ignoring openflow message", logger.F("dpid", conn.dpid), logger.F("type", int(hdr.Type)))
		}
	}
}

// handshake exchanges HELLO and FEATURES_REQUEST/REPLY with a newly
// connected switch and returns its datapath ID.
func handshake(nc net.Conn) (uint64, error) {
	if _, err := nc.Write(encodeHello(0)); err != nil {
		return 0, fmt.Errorf("send hello: %w", err)
	}
	if _, err := readMessage(nc, typeHello); err != nil {
		return 0, fmt.Errorf("read hello: %w", err)
	}

	if _, err := nc.Write(encodeFeaturesRequest(1)); err != nil {
		return 0, fmt.Errorf("send features_request: %w", err)
	}
	body, err := readMessage(nc, typeFeaturesReply)
	if err != nil {
		return 0, fmt.Errorf("read features_reply: %w", err)
	}
	return decodeFeaturesReply(body)
}

func readMessage(nc net.Conn, want messageType) ([]byte, error) {
	hdr, err := readHeader(nc)
	if err != nil {
		return nil, err
	}
	if hdr.Type != want {
		return nil, fmt.Errorf("unexpected message type %d, want %d", hdr.Type, want)
	}
	body := make([]byte, int(hdr.Length)-headerLen)
	if len(body) > 0 {
		if _, err := readFull(nc, body); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func readFull(nc net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := nc.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
