// Package switchsession answers the one kind of frame this controller
// ever needs to generate a reply for: an ARP request asking who owns a
// host's configured IP address. Every other unmatched frame reaching
// the controller is ignored, neither logged nor replied to, since
// routes are installed proactively rather than in reaction to traffic.
package switchsession

import (
	"fmt"
	"net"

	"github.com/chuyangliu/dcell/internal/logger"
	"github.com/chuyangliu/dcell/internal/netenc"
	"github.com/chuyangliu/dcell/internal/openflow"
)

// registry looks up the live connection for a dpid, so a reply can be
// sent back out the port the request arrived on.
type registry interface {
	Conn(dpid uint64) (*openflow.Conn, bool)
}

// Session answers ARP requests arriving as PACKET_IN events.
type Session struct {
	ipBase int
	conns  registry
	logger logger.Logger
}

// New constructs a Session. ipBase is the configured base of the
// DCell's IPv4 subnet (internal/config's dcell.ipBase): a host's IP is
// ipBase plus its host id, so recovering the host id from a requested
// IP is a subtraction.
func New(ipBase int, conns registry, opts ...Option) *Session {
	s := &Session{
		ipBase: ipBase,
		conns:  conns,
		logger: &logger.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandlePacketIn answers msg if it is an ARP request for a host IP in
// this DCell's subnet; any other frame is ignored.
func (s *Session) HandlePacketIn(msg openflow.PacketInMessage) error {
	req, ok := parseARPRequest(msg.Data)
	if !ok {
		return nil
	}

	macStr, err := netenc.IPToMAC(req.TargetIP.String(), s.ipBase)
	if err != nil {
		return fmt.Errorf("switchsession: %w", err)
	}
	replyMAC, err := net.ParseMAC(macStr)
	if err != nil {
		return fmt.Errorf("switchsession: %w", err)
	}

	s.logger.Debug("answering arp request",
		logger.F("dpid", msg.DPID), logger.F("target_ip", req.TargetIP.String()), logger.F("reply_mac", replyMAC.String()))

	reply := buildARPReply(replyMAC, req.TargetIP, req.SenderMAC, req.SenderIP)

	conn, ok := s.conns.Conn(msg.DPID)
	if !ok {
		return fmt.Errorf("switchsession: no connection for dpid %d", msg.DPID)
	}
	return conn.SendPacketOut(openflow.PacketOutMessage{
		InPort:  msg.InPort,
		Actions: []openflow.FlowActionOutput{{Port: openflow.OFPPInPort}},
		Data:    reply,
	})
}
