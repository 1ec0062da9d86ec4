// Package openflow implements just enough of the OpenFlow 1.0 wire
// protocol to run this controller: connection setup (HELLO, FEATURES),
// PACKET_IN delivery, and FLOW_MOD / PACKET_OUT issuance. It does not
// aim for full protocol coverage — ports, statistics, and vendor
// extensions are out of scope, since nothing above this package needs
// them.
package openflow

import "net"

// PortNumber identifies a switch port, including the reserved values
// defined by the OpenFlow 1.0 spec for logical ports.
type PortNumber uint16

// Reserved port numbers (OpenFlow 1.0 §5.2.1).
const (
	OFPPMax     PortNumber = 0xff00
	OFPPInPort  PortNumber = 0xfff8
	OFPPFlood   PortNumber = 0xfffb
	OFPPAll     PortNumber = 0xfffc
	OFPPController PortNumber = 0xfffd
	OFPPNone    PortNumber = 0xffff
)

// Command is the flow-mod command field (OpenFlow 1.0 §5.3.3).
type Command uint16

const (
	OFPFCAdd          Command = 0
	OFPFCModify       Command = 1
	OFPFCModifyStrict Command = 2
	OFPFCDelete       Command = 3
	OFPFCDeleteStrict Command = 4
)

// messageType is the OpenFlow 1.0 header type field (OpenFlow 1.0 §5.1).
type messageType uint8

const (
	typeHello          messageType = 0
	typeError          messageType = 1
	typeFeaturesRequest messageType = 5
	typeFeaturesReply  messageType = 6
	typePacketIn       messageType = 10
	typeFlowMod        messageType = 14
	typePacketOut      messageType = 13
)

const ofVersion uint8 = 0x01

// FlowMatch selects traffic by Ethernet source and destination address,
// the only two fields this controller's flow entries ever key on.
type FlowMatch struct {
	DLSrc net.HardwareAddr
	DLDst net.HardwareAddr
}

// FlowActionOutput forwards a matched frame out a single port. It is
// the only flow action this controller issues.
type FlowActionOutput struct {
	Port PortNumber
}

// FlowModifyMessage requests that a switch add or delete a flow entry.
type FlowModifyMessage struct {
	Match   FlowMatch
	Command Command
	Actions []FlowActionOutput
}

// PacketOutMessage asks a switch to emit a raw frame out the given
// actions, as used for synthesized ARP replies.
type PacketOutMessage struct {
	InPort  PortNumber
	Actions []FlowActionOutput
	Data    []byte
}

// PacketInMessage is a frame a switch could not match and forwarded to
// the controller.
type PacketInMessage struct {
	DPID   uint64
	InPort PortNumber
	Data   []byte
}

// ConnectionUpEvent fires once a switch has completed the
// HELLO/FEATURES handshake and is ready to receive flow-mods.
type ConnectionUpEvent struct {
	DPID uint64
	Conn *Conn
}

// ConnectionDownEvent fires when a switch's connection is lost.
type ConnectionDownEvent struct {
	DPID uint64
}

// LinkEvent reports a change in an inter-switch link's health, as
// determined by LinkDiscovery's heartbeat timer.
type LinkEvent struct {
	DPID1, DPID2 uint64
	Up           bool
}

// Event is any of ConnectionUpEvent, ConnectionDownEvent,
// PacketInMessage, or LinkEvent. A Listener's event channel carries the
// first three; a LinkDiscovery's event channel carries LinkEvent. It
// carries no methods; consumers type-switch on the concrete value.
type Event any
