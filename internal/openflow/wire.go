package openflow

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// header is the 8-byte OpenFlow 1.0 message header common to every
// message (OpenFlow 1.0 §5.1).
type header struct {
	Version uint8
	Type    messageType
	Length  uint16
	XID     uint32
}

const headerLen = 8

func readHeader(r io.Reader) (header, error) {
	var buf [headerLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return header{}, err
	}
	return header{
		Version: buf[0],
		Type:    messageType(buf[1]),
		Length:  binary.BigEndian.Uint16(buf[2:4]),
		XID:     binary.BigEndian.Uint32(buf[4:8]),
	}, nil
}

func writeHeader(w *bytes.Buffer, t messageType, xid uint32, length uint16) {
	w.WriteByte(ofVersion)
	w.WriteByte(byte(t))
	var lenXID [6]byte
	binary.BigEndian.PutUint16(lenXID[0:2], length)
	binary.BigEndian.PutUint32(lenXID[2:6], xid)
	w.Write(lenXID[:])
}

func encodeHello(xid uint32) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, typeHello, xid, headerLen)
	return buf.Bytes()
}

func encodeFeaturesRequest(xid uint32) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, typeFeaturesRequest, xid, headerLen)
	return buf.Bytes()
}

// featuresReplyFixedLen covers datapath_id, n_buffers, n_tables, a
// 3-byte pad, capabilities and actions — the fields this controller
// reads. Any trailing port descriptions are discarded.
const featuresReplyFixedLen = 8 + 4 + 1 + 3 + 4 + 4

func decodeFeaturesReply(body []byte) (dpid uint64, err error) {
	if len(body) < featuresReplyFixedLen {
		return 0, fmt.Errorf("openflow: short features_reply body (%d bytes)", len(body))
	}
	return binary.BigEndian.Uint64(body[0:8]), nil
}

// matchLen is the fixed size of ofp_match in OpenFlow 1.0 (§5.2.3).
const matchLen = 40

// wildcardAll marks every ofp_match field as a wildcard except dl_src
// and dl_dst, which this controller always matches exactly.
const wildcardAll uint32 = 0x3fffff & ^uint32(1<<2|1<<3)

func encodeMatch(m FlowMatch) []byte {
	buf := make([]byte, matchLen)
	binary.BigEndian.PutUint32(buf[0:4], wildcardAll)
	// buf[4:6] in_port left zero (wildcarded)
	copy(buf[6:12], padMAC(m.DLSrc))
	copy(buf[12:18], padMAC(m.DLDst))
	return buf
}

func padMAC(mac net.HardwareAddr) []byte {
	out := make([]byte, 6)
	copy(out, mac)
	return out
}

func decodeMatch(buf []byte) FlowMatch {
	return FlowMatch{
		DLSrc: net.HardwareAddr(append([]byte(nil), buf[6:12]...)),
		DLDst: net.HardwareAddr(append([]byte(nil), buf[12:18]...)),
	}
}

// actionOutputLen is the size of an ofp_action_output (§5.2.4).
const actionOutputLen = 8

func encodeActionOutput(a FlowActionOutput) []byte {
	buf := make([]byte, actionOutputLen)
	binary.BigEndian.PutUint16(buf[0:2], 0) // OFPAT_OUTPUT
	binary.BigEndian.PutUint16(buf[2:4], actionOutputLen)
	binary.BigEndian.PutUint16(buf[4:6], uint16(a.Port))
	binary.BigEndian.PutUint16(buf[6:8], 0) // max_len, unused for non-CONTROLLER ports
	return buf
}

// flowModFixedLen covers ofp_match, cookie, command, timeouts,
// priority, buffer_id, out_port and flags — everything in ofp_flow_mod
// before the variable-length action list (§5.3.3).
const flowModFixedLen = matchLen + 8 + 2 + 2 + 2 + 2 + 4 + 2 + 2

func encodeFlowMod(xid uint32, msg FlowModifyMessage) []byte {
	actions := make([]byte, 0, len(msg.Actions)*actionOutputLen)
	for _, a := range msg.Actions {
		actions = append(actions, encodeActionOutput(a)...)
	}

	body := make([]byte, flowModFixedLen+len(actions))
	copy(body[0:matchLen], encodeMatch(msg.Match))
	off := matchLen
	binary.BigEndian.PutUint64(body[off:off+8], 0) // cookie
	off += 8
	binary.BigEndian.PutUint16(body[off:off+2], uint16(msg.Command))
	off += 2
	binary.BigEndian.PutUint16(body[off:off+2], 0) // idle_timeout
	off += 2
	binary.BigEndian.PutUint16(body[off:off+2], 0) // hard_timeout
	off += 2
	binary.BigEndian.PutUint16(body[off:off+2], 0x8000) // priority
	off += 2
	binary.BigEndian.PutUint32(body[off:off+4], 0xffffffff) // buffer_id: none
	off += 4
	binary.BigEndian.PutUint16(body[off:off+2], uint16(OFPPNone)) // out_port
	off += 2
	binary.BigEndian.PutUint16(body[off:off+2], 0) // flags
	off += 2
	copy(body[off:], actions)

	var buf bytes.Buffer
	writeHeader(&buf, typeFlowMod, xid, uint16(headerLen+len(body)))
	buf.Write(body)
	return buf.Bytes()
}

// packetOutFixedLen covers buffer_id, in_port, and the actions-length
// field preceding the variable-length action list and packet data
// (§5.3.6).
const packetOutFixedLen = 4 + 2 + 2

func encodePacketOut(xid uint32, msg PacketOutMessage) []byte {
	actions := make([]byte, 0, len(msg.Actions)*actionOutputLen)
	for _, a := range msg.Actions {
		actions = append(actions, encodeActionOutput(a)...)
	}

	body := make([]byte, 0, packetOutFixedLen+len(actions)+len(msg.Data))
	var fixed [packetOutFixedLen]byte
	binary.BigEndian.PutUint32(fixed[0:4], 0xffffffff) // buffer_id: none, data is inline
	binary.BigEndian.PutUint16(fixed[4:6], uint16(msg.InPort))
	binary.BigEndian.PutUint16(fixed[6:8], uint16(len(actions)))
	body = append(body, fixed[:]...)
	body = append(body, actions...)
	body = append(body, msg.Data...)

	var buf bytes.Buffer
	writeHeader(&buf, typePacketOut, xid, uint16(headerLen+len(body)))
	buf.Write(body)
	return buf.Bytes()
}

// packetInFixedLen covers buffer_id, total_len, in_port, reason and a
// 1-byte pad preceding the captured frame data (§5.4.1).
const packetInFixedLen = 4 + 2 + 2 + 1 + 1

func decodePacketIn(body []byte) (PacketInMessage, error) {
	if len(body) < packetInFixedLen {
		return PacketInMessage{}, fmt.Errorf("openflow: short packet_in body (%d bytes)", len(body))
	}
	inPort := binary.BigEndian.Uint16(body[6:8])
	return PacketInMessage{
		InPort: PortNumber(inPort),
		Data:   append([]byte(nil), body[packetInFixedLen:]...),
	}, nil
}
