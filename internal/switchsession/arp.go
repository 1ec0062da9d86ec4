package switchsession

import (
	"encoding/binary"
	"net"
)

const (
	ethHeaderLen = 14
	arpLen       = 28

	ethTypeARP        = 0x0806
	arpHWTypeEthernet = 1
	arpProtoTypeIPv4  = 0x0800
	arpOpRequest      = 1
	arpOpReply        = 2
)

// arpRequest is the subset of an ARP request frame this controller
// answers: who owns TargetIP, and where to send the answer back to.
type arpRequest struct {
	SenderMAC net.HardwareAddr
	SenderIP  net.IP
	TargetIP  net.IP
}

// parseARPRequest extracts an ARP request from a raw Ethernet frame.
// It returns ok=false for anything that is not an Ethernet+ARP request
// frame, including ARP replies, which this controller never needs to
// answer.
func parseARPRequest(frame []byte) (arpRequest, bool) {
	if len(frame) < ethHeaderLen+arpLen {
		return arpRequest{}, false
	}
	if binary.BigEndian.Uint16(frame[12:14]) != ethTypeARP {
		return arpRequest{}, false
	}

	arp := frame[ethHeaderLen : ethHeaderLen+arpLen]
	if binary.BigEndian.Uint16(arp[0:2]) != arpHWTypeEthernet ||
		binary.BigEndian.Uint16(arp[2:4]) != arpProtoTypeIPv4 {
		return arpRequest{}, false
	}
	if binary.BigEndian.Uint16(arp[6:8]) != arpOpRequest {
		return arpRequest{}, false
	}

	return arpRequest{
		SenderMAC: net.HardwareAddr(append([]byte(nil), arp[8:14]...)),
		SenderIP:  net.IP(append([]byte(nil), arp[14:18]...)),
		TargetIP:  net.IP(append([]byte(nil), arp[24:28]...)),
	}, true
}

// buildARPReply constructs the raw Ethernet+ARP frame answering a
// request for replyIP, claiming replyMAC as its owner, addressed back
// to the original requester (toMAC, toIP).
func buildARPReply(replyMAC net.HardwareAddr, replyIP net.IP, toMAC net.HardwareAddr, toIP net.IP) []byte {
	frame := make([]byte, ethHeaderLen+arpLen)

	copy(frame[0:6], toMAC)
	copy(frame[6:12], replyMAC)
	binary.BigEndian.PutUint16(frame[12:14], ethTypeARP)

	arp := frame[ethHeaderLen:]
	binary.BigEndian.PutUint16(arp[0:2], arpHWTypeEthernet)
	binary.BigEndian.PutUint16(arp[2:4], arpProtoTypeIPv4)
	arp[4] = 6
	arp[5] = 4
	binary.BigEndian.PutUint16(arp[6:8], arpOpReply)
	copy(arp[8:14], replyMAC)
	copy(arp[14:18], replyIP.To4())
	copy(arp[18:24], toMAC)
	copy(arp[24:28], toIP.To4())

	return frame
}
