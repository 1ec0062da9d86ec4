package openflow

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/chuyangliu/dcell/internal/logger"
)

func mustMAC(t *testing.T, s string) net.HardwareAddr {
	t.Helper()
	mac, err := net.ParseMAC(s)
	if err != nil {
		t.Fatalf("ParseMAC(%q): %v", s, err)
	}
	return mac
}

func TestEncodeDecodeMatch(t *testing.T) {
	match := FlowMatch{
		DLSrc: mustMAC(t, "00:00:00:00:00:01"),
		DLDst: mustMAC(t, "00:00:00:00:00:02"),
	}
	buf := encodeMatch(match)
	if len(buf) != matchLen {
		t.Fatalf("encodeMatch length = %d, want %d", len(buf), matchLen)
	}

	got := decodeMatch(buf)
	if got.DLSrc.String() != match.DLSrc.String() || got.DLDst.String() != match.DLDst.String() {
		t.Errorf("decodeMatch = %+v, want %+v", got, match)
	}
}

func TestEncodeFlowMod(t *testing.T) {
	msg := FlowModifyMessage{
		Match: FlowMatch{
			DLSrc: mustMAC(t, "00:00:00:00:00:01"),
			DLDst: mustMAC(t, "00:00:00:00:00:06"),
		},
		Command: OFPFCAdd,
		Actions: []FlowActionOutput{{Port: 3}},
	}
	buf := encodeFlowMod(42, msg)

	wantLen := headerLen + flowModFixedLen + actionOutputLen
	if len(buf) != wantLen {
		t.Fatalf("encodeFlowMod length = %d, want %d", len(buf), wantLen)
	}
	if messageType(buf[1]) != typeFlowMod {
		t.Errorf("header type = %d, want %d", buf[1], typeFlowMod)
	}
	if got := binary.BigEndian.Uint16(buf[2:4]); int(got) != wantLen {
		t.Errorf("header length field = %d, want %d", got, wantLen)
	}
	if got := binary.BigEndian.Uint32(buf[4:8]); got != 42 {
		t.Errorf("header xid = %d, want 42", got)
	}

	commandOff := headerLen + matchLen + 8
	if got := Command(binary.BigEndian.Uint16(buf[commandOff : commandOff+2])); got != OFPFCAdd {
		t.Errorf("command field = %d, want %d", got, OFPFCAdd)
	}

	actionOff := headerLen + flowModFixedLen
	if got := binary.BigEndian.Uint16(buf[actionOff+4 : actionOff+6]); got != 3 {
		t.Errorf("action output port = %d, want 3", got)
	}
}

func TestEncodePacketOut(t *testing.T) {
	data := []byte{0xde, 0xad, 0xbe, 0xef}
	msg := PacketOutMessage{
		InPort:  OFPPNone,
		Actions: []FlowActionOutput{{Port: OFPPInPort}},
		Data:    data,
	}
	buf := encodePacketOut(7, msg)

	wantLen := headerLen + packetOutFixedLen + actionOutputLen + len(data)
	if len(buf) != wantLen {
		t.Fatalf("encodePacketOut length = %d, want %d", len(buf), wantLen)
	}
	tail := buf[len(buf)-len(data):]
	for i, b := range data {
		if tail[i] != b {
			t.Fatalf("packet data mismatch at %d: got %x, want %x", i, tail[i], b)
		}
	}
}

func TestDecodePacketIn(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	body := make([]byte, packetInFixedLen+len(data))
	binary.BigEndian.PutUint16(body[6:8], 5) // in_port
	copy(body[packetInFixedLen:], data)

	msg, err := decodePacketIn(body)
	if err != nil {
		t.Fatalf("decodePacketIn: %v", err)
	}
	if msg.InPort != 5 {
		t.Errorf("InPort = %d, want 5", msg.InPort)
	}
	if string(msg.Data) != string(data) {
		t.Errorf("Data = %v, want %v", msg.Data, data)
	}
}

func TestDecodePacketInRejectsShortBody(t *testing.T) {
	if _, err := decodePacketIn([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding a short packet_in body")
	}
}

func TestLinkDiscoveryTimeoutAndRecovery(t *testing.T) {
	d := NewLinkDiscovery(1*time.Second, &logger.NopLogger{})
	t0 := time.Unix(0, 0)

	d.Touch(1, 2, t0)
	d.sweep(t0.Add(500 * time.Millisecond))
	select {
	case ev := <-d.Events():
		t.Fatalf("unexpected event before timeout: %+v", ev)
	default:
	}

	d.sweep(t0.Add(2 * time.Second))
	select {
	case ev := <-d.Events():
		le, ok := ev.(LinkEvent)
		if !ok || le.Up {
			t.Fatalf("expected LinkEvent{Up:false}, got %+v", ev)
		}
	default:
		t.Fatal("expected a down LinkEvent after timeout")
	}

	d.Touch(1, 2, t0.Add(3*time.Second))
	select {
	case ev := <-d.Events():
		le, ok := ev.(LinkEvent)
		if !ok || !le.Up {
			t.Fatalf("expected LinkEvent{Up:true}, got %+v", ev)
		}
	default:
		t.Fatal("expected a recovery LinkEvent after Touch")
	}
}
