package controlplane

import (
	"fmt"

	"github.com/chuyangliu/dcell/internal/flowtable"
	"github.com/chuyangliu/dcell/internal/logger"
	"github.com/chuyangliu/dcell/internal/netenc"
	"github.com/chuyangliu/dcell/internal/openflow"
)

// registry looks up the live connection for a dpid. *openflow.Listener
// satisfies this; tests use a fake with no connections registered.
type registry interface {
	Conn(dpid uint64) (*openflow.Conn, bool)
}

// flowInstaller is router.Installer's production implementation. For a
// dpid with a live connection it pushes a delete-then-add flow-mod
// pair before updating the in-memory mirror, matching the issuance
// order that keeps a switch from ever briefly holding two conflicting
// entries for the same (src, dst). For a dpid that has not connected
// yet, it updates only the mirror; the real entry reaches the switch
// the next time all routes are rebuilt, which happens automatically
// once that switch connects.
type flowInstaller struct {
	ft     *flowtable.FlowTable
	conns  registry
	logger logger.Logger
}

func (f *flowInstaller) Install(dpid, src, dst, outPort int) error {
	if conn, ok := f.conns.Conn(uint64(dpid)); ok {
		match := openflow.FlowMatch{DLSrc: netenc.MAC(src), DLDst: netenc.MAC(dst)}

		del := openflow.FlowModifyMessage{Match: match, Command: openflow.OFPFCDelete}
		if err := conn.SendFlowMod(del); err != nil {
			f.logger.Warn("flow delete failed, continuing",
				logger.F("dpid", dpid), logger.F("error", err.Error()))
		}

		add := openflow.FlowModifyMessage{
			Match:   match,
			Command: openflow.OFPFCAdd,
			Actions: []openflow.FlowActionOutput{{Port: openflow.PortNumber(outPort)}},
		}
		if err := conn.SendFlowMod(add); err != nil {
			return fmt.Errorf("controlplane: install flow on dpid %d: %w", dpid, err)
		}
	}
	return f.ft.Add(dpid, src, dst, outPort)
}
