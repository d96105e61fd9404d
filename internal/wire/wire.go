// Package wire is a thin policy layer over github.com/miekg/dns's own
// codec. Re-implementing RFC 1035 message framing by hand — the teacher's
// dependency graph already ships a battle-tested implementation used
// throughout plugins/authoritative and main.go's dns.Server loops — would
// be exactly the hand-rolled-stdlib-replacement anti-pattern this server
// avoids. What's left to specify here is the policy this server layers
// on top: EDNS negotiation on replies and a size-limited encode path.
package wire

import (
	"errors"

	"github.com/miekg/dns"
)

// ErrBuffer is returned by SizeLimitedPack when the message exceeds the
// caller-imposed limit. It is the only condition under which encode is
// allowed to fail, per §4.1.
var ErrBuffer = errors.New("wire: message exceeds size limit")

// udpPayloadSize is the size this server advertises in its own EDNS OPT
// on replies, per §4.1.
const udpPayloadSize = 4096

// NegotiateEDNS mirrors EDNS from query onto reply: it sets the
// reply's advertised UDP payload size to 4096 and, if the query carried
// EDNS at a version this server doesn't support (> 0), sets the
// bad-version extended-RCODE bits on the reply's OPT record; the reply's
// sections are left as the handler built them. Other EDNS options in
// the query, such as client subnet, are ignored.
func NegotiateEDNS(query, reply *dns.Msg) {
	opt := query.IsEdns0()
	if opt == nil {
		return
	}
	reply.SetEdns0(udpPayloadSize, false)
	if opt.Version() > 0 {
		reply.IsEdns0().SetExtendedRcode(dns.RcodeBadVers)
	}
}

// SizeLimitedPack packs m, failing with ErrBuffer before attempting to
// encode when m would exceed limit. Encode otherwise always succeeds,
// per §4.1's error taxonomy.
func SizeLimitedPack(m *dns.Msg, limit int) ([]byte, error) {
	if m.Len() > limit {
		return nil, ErrBuffer
	}
	return m.Pack()
}
