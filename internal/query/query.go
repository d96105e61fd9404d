// Package query implements the OPCODE=QUERY responder of §4.3: canonical
// name matching against the zone store, CNAME chasing capped at 20 hops,
// and SOA-in-Authority on NODATA/NXDOMAIN. It generalizes
// plugins/authoritative/authoritative.go's Execute/followCname/
// addAuthorityAndGlue methods to operate against a zone.Store (longest-
// suffix match) instead of a flat map keyed by exact zone name, and
// raises the CNAME depth cap from the teacher's 5 to the spec's 20.
package query

import (
	"strings"

	"authdns/internal/zone"

	"github.com/miekg/dns"
)

// MaxCNAMEHops bounds CNAME chase depth (Invariant I6).
const MaxCNAMEHops = 20

// Respond builds the answer for req, a message holding exactly one
// Question. proto is "udp" or "tcp", needed for the AXFR gate (§4.3
// step 5). handled reports whether the AXFR-over-TCP case applies: the
// caller must hand off to internal/axfr and must not send resp itself.
//
// Respond takes no lock itself and its caller holds none: store.Find
// holds the store's shared lock only for the lookup, and the returned
// zone is then read without the lock. That is safe because a zone
// reachable from the store is never edited in place (Invariant S1).
func Respond(store *zone.Store, req *dns.Msg, proto string) (resp *dns.Msg, handled bool) {
	resp = new(dns.Msg)
	resp.SetReply(req)

	if len(req.Question) != 1 {
		resp.Rcode = dns.RcodeFormatError
		return resp, false
	}
	q := req.Question[0]
	qname := dns.Fqdn(strings.ToLower(q.Name))

	z, ok := store.Find(qname, q.Qclass)
	if !ok {
		resp.Rcode = dns.RcodeNameError
		return resp, false
	}
	resp.Authoritative = true

	if q.Qtype == dns.TypeAXFR {
		if proto == "tcp" {
			return resp, true
		}
		resp.Rcode = dns.RcodeServerFailure
		return resp, false
	}

	direct := z.RRsOfType(qname, q.Qclass, q.Qtype)
	if len(direct) > 0 {
		resp.Answer = append(resp.Answer, direct...)
	} else {
		chaseCNAME(z, qname, q, resp, 0)
	}

	if len(resp.Answer) > 0 {
		resp.Rcode = dns.RcodeSuccess
		addGlue(resp, z)
		addSOAAuthority(resp, z)
		return resp, false
	}

	if len(z.RRsOfOwner(qname)) > 0 {
		// NODATA: the name exists but not with this type/class.
		resp.Rcode = dns.RcodeSuccess
	} else {
		resp.Rcode = dns.RcodeNameError
	}
	addSOAAuthority(resp, z)
	return resp, false
}

// chaseCNAME implements the §4.3 step-6 CNAME-chase rule: if no direct
// type match exists at name but a CNAME does, include it and recurse at
// its target, within the same zone, up to MaxCNAMEHops deep (I6).
func chaseCNAME(z *zone.Zone, name string, q dns.Question, resp *dns.Msg, depth int) {
	if depth >= MaxCNAMEHops {
		return
	}
	cnames := z.RRsOfType(name, q.Qclass, dns.TypeCNAME)
	if len(cnames) == 0 {
		return
	}
	cname := cnames[0]
	resp.Answer = append(resp.Answer, cname)
	target, ok := cname.(*dns.CNAME)
	if !ok {
		return
	}
	direct := z.RRsOfType(target.Target, q.Qclass, q.Qtype)
	if len(direct) > 0 {
		resp.Answer = append(resp.Answer, direct...)
		return
	}
	chaseCNAME(z, dns.Fqdn(strings.ToLower(target.Target)), q, resp, depth+1)
}

// addGlue populates Additional with in-zone A/AAAA glue for the zone's
// apex NS targets, plus glue for any MX/SRV targets named in the
// Answer. It never touches Authority: §4.3 step 6 reserves Authority
// for the apex SOA alone on a successful answer (see
// addSOAAuthority), which this server always adds alongside. Glue
// itself is retained from the teacher as an enrichment: §4.3 only
// requires Additional be left empty at minimum, it does not forbid
// glue.
func addGlue(resp *dns.Msg, z *zone.Zone) {
	for _, rr := range z.RRsOfType(z.Apex, dns.ClassINET, dns.TypeNS) {
		if ns, ok := rr.(*dns.NS); ok {
			addGlueFor(resp, z, ns.Ns)
		}
	}
	for _, rr := range resp.Answer {
		switch v := rr.(type) {
		case *dns.MX:
			addGlueFor(resp, z, v.Mx)
		case *dns.SRV:
			addGlueFor(resp, z, v.Target)
		}
	}
}

func addGlueFor(resp *dns.Msg, z *zone.Zone, target string) {
	resp.Extra = append(resp.Extra, z.RRsOfType(target, dns.ClassINET, dns.TypeA)...)
	resp.Extra = append(resp.Extra, z.RRsOfType(target, dns.ClassINET, dns.TypeAAAA)...)
}

// addSOAAuthority sets the apex SOA in Authority. §4.3 step 6 requires
// this unconditionally: on a successful answer, on NODATA, and on
// NXDOMAIN alike.
func addSOAAuthority(resp *dns.Msg, z *zone.Zone) {
	if soa := z.SOA(); soa != nil {
		resp.Ns = append(resp.Ns, soa)
	}
}
