// Package rr supplies the §3 equality rule for resource records on top of
// dns.RR, plus the small set of helpers the zone store and update engine
// need that github.com/miekg/dns doesn't already provide.
package rr

import (
	"strings"

	"github.com/miekg/dns"
)

// CanonicalOwner lowercases and FQDN-izes an RR's owner name, mirroring
// the canonicalization plugins/authoritative applied inline before every
// map lookup.
func CanonicalOwner(r dns.RR) string {
	return dns.Fqdn(strings.ToLower(r.Header().Name))
}

// Equal implements the §3 equality rule: matching owner (case-insensitive),
// class, type and canonical RDATA. TTL is excluded.
func Equal(a, b dns.RR) bool {
	ha, hb := a.Header(), b.Header()
	if !strings.EqualFold(ha.Name, hb.Name) {
		return false
	}
	if ha.Class != hb.Class || ha.Rrtype != hb.Rrtype {
		return false
	}
	return rdataString(a) == rdataString(b)
}

// rdataString renders an RR's RDATA for comparison with TTL and owner
// normalized out, so that two RRs differing only in TTL or in owner case
// compare equal.
func rdataString(r dns.RR) string {
	cp := dns.Copy(r)
	h := cp.Header()
	h.Name = dns.Fqdn(strings.ToLower(h.Name))
	h.Ttl = 0
	return cp.String()
}

// recognizedUpdateTypes is the §4.4 Step 3 prescan type whitelist.
var recognizedUpdateTypes = map[uint16]bool{
	dns.TypeA:     true,
	dns.TypeAAAA:  true,
	dns.TypeCNAME: true,
	dns.TypeTXT:   true,
	dns.TypeSRV:   true,
	dns.TypeHINFO: true,
	dns.TypeSOA:   true,
}

// IsRecognizedType reports whether t is one of the RR types this server
// accepts in an UPDATE's Update section.
func IsRecognizedType(t uint16) bool {
	return recognizedUpdateTypes[t]
}
