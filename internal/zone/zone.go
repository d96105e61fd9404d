// Package zone implements the in-memory zone model and store: an ordered
// bag of resource records per (apex, class), with longest-suffix lookup
// and reader/writer concurrency. It generalizes the zone representation
// plugins/authoritative/authoritative.go used (a map[string]map[uint16]
// []Record) into the ordered []dns.RR form §3/§4.2 require, since
// insertion order is significant for query responses and AXFR (§4.3's
// tie-break rule).
package zone

import (
	"fmt"
	"strings"

	"authdns/internal/rr"

	"github.com/miekg/dns"
)

// Zone is one SOA RR plus an ordered sequence of other RRs (Invariant
// Z1-Z3). RRs[0] need not be the SOA after mutation; locate it with
// SOA().
type Zone struct {
	Apex  string // FQDN, canonical (lowercased, dot-terminated)
	Class uint16
	RRs   []dns.RR
}

// New returns an empty zone at apex/class with no RRs, including no SOA.
// Callers populate it via Insert before handing it to a Store.
func New(apex string, class uint16) *Zone {
	return &Zone{Apex: apex, Class: class}
}

// Clone returns a deep copy, safe to mutate without holding the store
// lock. Grounded on the teacher's handleAXFR, which deep-copies every RR
// with dns.Copy before streaming to avoid races with concurrent writers;
// the update engine and the AXFR responder both take a Clone as their
// "checkpoint" view and either commit it (swap into the store) or
// discard it.
func (z *Zone) Clone() *Zone {
	out := &Zone{
		Apex:  z.Apex,
		Class: z.Class,
		RRs:   make([]dns.RR, len(z.RRs)),
	}
	for i, r := range z.RRs {
		out.RRs[i] = dns.Copy(r)
	}
	return out
}

// SOA returns the zone's SOA record, or nil if none is present (only
// possible transiently, mid-construction, never on a zone committed to
// the store).
func (z *Zone) SOA() *dns.SOA {
	for _, r := range z.RRs {
		if soa, ok := r.(*dns.SOA); ok {
			return soa
		}
	}
	return nil
}

// Insert appends rr to the zone, preserving insertion order.
func (z *Zone) Insert(r dns.RR) {
	z.RRs = append(z.RRs, r)
}

// RemoveAt removes the RR at index i using swap-with-last + shrink,
// mirroring the source's own "faster path" noted in the redesign notes.
// The last RR moves into slot i, so the remaining RRs keep their
// insertion order only when i is the last index.
func (z *Zone) RemoveAt(i int) {
	last := len(z.RRs) - 1
	z.RRs[i] = z.RRs[last]
	z.RRs[last] = nil
	z.RRs = z.RRs[:last]
}

// RRsOfOwner returns the RRs whose owner equals name (case-insensitive,
// FQDN), in insertion order.
func (z *Zone) RRsOfOwner(name string) []dns.RR {
	fq := dns.Fqdn(name)
	var out []dns.RR
	for _, r := range z.RRs {
		if strings.EqualFold(dns.Fqdn(r.Header().Name), fq) {
			out = append(out, r)
		}
	}
	return out
}

// RRsOfType returns the RRs at name whose class matches class or
// dns.ClassANY, and whose type matches rrtype or dns.TypeANY, in
// insertion order — the §4.3 step-6 answer-assembly predicate.
func (z *Zone) RRsOfType(name string, class, rrtype uint16) []dns.RR {
	fq := dns.Fqdn(name)
	var out []dns.RR
	for _, r := range z.RRs {
		h := r.Header()
		if !strings.EqualFold(dns.Fqdn(h.Name), fq) {
			continue
		}
		if class != dns.ClassANY && h.Class != class {
			continue
		}
		if rrtype != dns.TypeANY && h.Rrtype != rrtype {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Validate checks invariants Z1-Z3.
func (z *Zone) Validate() error {
	soa := z.SOA()
	if soa == nil {
		return fmt.Errorf("zone %s: missing SOA (Z1)", z.Apex)
	}
	if dns.Fqdn(soa.Hdr.Name) != dns.Fqdn(z.Apex) {
		return fmt.Errorf("zone %s: SOA owner %s is not the apex (Z1)", z.Apex, soa.Hdr.Name)
	}
	for i, r := range z.RRs {
		if !IsSubdomainOf(r.Header().Name, z.Apex) {
			return fmt.Errorf("zone %s: RR %s is not apex or descendant (Z2)", z.Apex, r.Header().Name)
		}
		for j := i + 1; j < len(z.RRs); j++ {
			if rr.Equal(r, z.RRs[j]) {
				return fmt.Errorf("zone %s: duplicate RR %s (Z3)", z.Apex, r.String())
			}
		}
	}
	return nil
}

// IsSubdomainOf reports whether name is equal to or a descendant of apex,
// both taken as plain (possibly non-canonical) strings.
func IsSubdomainOf(name, apex string) bool {
	n, a := strings.ToLower(dns.Fqdn(name)), strings.ToLower(dns.Fqdn(apex))
	if n == a || a == "." {
		return true
	}
	return strings.HasSuffix(n, "."+a)
}

// BumpSerial advances old by one under the RFC 1982 rule, skipping
// serial zero (Invariant I4).
func BumpSerial(old uint32) uint32 {
	next := old + 1
	if next == 0 {
		next = 1
	}
	return next
}
