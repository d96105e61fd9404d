// Package update implements the RFC 2136 DYNAMIC UPDATE state machine of
// §4.4: zone resolution, prerequisite check, prescan, clone-then-apply,
// RFC 1982 serial bump, atomic commit. The teacher has no UPDATE support
// at all, so this package is new code; its shape — a request-holding
// Engine plus one free function per pipeline stage — is grounded on
// johanix-tdns/tdns/updateresponder.go's ValidateUpdate/ApproveUpdate
// pipeline, simplified because this server has no SIG(0)/TSIG trust
// layer to thread through, and on the client-side construction seen in
// other_examples' rfc2136 provider (dns.Msg.SetUpdate/.Insert/.Remove),
// used here in reverse as the thing that consumes such a message.
package update

import (
	"strings"
	"sync"

	"authdns/internal/rr"
	"authdns/internal/zone"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// Engine services OPCODE=UPDATE requests against a zone.Store.
type Engine struct {
	store *zone.Store

	// updateMu serializes whole UPDATEs (Steps 1–6), so at most one
	// UPDATE is in Step 4 at a time and each one resolves the zone as
	// the previous one committed it. Queries proceed concurrently
	// regardless, since Step 4 works on a clone.
	updateMu sync.Mutex

	// zoneCreate allows an UPDATE to implicitly create a zone not yet
	// present in the store (Step 1), when its Update section's first RR
	// is an SOA at the zone apex.
	zoneCreate bool
	// zoneDelete allows the zone-delete form (Step 4, class=ANY
	// type=SOA owner=apex).
	zoneDelete bool
}

// NewEngine returns an Engine operating against store with the given
// zone-creation and zone-deletion policy.
func NewEngine(store *zone.Store, zoneCreate, zoneDelete bool) *Engine {
	return &Engine{store: store, zoneCreate: zoneCreate, zoneDelete: zoneDelete}
}

// Handle processes one UPDATE request end to end and returns the
// response message. It never panics on malformed input; every failure
// path sets an RCODE on the reply instead. Handle holds updateMu for its
// whole duration and is called with no store lock held; store locks are
// taken only inside the zone.Store methods it calls.
func (e *Engine) Handle(req *dns.Msg) *dns.Msg {
	e.updateMu.Lock()
	defer e.updateMu.Unlock()

	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = true

	// Step 0 — form.
	if len(req.Question) != 1 {
		resp.Rcode = dns.RcodeFormatError
		return resp
	}
	zq := req.Question[0]
	if zq.Qtype != dns.TypeSOA {
		resp.Rcode = dns.RcodeFormatError
		return resp
	}
	zname := dns.Fqdn(strings.ToLower(zq.Name))
	zclass := zq.Qclass

	// Step 1 — zone resolution.
	z, rcode := e.resolveZone(zname, zclass, req.Ns)
	if rcode != dns.RcodeSuccess {
		resp.Rcode = rcode
		return resp
	}

	// Step 2 — prerequisite check.
	if rcode := checkPrerequisites(z, zname, zclass, req.Answer); rcode != dns.RcodeSuccess {
		resp.Rcode = rcode
		return resp
	}

	// Step 3 — prescan.
	if rcode := prescan(zname, zclass, req.Ns, e.zoneDelete); rcode != dns.RcodeSuccess {
		resp.Rcode = rcode
		return resp
	}

	// Step 4 — apply.
	clone := z.Clone()
	deleted := applyUpdates(clone, zname, zclass, req.Ns, e.zoneDelete)
	if deleted {
		e.store.Remove(zname, zclass)
		resp.Rcode = dns.RcodeSuccess
		return resp
	}

	// Step 6 — commit (Step 5, the serial bump, already happened inside
	// applyUpdates since it needs the "increment serial" flag collected
	// during the same pass).
	e.store.Replace(clone)
	resp.Rcode = dns.RcodeSuccess
	return resp
}

// resolveZone implements Step 1. If the zone isn't found and zone
// creation is enabled, the Update section's first RR must be an SOA at
// zname; a fresh, empty zone is returned for the apply step to populate.
func (e *Engine) resolveZone(zname string, zclass uint16, updateSection []dns.RR) (*zone.Zone, int) {
	if z, ok := e.store.Find(zname, zclass); ok {
		return z, dns.RcodeSuccess
	}
	if !e.zoneCreate {
		return nil, dns.RcodeNotAuth
	}
	if len(updateSection) == 0 {
		return nil, dns.RcodeNotAuth
	}
	first := updateSection[0]
	if first.Header().Rrtype != dns.TypeSOA || dns.Fqdn(strings.ToLower(first.Header().Name)) != zname {
		return nil, dns.RcodeNotAuth
	}
	return zone.New(zname, zclass), dns.RcodeSuccess
}

// checkPrerequisites implements Step 2 (RFC 2136 §3.2). Per the RFC
// 2136 §3.2.5 class=zclass branch, temp RRsets are compared for exact
// equality against the zone's own RRset — following the RFC strictly,
// not the commented-out compare of the source this was modeled on.
func checkPrerequisites(z *zone.Zone, zname string, zclass uint16, prereqs []dns.RR) int {
	type rrsetKey struct {
		name  string
		rtype uint16
	}
	temp := make(map[rrsetKey][]dns.RR)

	for _, p := range prereqs {
		h := p.Header()
		if h.Ttl != 0 {
			return dns.RcodeFormatError
		}
		owner := dns.Fqdn(strings.ToLower(h.Name))
		if !zone.IsSubdomainOf(owner, zname) {
			return dns.RcodeNotZone
		}

		switch {
		case h.Class == dns.ClassANY && h.Rdlength == 0 && h.Rrtype == dns.TypeANY:
			if len(z.RRsOfOwner(owner)) == 0 {
				return dns.RcodeNameError
			}
		case h.Class == dns.ClassANY && h.Rdlength == 0:
			if len(z.RRsOfType(owner, dns.ClassANY, h.Rrtype)) == 0 {
				return dns.RcodeNXRrset
			}
		case h.Class == dns.ClassNONE && h.Rdlength == 0 && h.Rrtype == dns.TypeANY:
			if len(z.RRsOfOwner(owner)) != 0 {
				return dns.RcodeYXDomain
			}
		case h.Class == dns.ClassNONE && h.Rdlength == 0:
			if len(z.RRsOfType(owner, dns.ClassANY, h.Rrtype)) != 0 {
				return dns.RcodeYXRrset
			}
		case h.Class == zclass:
			key := rrsetKey{owner, h.Rrtype}
			temp[key] = append(temp[key], p)
		default:
			return dns.RcodeFormatError
		}
	}

	for key, want := range temp {
		have := z.RRsOfType(key.name, dns.ClassANY, key.rtype)
		if !rrsetsEqual(have, want) {
			return dns.RcodeNXRrset
		}
	}
	return dns.RcodeSuccess
}

// rrsetsEqual compares two RRsets as multisets under §3 equality.
func rrsetsEqual(a, b []dns.RR) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, ra := range a {
		found := false
		for i, rb := range b {
			if used[i] {
				continue
			}
			if rr.Equal(ra, rb) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// prescan implements Step 3: syntactic validation of the Update section.
func prescan(zname string, zclass uint16, updates []dns.RR, zoneDelete bool) int {
	zoneDeleteForms := 0
	for _, u := range updates {
		h := u.Header()
		if !rr.IsRecognizedType(h.Rrtype) && !(h.Class == dns.ClassANY && h.Rrtype == dns.TypeANY) {
			return dns.RcodeFormatError
		}
		switch {
		case h.Class == zclass:
		case h.Class == dns.ClassANY && h.Ttl == 0 && h.Rdlength == 0:
		case h.Class == dns.ClassNONE && h.Ttl == 0:
		default:
			return dns.RcodeFormatError
		}
		if zoneDelete && h.Class == dns.ClassANY && h.Rrtype == dns.TypeSOA &&
			dns.Fqdn(strings.ToLower(h.Name)) == zname {
			zoneDeleteForms++
		}
	}
	if zoneDeleteForms > 0 && len(updates) > 1 {
		return dns.RcodeFormatError
	}
	return dns.RcodeSuccess
}

// applyUpdates implements Step 4 (and Step 5, the serial bump) against
// clone, which the caller owns exclusively. It returns deleted=true when
// the zone-delete form fired, in which case the caller must remove the
// zone from the store instead of committing clone.
func applyUpdates(clone *zone.Zone, zname string, zclass uint16, updates []dns.RR, zoneDelete bool) (deleted bool) {
	incrementSerial := false

	for _, u := range updates {
		h := u.Header()
		owner := dns.Fqdn(strings.ToLower(h.Name))

		switch h.Class {
		case zclass:
			if applyAdd(clone, zname, owner, u) {
				incrementSerial = true
			}
		case dns.ClassANY:
			if owner == zname && h.Rrtype == dns.TypeSOA {
				if zoneDelete {
					return true
				}
				continue
			}
			if owner == zname && h.Rrtype == dns.TypeNS {
				continue
			}
			if applyDeleteAny(clone, zname, owner, h.Rrtype) {
				incrementSerial = true
			}
		case dns.ClassNONE:
			if h.Rrtype == dns.TypeSOA {
				continue
			}
			if applyDeleteExact(clone, u) {
				incrementSerial = true
			}
		}
	}

	if incrementSerial {
		if soa := clone.SOA(); soa != nil {
			soa.Serial = zone.BumpSerial(soa.Serial)
		}
	}
	return false
}

// applyAdd handles one class=zclass (add/replace) update RR, returning
// whether it should set the increment-serial flag.
func applyAdd(clone *zone.Zone, zname, owner string, u dns.RR) bool {
	if _, isCNAME := u.(*dns.CNAME); isCNAME {
		for _, existing := range clone.RRsOfOwner(owner) {
			if _, ok := existing.(*dns.CNAME); !ok {
				return false // non-CNAME data already at this name
			}
		}
	} else {
		for _, existing := range clone.RRsOfOwner(owner) {
			if _, ok := existing.(*dns.CNAME); ok {
				return false // a CNAME already owns this name
			}
		}
	}

	if soa, isSOA := u.(*dns.SOA); isSOA {
		if owner != zname {
			return false
		}
		cur := clone.SOA()
		if cur != nil && !serialGreater(soa.Serial, cur.Serial) {
			return false
		}
		// cur == nil only on a freshly created zone (Step 1); its first
		// SOA is always inserted regardless of serial value.
		replaceSOA(clone, soa)
		return false
	}

	for _, existing := range clone.RRsOfType(owner, u.Header().Class, u.Header().Rrtype) {
		if rr.Equal(existing, u) {
			return false // no-op: already present
		}
	}
	clone.Insert(dns.Copy(u))
	return true
}

// serialGreater implements the RFC 1982 comparison used for SOA serial
// replacement: i2 is strictly greater than i1.
func serialGreater(i2, i1 uint32) bool {
	if i1 < i2 && i2-i1 < 1<<31 {
		return true
	}
	if i1 > i2 && i1-i2 > 1<<31 {
		return true
	}
	return false
}

// replaceSOA swaps clone's SOA RR for soa.
func replaceSOA(clone *zone.Zone, soa *dns.SOA) {
	for i, r := range clone.RRs {
		if _, ok := r.(*dns.SOA); ok {
			clone.RRs[i] = dns.Copy(soa)
			return
		}
	}
	clone.Insert(dns.Copy(soa))
}

// applyDeleteAny handles class=ANY deletions (§4.4 Step 4's "delete"
// rules) other than the apex SOA/NS special cases, which the caller
// filters out first.
func applyDeleteAny(clone *zone.Zone, zname, owner string, rrtype uint16) bool {
	removed := false
	if owner == zname && rrtype == dns.TypeANY {
		// Preserve the apex NS set (Invariant I3).
		for i := len(clone.RRs) - 1; i >= 0; i-- {
			h := clone.RRs[i].Header()
			if dns.Fqdn(strings.ToLower(h.Name)) != owner {
				continue
			}
			if h.Rrtype == dns.TypeNS || h.Rrtype == dns.TypeSOA {
				continue
			}
			clone.RemoveAt(i)
			removed = true
		}
		return removed
	}
	if rrtype == dns.TypeANY {
		for i := len(clone.RRs) - 1; i >= 0; i-- {
			if dns.Fqdn(strings.ToLower(clone.RRs[i].Header().Name)) == owner {
				clone.RemoveAt(i)
				removed = true
			}
		}
		return removed
	}
	for i := len(clone.RRs) - 1; i >= 0; i-- {
		h := clone.RRs[i].Header()
		if dns.Fqdn(strings.ToLower(h.Name)) == owner && h.Rrtype == rrtype {
			clone.RemoveAt(i)
			removed = true
		}
	}
	return removed
}

// applyDeleteExact handles class=NONE deletion of a single RR equal
// (§3) to u.
func applyDeleteExact(clone *zone.Zone, u dns.RR) bool {
	for i := len(clone.RRs) - 1; i >= 0; i-- {
		if rr.Equal(clone.RRs[i], u) {
			clone.RemoveAt(i)
			return true
		}
	}
	return false
}

// errFormat is returned by callers that want a pkg/errors-wrapped cause
// alongside the plain RCODE the wire protocol carries; used via Err by
// internal/server when logging rejected UPDATEs with more context than
// an RCODE alone gives an operator.
var errFormat = errors.New("update: malformed request")

// Err wraps a bare RCODE with a human-readable cause for logging,
// mirroring the other_examples rfc2136 provider's use of
// github.com/pkg/errors to attach context to otherwise-opaque failures.
func Err(rcode int) error {
	switch rcode {
	case dns.RcodeFormatError:
		return errors.Wrap(errFormat, "form or prescan")
	case dns.RcodeNotAuth:
		return errors.New("update: zone not found and creation not permitted")
	case dns.RcodeNotZone:
		return errors.New("update: prerequisite owner outside zone")
	case dns.RcodeNameError, dns.RcodeNXRrset, dns.RcodeYXDomain, dns.RcodeYXRrset:
		return errors.New("update: prerequisite not satisfied")
	default:
		return errors.Errorf("update: rejected with rcode %d", rcode)
	}
}
