// Package notify emits RFC 1996 NOTIFY messages to a zone's secondaries.
// It is grounded on the teacher's
// plugins/authoritative/authoritative.go:NotifyZoneSlaves (build
// dns.Msg.SetNotify, iterate the apex NS RRset, send via
// dns.Client.Exchange) generalized to match §4.6's own secondary-
// detection rule exactly: compare each candidate NS's first A record
// against the server's own configured address, rather than the
// teacher's MNAME-based "is this NS the SOA master" filter, which is a
// different and looser test not in scope here.
package notify

import (
	"log"
	"net"

	"authdns/internal/zone"

	"github.com/miekg/dns"
	"golang.org/x/sync/singleflight"
)

// dnsPort is the well-known port NOTIFY is sent to.
const dnsPort = "53"

// Emitter fabricates and sends NOTIFY datagrams for zones in store.
type Emitter struct {
	store *zone.Store
	self  net.IP

	// group coalesces concurrent NotifyZone calls for the same zone key
	// into a single fan-out, the way internal/resolver/factory.go and
	// internal/resolver/resolver.go already use singleflight to coalesce
	// concurrent upstream lookups for the same question — repurposed
	// here for the notify path instead of query resolution.
	group singleflight.Group

	// exchange sends m to addr (host:port); overridable in tests,
	// defaults to a real dns.Client.
	exchange func(m *dns.Msg, addr string) error
}

// NewEmitter returns an Emitter that sends NOTIFY from the server
// identified by self (used to filter the local node out of the
// secondary set) against the zones in store.
func NewEmitter(store *zone.Store, self net.IP) *Emitter {
	client := new(dns.Client)
	return &Emitter{
		store: store,
		self:  self,
		exchange: func(m *dns.Msg, addr string) error {
			_, _, err := client.Exchange(m, addr)
			return err
		},
	}
}

// NotifyZone builds and sends a NOTIFY for the zone at (apex, class) to
// every secondary: every apex NS whose first A record differs from
// self. Concurrent calls for the same (apex, class) are coalesced into
// one fan-out via singleflight. Delivery is best-effort; per-target
// failures are logged, never returned (§4.6 step 3).
func (e *Emitter) NotifyZone(apex string, class uint16) error {
	key := apex + "\x00" + dns.Type(class).String()
	_, err, _ := e.group.Do(key, func() (any, error) {
		e.notifyZone(apex, class)
		return nil, nil
	})
	return err
}

func (e *Emitter) notifyZone(apex string, class uint16) {
	z, ok := e.store.Find(apex, class)
	if !ok {
		return
	}
	soa := z.SOA()
	if soa == nil {
		log.Printf("notify: zone %s has no SOA, skipping", apex)
		return
	}

	m := new(dns.Msg)
	m.SetNotify(z.Apex)
	m.Id = dns.Id()

	nsRRs := z.RRsOfType(z.Apex, class, dns.TypeNS)
	sent := 0
	for _, rr := range nsRRs {
		ns, ok := rr.(*dns.NS)
		if !ok {
			continue
		}
		addr := firstA(z, ns.Ns)
		if addr == nil {
			continue
		}
		if addr.Equal(e.self) {
			continue // filters the local node out of its own NS set
		}
		if err := e.exchange(m, net.JoinHostPort(addr.String(), dnsPort)); err != nil {
			log.Printf("notify: send to %s (%s) for zone %s failed: %v", ns.Ns, addr, z.Apex, err)
			continue
		}
		sent++
	}
	log.Printf("notify: sent %d NOTIFY messages for zone %s", sent, z.Apex)
}

// firstA returns the first A record's address at name within z, or nil
// if none is present — §4.6 looks up only the first A and skips AAAA.
func firstA(z *zone.Zone, name string) net.IP {
	recs := z.RRsOfType(name, dns.ClassINET, dns.TypeA)
	if len(recs) == 0 {
		return nil
	}
	a, ok := recs[0].(*dns.A)
	if !ok {
		return nil
	}
	return a.A
}
