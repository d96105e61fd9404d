// Package axfr streams full zone transfers over an accepted TCP
// connection: SOA-first, one RR per message, SOA-last. It builds on
// dns.Transfer, exactly as plugins/authoritative/authoritative.go's
// handleAXFR did (tr := new(dns.Transfer); ch := make(chan
// *dns.Envelope); tr.Out(w, msg, ch)) — hand-rolling TCP length-prefix
// framing when the dependency already implements it correctly would be
// the anti-pattern this server avoids.
package axfr

import (
	"fmt"
	"log"

	"authdns/internal/zone"

	"github.com/miekg/dns"
)

// Serve transfers z, the zone matching req's question, over w. It
// clones z once up front so no store lock is needed during any network
// I/O per §5's AXFR locking rule, then streams the clone's
// RRs in stored insertion order — spec.md doesn't require sorted AXFR
// output, and sorting would violate the §4.3 tie-break rule for any
// other responder sharing the same zone's insertion order.
//
// Serve takes no store lock itself. The caller must have already
// resolved the target zone (store.Find under a shared lock, released
// before calling Serve) exactly as §5 prescribes for the AXFR hand-off.
func Serve(w dns.ResponseWriter, req *dns.Msg, z *zone.Zone) error {
	clone := z.Clone()
	soa := clone.SOA()
	if soa == nil {
		return fmt.Errorf("axfr: zone %s has no SOA", clone.Apex)
	}

	var records []dns.RR
	for _, r := range clone.RRs {
		if r == dns.RR(soa) {
			continue
		}
		records = append(records, r)
	}

	ch := make(chan *dns.Envelope)
	go func() {
		defer close(ch)
		ch <- &dns.Envelope{RR: []dns.RR{soa}}
		for _, r := range records {
			ch <- &dns.Envelope{RR: []dns.RR{r}}
		}
		ch <- &dns.Envelope{RR: []dns.RR{soa}}
	}()

	tr := new(dns.Transfer)
	if err := tr.Out(w, req, ch); err != nil {
		log.Printf("axfr: transfer of zone %s failed: %v", clone.Apex, err)
		return err
	}
	return nil
}
