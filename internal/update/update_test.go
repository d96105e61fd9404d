package update

import (
	"testing"

	"authdns/internal/zone"

	"github.com/miekg/dns"
)

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	r, err := dns.NewRR(s)
	if err != nil {
		t.Fatalf("dns.NewRR(%q): %v", s, err)
	}
	return r
}

func newStoreWithExample(t *testing.T, serial uint32) *zone.Store {
	t.Helper()
	z := zone.New("example.com.", dns.ClassINET)
	soa := mustRR(t, "example.com. 3600 IN SOA ns1.example.com. hostmaster.example.com. 10 7200 3600 1209600 3600").(*dns.SOA)
	soa.Serial = serial
	z.Insert(soa)
	s := zone.NewStore()
	if err := s.Add(z); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return s
}

func updateMsg(t *testing.T, zname string, prereqs, updates []dns.RR) *dns.Msg {
	t.Helper()
	m := new(dns.Msg)
	m.SetUpdate(zname)
	m.Answer = prereqs
	m.Ns = updates
	return m
}

func TestUpdateAdd(t *testing.T) {
	s := newStoreWithExample(t, 10)
	e := NewEngine(s, false, true)

	req := updateMsg(t, "example.com.", nil, []dns.RR{
		mustRR(t, "new.example.com. 60 IN A 192.0.2.50"),
	})
	resp := e.Handle(req)
	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("Rcode = %d, want NOERROR", resp.Rcode)
	}

	z, ok := s.Find("new.example.com.", dns.ClassINET)
	if !ok {
		t.Fatal("zone should still be registered")
	}
	if len(z.RRsOfType("new.example.com.", dns.ClassINET, dns.TypeA)) != 1 {
		t.Fatal("new A record should be present")
	}
	if z.SOA().Serial != 11 {
		t.Fatalf("serial = %d, want 11", z.SOA().Serial)
	}
}

func TestUpdateDeleteRRset(t *testing.T) {
	s := newStoreWithExample(t, 10)
	z, _ := s.Find("example.com.", dns.ClassINET)
	z.Insert(mustRR(t, "dup.example.com. 60 IN A 192.0.2.1"))
	z.Insert(mustRR(t, "dup.example.com. 60 IN A 192.0.2.2"))

	e := NewEngine(s, false, true)
	del, err := dns.NewRR("dup.example.com. 0 ANY A")
	if err != nil {
		t.Fatalf("NewRR: %v", err)
	}
	req := updateMsg(t, "example.com.", nil, []dns.RR{del})
	resp := e.Handle(req)
	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("Rcode = %d, want NOERROR", resp.Rcode)
	}

	z, _ = s.Find("example.com.", dns.ClassINET)
	if len(z.RRsOfType("dup.example.com.", dns.ClassINET, dns.TypeA)) != 0 {
		t.Fatal("both A records at dup.example.com should be removed")
	}
	if z.SOA().Serial != 11 {
		t.Fatalf("serial = %d, want 11", z.SOA().Serial)
	}
}

func TestUpdateZoneDelete(t *testing.T) {
	s := newStoreWithExample(t, 10)
	e := NewEngine(s, false, true)

	del, err := dns.NewRR("example.com. 0 ANY SOA")
	if err != nil {
		t.Fatalf("NewRR: %v", err)
	}
	req := updateMsg(t, "example.com.", nil, []dns.RR{del})
	resp := e.Handle(req)
	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("Rcode = %d, want NOERROR", resp.Rcode)
	}

	if _, ok := s.Find("example.com.", dns.ClassINET); ok {
		t.Fatal("zone should no longer be registered after zone-delete")
	}
}

func TestUpdatePrereqYXDOMAIN(t *testing.T) {
	s := newStoreWithExample(t, 10)
	e := NewEngine(s, false, true)

	prereq, err := dns.NewRR("example.com. 0 NONE ANY")
	if err != nil {
		t.Fatalf("NewRR: %v", err)
	}
	req := updateMsg(t, "example.com.", []dns.RR{prereq}, []dns.RR{
		mustRR(t, "new.example.com. 60 IN A 192.0.2.50"),
	})
	resp := e.Handle(req)
	if resp.Rcode != dns.RcodeYXDomain {
		t.Fatalf("Rcode = %d, want YXDOMAIN", resp.Rcode)
	}

	z, _ := s.Find("example.com.", dns.ClassINET)
	if z.SOA().Serial != 10 {
		t.Fatal("zone must be unchanged when a prerequisite fails")
	}
	if len(z.RRsOfType("new.example.com.", dns.ClassINET, dns.TypeA)) != 0 {
		t.Fatal("update must not apply when a prerequisite fails")
	}
}

func TestUpdateApexNSPreservedOnAnyAnyDelete(t *testing.T) {
	s := newStoreWithExample(t, 10)
	z, _ := s.Find("example.com.", dns.ClassINET)
	z.Insert(mustRR(t, "example.com. 3600 IN NS ns1.example.com."))
	z.Insert(mustRR(t, "example.com. 3600 IN TXT \"hello\""))

	e := NewEngine(s, false, true)
	del, err := dns.NewRR("example.com. 0 ANY ANY")
	if err != nil {
		t.Fatalf("NewRR: %v", err)
	}
	req := updateMsg(t, "example.com.", nil, []dns.RR{del})
	resp := e.Handle(req)
	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("Rcode = %d, want NOERROR", resp.Rcode)
	}

	z, _ = s.Find("example.com.", dns.ClassINET)
	if len(z.RRsOfType("example.com.", dns.ClassINET, dns.TypeNS)) != 1 {
		t.Fatal("apex NS must survive a class=ANY type=ANY delete (I3)")
	}
	if len(z.RRsOfType("example.com.", dns.ClassINET, dns.TypeTXT)) != 0 {
		t.Fatal("non-NS, non-SOA apex data must be removed")
	}
}

func TestUpdateSerialNeverZero(t *testing.T) {
	s := newStoreWithExample(t, 0xFFFFFFFF)
	e := NewEngine(s, false, true)

	req := updateMsg(t, "example.com.", nil, []dns.RR{
		mustRR(t, "new.example.com. 60 IN A 192.0.2.50"),
	})
	resp := e.Handle(req)
	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("Rcode = %d, want NOERROR", resp.Rcode)
	}
	z, _ := s.Find("example.com.", dns.ClassINET)
	if z.SOA().Serial == 0 {
		t.Fatal("serial must never be left at zero after a mutation (I4)")
	}
}
