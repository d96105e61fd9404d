package axfr

import (
	"net"
	"testing"

	"authdns/internal/zone"

	"github.com/miekg/dns"
)

// fakeWriter implements dns.ResponseWriter, recording every message
// written so the test can assert on the SOA-first/SOA-last framing.
type fakeWriter struct {
	written []*dns.Msg
}

func (f *fakeWriter) LocalAddr() net.Addr  { return &net.TCPAddr{} }
func (f *fakeWriter) RemoteAddr() net.Addr { return &net.TCPAddr{} }
func (f *fakeWriter) WriteMsg(m *dns.Msg) error {
	f.written = append(f.written, m)
	return nil
}
func (f *fakeWriter) Write(b []byte) (int, error) { return len(b), nil }
func (f *fakeWriter) Close() error                { return nil }
func (f *fakeWriter) TsigStatus() error           { return nil }
func (f *fakeWriter) TsigTimersOnly(bool)         {}
func (f *fakeWriter) Hijack()                     {}

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	r, err := dns.NewRR(s)
	if err != nil {
		t.Fatalf("dns.NewRR(%q): %v", s, err)
	}
	return r
}

func TestServeSOAFirstAndLast(t *testing.T) {
	z := zone.New("example.com.", dns.ClassINET)
	z.Insert(mustRR(t, "example.com. 3600 IN SOA ns1.example.com. hostmaster.example.com. 10 7200 3600 1209600 3600"))
	z.Insert(mustRR(t, "a1.example.com. 60 IN A 192.0.2.1"))
	z.Insert(mustRR(t, "a2.example.com. 60 IN A 192.0.2.2"))
	z.Insert(mustRR(t, "a3.example.com. 60 IN A 192.0.2.3"))

	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeAXFR)

	w := &fakeWriter{}
	if err := Serve(w, req, z); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	if len(w.written) != 5 {
		t.Fatalf("wrote %d messages, want 5 (SOA, A1, A2, A3, SOA)", len(w.written))
	}
	if w.written[0].Answer[0].Header().Rrtype != dns.TypeSOA {
		t.Fatal("first message must carry the SOA")
	}
	if w.written[len(w.written)-1].Answer[0].Header().Rrtype != dns.TypeSOA {
		t.Fatal("last message must carry the SOA")
	}
	for _, m := range w.written {
		if len(m.Answer) != 1 {
			t.Fatalf("each message must carry exactly one RR, got %d", len(m.Answer))
		}
	}
}
