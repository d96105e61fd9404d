package notify

import (
	"net"
	"sync"
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

func TestNotifyZoneSkipsSelf(t *testing.T) {
	z := zone.New("example.com.", dns.ClassINET)
	z.Insert(mustRR(t, "example.com. 3600 IN SOA ns1.example.com. hostmaster.example.com. 10 7200 3600 1209600 3600"))
	z.Insert(mustRR(t, "example.com. 3600 IN NS ns1.example.com."))
	z.Insert(mustRR(t, "example.com. 3600 IN NS ns2.example.com."))
	z.Insert(mustRR(t, "ns1.example.com. 3600 IN A 192.0.2.1"))
	z.Insert(mustRR(t, "ns2.example.com. 3600 IN A 192.0.2.2"))
	s := zone.NewStore()
	if err := s.Add(z); err != nil {
		t.Fatalf("Add: %v", err)
	}

	e := NewEmitter(s, net.ParseIP("192.0.2.1"))
	var mu sync.Mutex
	var sentTo []string
	e.exchange = func(m *dns.Msg, addr string) error {
		mu.Lock()
		sentTo = append(sentTo, addr)
		mu.Unlock()
		return nil
	}

	if err := e.NotifyZone("example.com.", dns.ClassINET); err != nil {
		t.Fatalf("NotifyZone: %v", err)
	}

	if len(sentTo) != 1 || sentTo[0] != "192.0.2.2:53" {
		t.Fatalf("sent to %v, want exactly [192.0.2.2:53] (self filtered out)", sentTo)
	}
}

func TestNotifyZoneSwallowsSendErrors(t *testing.T) {
	z := zone.New("example.com.", dns.ClassINET)
	z.Insert(mustRR(t, "example.com. 3600 IN SOA ns1.example.com. hostmaster.example.com. 10 7200 3600 1209600 3600"))
	z.Insert(mustRR(t, "example.com. 3600 IN NS ns2.example.com."))
	z.Insert(mustRR(t, "ns2.example.com. 3600 IN A 192.0.2.2"))
	s := zone.NewStore()
	if err := s.Add(z); err != nil {
		t.Fatalf("Add: %v", err)
	}

	e := NewEmitter(s, net.ParseIP("192.0.2.1"))
	e.exchange = func(m *dns.Msg, addr string) error {
		return &net.OpError{Op: "dial", Err: errTimeout{}}
	}

	if err := e.NotifyZone("example.com.", dns.ClassINET); err != nil {
		t.Fatalf("NotifyZone must swallow per-target send errors, got %v", err)
	}
}

type errTimeout struct{}

func (errTimeout) Error() string   { return "timeout" }
func (errTimeout) Timeout() bool   { return true }
func (errTimeout) Temporary() bool { return true }
