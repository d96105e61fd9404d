package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"authdns/internal/zone"

	"github.com/miekg/dns"
)

func TestServeStatusReportsZones(t *testing.T) {
	store := zone.NewStore()
	z := zone.New("example.com.", dns.ClassINET)
	soa, err := dns.NewRR("example.com. 3600 IN SOA ns1.example.com. hostmaster.example.com. 10 3600 600 86400 3600")
	if err != nil {
		t.Fatalf("NewRR: %v", err)
	}
	z.Insert(soa)
	if err := store.Add(z); err != nil {
		t.Fatalf("Add: %v", err)
	}

	h := New(store)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	h.serveStatus(rec, req)

	var st status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.ZoneCount != 1 {
		t.Fatalf("ZoneCount = %d, want 1", st.ZoneCount)
	}
	if st.Zones[0].Apex != "example.com." || st.Zones[0].Serial != 10 {
		t.Fatalf("unexpected zone status: %+v", st.Zones[0])
	}
}
