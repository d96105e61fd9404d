package zonefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/miekg/dns"
)

const sampleZone = `$ORIGIN example.com.
example.com. 3600 IN SOA ns1.example.com. hostmaster.example.com. 10 7200 3600 1209600 3600
example.com. 3600 IN NS ns1.example.com.
www.example.com. 3600 IN A 192.0.2.7
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "example.com.zone")
	if err := os.WriteFile(path, []byte(sampleZone), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	z, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if z.Apex != "example.com." {
		t.Fatalf("Apex = %q, want example.com.", z.Apex)
	}
	if z.SOA() == nil {
		t.Fatal("expected an SOA record")
	}
	if len(z.RRsOfType("www.example.com.", dns.ClassINET, dns.TypeA)) != 1 {
		t.Fatal("expected the A record at www.example.com.")
	}
}

func TestLoadMissingOrigin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noorigin.zone")
	if err := os.WriteFile(path, []byte("www.example.com. 3600 IN A 192.0.2.7\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a zone file missing $ORIGIN")
	}
}
