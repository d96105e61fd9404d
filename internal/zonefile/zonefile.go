// Package zonefile loads a zone from a text zone file into a zone.Zone.
// This is glue, not in-scope core (spec.md §1/§6 treats "reading zones
// from a directory of text files" as an external collaborator) — it
// exists only so cmd/authdnsd can exercise the engine end to end.
// Grounded on plugins/authoritative/authoritative.go's LoadZone and
// detectOrigin, which scan for a leading $ORIGIN and then feed the file
// to dns.NewZoneParser.
package zonefile

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"authdns/internal/zone"

	"github.com/miekg/dns"
)

// Load parses path as a zone file and returns the resulting zone.Zone.
// The origin is taken from the file's first $ORIGIN directive.
func Load(path string) (*zone.Zone, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	origin, err := detectOrigin(f)
	if err != nil {
		return nil, err
	}
	origin = dns.Fqdn(strings.ToLower(origin))

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	zp := dns.NewZoneParser(f, origin, path)

	z := zone.New(origin, dns.ClassINET)
	for r, ok := zp.Next(); ok; r, ok = zp.Next() {
		z.Insert(r)
	}
	if err := zp.Err(); err != nil {
		return nil, err
	}
	return z, nil
}

// detectOrigin scans the whole zone file for the first $ORIGIN line; if
// none is found, returns an error.
func detectOrigin(r io.Reader) (string, error) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if strings.HasPrefix(line, "$ORIGIN") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				return parts[1], nil
			}
			return "", errors.New("zonefile: malformed $ORIGIN line")
		}
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	return "", errors.New("zonefile: $ORIGIN not found")
}
