package zonefile

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// DefaultTTL applies to imported records that carry no TTL.
const DefaultTTL = 3600

// Export writes records of zone in BIND zone file format. Records without
// a zone file representation are written as comments.
func Export(w io.Writer, zone string, records []model.Record) error {
	bw := bufio.NewWriter(w)
	origin := dns.Fqdn(zone)
	fmt.Fprintf(bw, "$ORIGIN %s\n", origin)
	for _, r := range records {
		rr, err := ToRR(zone, r)
		if err != nil {
			fmt.Fprintf(bw, "; %s %d IN %s %s ; %v\n", r.FQDN(zone), r.TTL, r.Type, r.Content, err)
			continue
		}
		fmt.Fprintln(bw, rr.String())
	}
	return bw.Flush()
}

// ParseResult is the outcome of reading a zone file.
type ParseResult struct {
	// Drafts are the records that can be created in the zone.
	Drafts []model.Draft

	// Skipped lists records left out, with the reason.
	Skipped []string
}

// Parse reads a BIND zone file for zone. SOA records and apex NS records
// are skipped because providers manage them. A syntax error fails the
// whole parse.
func Parse(r io.Reader, zone, filename string) (*ParseResult, error) {
	origin := dns.Fqdn(zone)
	zp := dns.NewZoneParser(r, origin, filename)
	zp.SetDefaultTTL(DefaultTTL)

	result := &ParseResult{}
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		header := rr.Header()
		switch {
		case header.Rrtype == dns.TypeSOA:
			result.Skipped = append(result.Skipped, "SOA "+header.Name+": managed by the provider")
			continue
		case header.Rrtype == dns.TypeNS && strings.EqualFold(header.Name, origin):
			result.Skipped = append(result.Skipped, "NS "+header.Name+": apex name servers are managed by the provider")
			continue
		}
		draft, err := FromRR(zone, rr)
		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("%s %s: %v", dns.TypeToString[header.Rrtype], header.Name, err))
			continue
		}
		result.Drafts = append(result.Drafts, draft)
	}
	if err := zp.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
