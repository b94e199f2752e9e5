package demo

import (
	"fmt"
	"strings"

	sdk "github.com/dnsimple/dnsimple-go/dnsimple"
)

// AccountID is the id of the demo account.
const AccountID int64 = 424242

// SeedZones are the zone names the demo server starts with.
var SeedZones = []string{
	"acme-rockets.dev", "bluebird.example", "copperkettle.org", "driftwood.io",
	"emberlane.net", "fernhill.app", "granite.tools", "harbourlights.com",
	"ironbark.dev", "juniperfield.org", "kestrel.example", "lanternworks.io",
}

func (s *Server) seed() {
	s.zones = make(map[string]*zoneState)
	for i, name := range SeedZones {
		zs := s.addZoneLocked(name, i%4 != 0)
		txt := "v=spf1 include:_spf.example.net ip4:192.0.2.42 ~all"
		if i%5 == 0 {
			txt += " pad=" + strings.Repeat("0123456789abcdef", 6)
		}
		if i%3 != 2 {
			zs.domain.State = "registered"
			zs.domain.AutoRenew = i%2 == 0
			zs.domain.PrivateWhois = i%4 == 1
			zs.domain.ExpiresAt = fmt.Sprintf("2027-%02d-01T00:00:00Z", 1+i%12)
		}
		for _, rec := range []sdk.ZoneRecord{
			{Type: "NS", Content: "ns1.dnsimple.com", TTL: 3600, SystemRecord: true},
			{Type: "A", Content: fmt.Sprintf("203.0.113.%d", 10+i), TTL: 3600},
			{Type: "CNAME", Name: "www", Content: name, TTL: 3600},
			{Type: "MX", Content: "mail." + name, TTL: 3600, Priority: 10},
			{Type: "TXT", Content: txt, TTL: 3600},
			{Type: "TXT", Name: "_acme-challenge", Content: fmt.Sprintf("challenge-token-%02d", i), TTL: 600},
		} {
			s.nextID++
			rec.ID = s.nextID
			rec.ZoneID = name
			rec.Regions = []string{"global"}
			rec.CreatedAt = "2026-01-15T12:00:00Z"
			rec.UpdatedAt = rec.CreatedAt
			zs.records = append(zs.records, rec)
		}
	}
}

// addZoneLocked creates a zone. Caller holds mu or is constructing s.
func (s *Server) addZoneLocked(name string, active bool) *zoneState {
	if zs, ok := s.zones[name]; ok {
		return zs
	}
	s.nextZone++
	zs := &zoneState{
		zone: sdk.Zone{
			ID:        s.nextZone,
			AccountID: s.account.ID,
			Name:      name,
			Active:    active,
			CreatedAt: "2026-01-15T12:00:00Z",
			UpdatedAt: "2026-01-15T12:00:00Z",
		},
		// Zones added later are hosted only, without a registration.
		domain: sdk.Domain{
			ID:          s.nextZone,
			AccountID:   s.account.ID,
			Name:        name,
			UnicodeName: name,
			State:       "hosted",
			CreatedAt:   "2026-01-15T12:00:00Z",
			UpdatedAt:   "2026-01-15T12:00:00Z",
		},
	}
	s.zones[name] = zs
	return zs
}

