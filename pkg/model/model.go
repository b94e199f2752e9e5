// Package model defines the DNS entities shared by the gateway, the cache
// and both front ends.
package model

import (
	"fmt"
	"strings"
	"time"
)

// ZoneStatus is the lifecycle state of a zone as reported by the provider.
type ZoneStatus string

const (
	ZoneActive       ZoneStatus = "active"
	ZoneInactive     ZoneStatus = "inactive"
	ZoneExpired      ZoneStatus = "expired"
	ZoneTransferring ZoneStatus = "transferring"
)

// Account identifies the authenticated tenant.
type Account struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Email  string `json:"email,omitempty" yaml:"email,omitempty"`
	Active bool   `json:"active" yaml:"active"`
}

// Zone is a DNS domain under management. It belongs to exactly one account.
type Zone struct {
	ID        string     `json:"id" yaml:"id"`
	AccountID string     `json:"account_id" yaml:"account_id"`
	Name      string     `json:"name" yaml:"name"`
	Status    ZoneStatus `json:"status" yaml:"status"`
}

// Domain is the registration side of a name: whether it is registered
// through the provider or only hosted there, and when it expires. Hosted
// domains have no expiry.
type Domain struct {
	ID           string     `json:"id" yaml:"id"`
	AccountID    string     `json:"account_id" yaml:"account_id"`
	Name         string     `json:"name" yaml:"name"`
	UnicodeName  string     `json:"unicode_name,omitempty" yaml:"unicode_name,omitempty"`
	State        string     `json:"state" yaml:"state"`
	AutoRenew    bool       `json:"auto_renew" yaml:"auto_renew"`
	PrivateWhois bool       `json:"private_whois" yaml:"private_whois"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// Record is a single resource record within a zone.
//
// Name is relative to the zone ("" is the apex). ID is assigned by the
// provider and is empty until the record has been created remotely.
type Record struct {
	ID       string     `json:"id,omitempty" yaml:"id,omitempty"`
	ZoneID   string     `json:"zone_id" yaml:"zone_id"`
	Name     string     `json:"name" yaml:"name"`
	Type     RecordType `json:"type" yaml:"type"`
	Content  string     `json:"content" yaml:"content"`
	TTL      int        `json:"ttl" yaml:"ttl"`
	Priority int        `json:"priority,omitempty" yaml:"priority,omitempty"`
	System   bool       `json:"system,omitempty" yaml:"system,omitempty"`
}

// SameContent reports whether two records carry the same DNS data.
// Identifiers and the zone are not compared.
func (r Record) SameContent(o Record) bool {
	return strings.EqualFold(r.Name, o.Name) &&
		r.Type == o.Type &&
		r.Content == o.Content &&
		r.TTL == o.TTL &&
		r.Priority == o.Priority
}

// DisplayName returns the record name with "@" for the apex.
func (r Record) DisplayName() string {
	if r.Name == "" {
		return "@"
	}
	return r.Name
}

// FQDN returns the fully qualified record name (with trailing dot) within zone.
func (r Record) FQDN(zone string) string {
	zone = strings.TrimSuffix(zone, ".")
	if r.Name == "" || r.Name == "@" {
		return zone + "."
	}
	return r.Name + "." + zone + "."
}

// String returns a short human-readable form used in diagnostics.
func (r Record) String() string {
	id := r.ID
	if id == "" {
		id = "new"
	}
	return fmt.Sprintf("%s %s (%s)", r.Type, r.DisplayName(), id)
}

// NormalizeName maps user input for a record name to the relative form used
// by Record: "@" and the zone apex become "", fully qualified names inside the
// zone are made relative.
func NormalizeName(name, zone string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimSuffix(name, ".")
	zone = strings.TrimSuffix(zone, ".")
	if name == "@" || strings.EqualFold(name, zone) {
		return ""
	}
	if zone != "" && strings.HasSuffix(strings.ToLower(name), "."+strings.ToLower(zone)) {
		return name[:len(name)-len(zone)-1]
	}
	return name
}

// Draft describes a record to be created.
type Draft struct {
	Name     string     `json:"name" yaml:"name"`
	Type     RecordType `json:"type" yaml:"type"`
	Content  string     `json:"content" yaml:"content"`
	TTL      int        `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	Priority *int       `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Record converts the draft into an uncommitted record in zoneID.
func (d Draft) Record(zoneID string) Record {
	r := Record{
		ZoneID:  zoneID,
		Name:    d.Name,
		Type:    d.Type,
		Content: d.Content,
		TTL:     d.TTL,
	}
	if d.Priority != nil {
		r.Priority = *d.Priority
	}
	return r
}

// Patch is a partial update of a record. Nil fields are left unchanged.
type Patch struct {
	Name     *string `json:"name,omitempty" yaml:"name,omitempty"`
	Content  *string `json:"content,omitempty" yaml:"content,omitempty"`
	TTL      *int    `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	Priority *int    `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Content == nil && p.TTL == nil && p.Priority == nil
}

// Apply returns r with the patch applied.
func (p Patch) Apply(r Record) Record {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Content != nil {
		r.Content = *p.Content
	}
	if p.TTL != nil {
		r.TTL = *p.TTL
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	return r
}

// Merge returns a patch where fields set in o override fields in p.
func (p Patch) Merge(o Patch) Patch {
	if o.Name != nil {
		p.Name = o.Name
	}
	if o.Content != nil {
		p.Content = o.Content
	}
	if o.TTL != nil {
		p.TTL = o.TTL
	}
	if o.Priority != nil {
		p.Priority = o.Priority
	}
	return p
}

// Diff returns the patch that turns from into to.
func Diff(from, to Record) Patch {
	var p Patch
	if from.Name != to.Name {
		name := to.Name
		p.Name = &name
	}
	if from.Content != to.Content {
		content := to.Content
		p.Content = &content
	}
	if from.TTL != to.TTL {
		ttl := to.TTL
		p.TTL = &ttl
	}
	if from.Priority != to.Priority {
		prio := to.Priority
		p.Priority = &prio
	}
	return p
}

// String returns a pointer to s.
func String(s string) *string { return &s }

// Int returns a pointer to i.
func Int(i int) *int { return &i }
