// Package zonefile converts between cached records and RFC 1035 resource
// records using github.com/miekg/dns.
//
// Records use the provider's content conventions: the priority of MX and
// SRV records is carried separately, SRV content is "weight port target",
// and CAA content is "flag tag value". Host names may be given with or
// without the trailing dot.
//
// The same conversion backs three features:
//
//   - local validation of record content before anything is sent
//   - zone export in BIND format
//   - import of BIND zone files as record drafts
package zonefile
