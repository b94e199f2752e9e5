package zonefile

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// MaxTXTSegment is the longest character-string a TXT record can carry.
const MaxTXTSegment = 255

// IsDomainName only checks label lengths.
const badNameChars = " \t\"();"

// ErrUnsupported is returned for record types that have no RFC 1035
// representation, such as provider-specific ALIAS records.
var ErrUnsupported = errors.New("record type has no zone file representation")

// ToRR converts r, a record of zone, to a dns.RR. The conversion fails for
// malformed content, which makes it the content check used before commits.
func ToRR(zone string, r model.Record) (dns.RR, error) {
	if r.TTL < 0 {
		return nil, fmt.Errorf("ttl must not be negative, got %d", r.TTL)
	}
	name := r.FQDN(zone)
	if _, ok := dns.IsDomainName(name); !ok || strings.ContainsAny(r.Name, badNameChars) {
		return nil, fmt.Errorf("invalid record name %q", r.Name)
	}
	rrtype, ok := dns.StringToType[string(r.Type)]
	if !ok || r.Type == model.RecordTypeALIAS {
		return nil, fmt.Errorf("%s: %w", r.Type, ErrUnsupported)
	}

	header := dns.RR_Header{
		Name:   name,
		Rrtype: rrtype,
		Class:  dns.ClassINET,
		Ttl:    uint32(r.TTL),
	}
	content := strings.TrimSpace(r.Content)

	switch r.Type {
	case model.RecordTypeA:
		ip := net.ParseIP(content)
		if ip == nil || ip.To4() == nil || strings.Contains(content, ":") {
			return nil, fmt.Errorf("invalid IPv4 address: %q", content)
		}
		return &dns.A{Hdr: header, A: ip.To4()}, nil

	case model.RecordTypeAAAA:
		ip := net.ParseIP(content)
		if ip == nil || !strings.Contains(content, ":") {
			return nil, fmt.Errorf("invalid IPv6 address: %q", content)
		}
		return &dns.AAAA{Hdr: header, AAAA: ip.To16()}, nil

	case model.RecordTypeCNAME:
		target, err := HostName(content)
		if err != nil {
			return nil, err
		}
		return &dns.CNAME{Hdr: header, Target: target}, nil

	case model.RecordTypeNS:
		ns, err := HostName(content)
		if err != nil {
			return nil, err
		}
		return &dns.NS{Hdr: header, Ns: ns}, nil

	case model.RecordTypePTR:
		ptr, err := HostName(content)
		if err != nil {
			return nil, err
		}
		return &dns.PTR{Hdr: header, Ptr: ptr}, nil

	case model.RecordTypeMX:
		prio, err := priority(r.Priority)
		if err != nil {
			return nil, err
		}
		target, err := HostName(content)
		if err != nil {
			return nil, err
		}
		return &dns.MX{Hdr: header, Preference: prio, Mx: target}, nil

	case model.RecordTypeSRV:
		prio, err := priority(r.Priority)
		if err != nil {
			return nil, err
		}
		fields := strings.Fields(content)
		if len(fields) != 3 {
			return nil, fmt.Errorf("invalid SRV content: expected 'weight port target', got %q", content)
		}
		weight, err := strconv.ParseUint(fields[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid SRV weight: %q", fields[0])
		}
		port, err := strconv.ParseUint(fields[1], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid SRV port: %q", fields[1])
		}
		target := dns.Fqdn(fields[2])
		if fields[2] != "." {
			if target, err = HostName(fields[2]); err != nil {
				return nil, err
			}
		}
		return &dns.SRV{
			Hdr:      header,
			Priority: prio,
			Weight:   uint16(weight),
			Port:     uint16(port),
			Target:   target,
		}, nil

	case model.RecordTypeTXT:
		txt, err := SplitTXT(r.Content)
		if err != nil {
			return nil, err
		}
		return &dns.TXT{Hdr: header, Txt: txt}, nil

	case model.RecordTypeCAA:
		// CAA format: flag tag value (e.g., `0 issue "letsencrypt.org"`)
		parts := strings.SplitN(content, " ", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid CAA format: expected 'flag tag value', got: %q", content)
		}
		flag, err := strconv.ParseUint(parts[0], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid CAA flag: %w", err)
		}
		tag := strings.ToLower(parts[1])
		switch tag {
		case "issue", "issuewild", "iodef", "issuevmc", "issuemail":
		default:
			return nil, fmt.Errorf("invalid CAA tag: %q", parts[1])
		}
		return &dns.CAA{
			Hdr:   header,
			Flag:  uint8(flag),
			Tag:   tag,
			Value: strings.Trim(parts[2], `"`),
		}, nil

	default:
		// Fall back to the zone file parser for anything else.
		text := fmt.Sprintf("%s %d IN %s %s", name, r.TTL, r.Type, content)
		rr, err := dns.NewRR(text)
		if err != nil {
			return nil, fmt.Errorf("invalid %s content: %w", r.Type, err)
		}
		if rr == nil {
			return nil, fmt.Errorf("invalid %s content: empty", r.Type)
		}
		return rr, nil
	}
}

// FromRR converts rr, found in zone, to a record draft.
func FromRR(zone string, rr dns.RR) (model.Draft, error) {
	header := rr.Header()
	origin := dns.Fqdn(zone)
	if !dns.IsSubDomain(origin, dns.Fqdn(header.Name)) {
		return model.Draft{}, fmt.Errorf("%s is outside zone %s", header.Name, zone)
	}
	typ, err := model.ParseRecordType(dns.TypeToString[header.Rrtype])
	if err != nil {
		return model.Draft{}, fmt.Errorf("unsupported record type: %s", dns.TypeToString[header.Rrtype])
	}
	draft := model.Draft{
		Name: model.NormalizeName(header.Name, zone),
		Type: typ,
		TTL:  int(header.Ttl),
	}

	switch v := rr.(type) {
	case *dns.A:
		draft.Content = v.A.String()
	case *dns.AAAA:
		draft.Content = v.AAAA.String()
	case *dns.CNAME:
		draft.Content = strings.TrimSuffix(v.Target, ".")
	case *dns.NS:
		draft.Content = strings.TrimSuffix(v.Ns, ".")
	case *dns.PTR:
		draft.Content = strings.TrimSuffix(v.Ptr, ".")
	case *dns.TXT:
		draft.Content = strings.Join(v.Txt, "")
	case *dns.MX:
		draft.Content = strings.TrimSuffix(v.Mx, ".")
		draft.Priority = model.Int(int(v.Preference))
	case *dns.SRV:
		draft.Content = fmt.Sprintf("%d %d %s", v.Weight, v.Port, strings.TrimSuffix(v.Target, "."))
		draft.Priority = model.Int(int(v.Priority))
	case *dns.CAA:
		draft.Content = fmt.Sprintf("%d %s %q", v.Flag, v.Tag, v.Value)
	default:
		return model.Draft{}, fmt.Errorf("unsupported record type: %s", dns.TypeToString[header.Rrtype])
	}
	return draft, nil
}

// HostName checks that s is a host name and returns it fully qualified.
func HostName(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("host name is empty")
	}
	if net.ParseIP(strings.TrimSuffix(s, ".")) != nil {
		return "", fmt.Errorf("expected a host name, got IP address %q", s)
	}
	fqdn := dns.Fqdn(s)
	if _, ok := dns.IsDomainName(fqdn); !ok || strings.ContainsAny(s, badNameChars) {
		return "", fmt.Errorf("invalid host name %q", s)
	}
	return fqdn, nil
}

// SplitTXT turns TXT content into character-strings. Quoted content is
// split on its quoted segments, each of which must fit in one string;
// unquoted content is chunked.
func SplitTXT(content string) ([]string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("TXT content is empty")
	}
	if !strings.HasPrefix(content, `"`) {
		var out []string
		for len(content) > MaxTXTSegment {
			out = append(out, content[:MaxTXTSegment])
			content = content[MaxTXTSegment:]
		}
		return append(out, content), nil
	}

	var (
		out     []string
		cur     strings.Builder
		quoted  bool
		escaped bool
	)
	for _, c := range content {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case quoted && c == '\\':
			escaped = true
		case c == '"':
			if quoted {
				if cur.Len() > MaxTXTSegment {
					return nil, fmt.Errorf("TXT segment longer than %d characters", MaxTXTSegment)
				}
				out = append(out, cur.String())
				cur.Reset()
			}
			quoted = !quoted
		case quoted:
			cur.WriteRune(c)
		case c == ' ' || c == '\t':
		default:
			return nil, fmt.Errorf("unexpected %q outside quotes in TXT content", c)
		}
	}
	if quoted || escaped {
		return nil, errors.New("unterminated quote in TXT content")
	}
	return out, nil
}

func priority(p int) (uint16, error) {
	if p < 0 || p > 65535 {
		return 0, fmt.Errorf("priority must be between 0 and 65535, got %d", p)
	}
	return uint16(p), nil
}
