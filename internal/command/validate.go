package command

import (
	"errors"
	"strings"

	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
	"gitlab.bluewillows.net/root/zonedeck/pkg/zonefile"
)

// ValidateDraft checks a draft for zone before it is staged.
func ValidateDraft(zone model.Zone, draft model.Draft, siblings []store.Entry) error {
	resource := "record " + draft.Record(zone.ID).FQDN(zone.Name)
	if _, err := model.ParseRecordType(string(draft.Type)); err != nil {
		return model.Validationf(resource, "%v", err)
	}
	if draft.Type == model.RecordTypeSOA {
		return model.Validationf(resource, "SOA records are managed by the provider")
	}
	if draft.Type.UsesPriority() && draft.Priority == nil {
		return model.Validationf(resource, "%s records require a priority", draft.Type)
	}
	return ValidateRecord(zone, draft.Record(zone.ID), "", siblings)
}

// ValidateRecord checks the content shape of r and its placement among
// siblings, the other entries of the zone. key identifies r among the
// siblings and is empty for new records.
func ValidateRecord(zone model.Zone, r model.Record, key string, siblings []store.Entry) error {
	resource := "record " + r.FQDN(zone.Name)
	if r.TTL < 0 {
		return model.Validationf(resource, "ttl must not be negative")
	}
	if strings.TrimSpace(r.Content) == "" {
		return model.Validationf(resource, "content is required")
	}

	if r.Type == model.RecordTypeALIAS {
		if _, err := zonefile.HostName(r.Content); err != nil {
			return model.Validationf(resource, "%v", err)
		}
	} else if _, err := zonefile.ToRR(zone.Name, r); err != nil && !errors.Is(err, zonefile.ErrUnsupported) {
		return model.Validationf(resource, "%v", err)
	}

	if r.Type == model.RecordTypeCNAME && r.Name == "" {
		return model.Validationf(resource, "CNAME records are not allowed at the zone apex")
	}

	for _, e := range siblings {
		if e.Key == key || e.State == model.StatePendingDelete {
			continue
		}
		o := e.Record
		if !strings.EqualFold(o.Name, r.Name) {
			continue
		}
		if r.Type == model.RecordTypeCNAME || o.Type == model.RecordTypeCNAME {
			return model.Validationf(resource, "a CNAME cannot coexist with other records of the same name (%s)", o.String())
		}
		if o.SameContent(r) {
			return model.NewError(model.KindConflict, "validate", resource, errors.New("an identical record already exists"))
		}
	}
	return nil
}
