package model

import (
	"fmt"
	"strings"
)

// RecordType represents the type of a DNS record.
type RecordType string

const (
	RecordTypeA     RecordType = "A"
	RecordTypeAAAA  RecordType = "AAAA"
	RecordTypeCNAME RecordType = "CNAME"
	RecordTypeALIAS RecordType = "ALIAS"
	RecordTypeMX    RecordType = "MX"
	RecordTypeTXT   RecordType = "TXT"
	RecordTypeNS    RecordType = "NS"
	RecordTypeSRV   RecordType = "SRV"
	RecordTypeCAA   RecordType = "CAA"
	RecordTypePTR   RecordType = "PTR"
	RecordTypeSOA   RecordType = "SOA"
)

var knownTypes = []RecordType{
	RecordTypeA, RecordTypeAAAA, RecordTypeCNAME, RecordTypeALIAS, RecordTypeMX,
	RecordTypeTXT, RecordTypeNS, RecordTypeSRV, RecordTypeCAA, RecordTypePTR, RecordTypeSOA,
}

// RecordTypes returns every record type the client knows about.
func RecordTypes() []RecordType {
	out := make([]RecordType, len(knownTypes))
	copy(out, knownTypes)
	return out
}

// ParseRecordType parses a record type case-insensitively.
func ParseRecordType(s string) (RecordType, error) {
	t := RecordType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range knownTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown record type %q", s)
}

// UsesPriority reports whether records of this type carry a priority field.
func (t RecordType) UsesPriority() bool {
	return t == RecordTypeMX || t == RecordTypeSRV
}

// RecordState is the synchronization state of a cached record.
type RecordState string

const (
	// StateClean means the local copy matches the last known remote value.
	StateClean RecordState = "clean"
	// StateDirty means the local copy has uncommitted edits.
	StateDirty RecordState = "dirty"
	// StatePendingCreate means the record does not exist remotely yet.
	StatePendingCreate RecordState = "pending-create"
	// StatePendingDelete means a delete has been staged but not confirmed.
	StatePendingDelete RecordState = "pending-delete"
	// StateConflict means the remote value diverged from the basis of a local edit.
	StateConflict RecordState = "conflict"
)

// Pending reports whether the state carries an uncommitted local change.
func (s RecordState) Pending() bool {
	return s != StateClean
}
