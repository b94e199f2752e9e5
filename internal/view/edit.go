package view

import (
	"fmt"
	"strconv"
	"strings"

	"gitlab.bluewillows.net/root/zonedeck/internal/command"
	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// Editor field names.
const (
	FieldName     = "name"
	FieldType     = "type"
	FieldContent  = "content"
	FieldTTL      = "ttl"
	FieldPriority = "priority"
)

var fieldOrder = []string{FieldName, FieldType, FieldContent, FieldTTL, FieldPriority}

var fieldLabels = map[string]string{
	FieldName:     "Name",
	FieldType:     "Type",
	FieldContent:  "Content",
	FieldTTL:      "TTL",
	FieldPriority: "Priority",
}

// EditSession is the private scratch copy of one record being edited. It
// never touches the store; Save turns it into a command request.
type EditSession struct {
	ZoneID string
	// Key is the record being edited, empty for a new record.
	Key string
	// Base is the value the edit started from.
	Base   model.Record
	Remote *model.Record
	values map[string]string
	focus  int
	err    string
	saving bool
	ticket uint64
}

func newEditSession(zone model.Zone, key string, base model.Record, remote *model.Record) *EditSession {
	es := &EditSession{ZoneID: zone.ID, Key: key, Base: base, values: recordValues(base)}
	if remote != nil {
		r := *remote
		es.Remote = &r
	}
	return es
}

func recordValues(r model.Record) map[string]string {
	v := map[string]string{
		FieldName:    r.DisplayName(),
		FieldType:    string(r.Type),
		FieldContent: r.Content,
		FieldTTL:     "",
	}
	if r.TTL > 0 {
		v[FieldTTL] = strconv.Itoa(r.TTL)
	}
	if r.Type.UsesPriority() {
		v[FieldPriority] = strconv.Itoa(r.Priority)
	}
	return v
}

// Set updates a field. Unknown fields are rejected.
func (es *EditSession) Set(field, value string) error {
	if _, ok := fieldLabels[field]; !ok {
		return fmt.Errorf("unknown field %q", field)
	}
	if field == FieldType && es.Key != "" && !strings.EqualFold(value, string(es.Base.Type)) {
		return fmt.Errorf("the type of an existing record cannot change")
	}
	es.values[field] = value
	es.err = ""
	return nil
}

// Dirty reports whether the session differs from where it started.
func (es *EditSession) Dirty() bool {
	base := recordValues(es.Base)
	for _, f := range fieldOrder {
		if strings.TrimSpace(es.values[f]) != base[f] {
			return true
		}
	}
	return false
}

// parse reads the fields into a record.
func (es *EditSession) parse() (model.Record, bool, error) {
	r := es.Base
	name := strings.TrimSpace(es.values[FieldName])
	if name == "@" {
		name = ""
	}
	r.Name = name

	typ, err := model.ParseRecordType(es.values[FieldType])
	if err != nil {
		return r, false, err
	}
	r.Type = typ
	r.Content = strings.TrimSpace(es.values[FieldContent])

	r.TTL = 0
	if s := strings.TrimSpace(es.values[FieldTTL]); s != "" {
		if r.TTL, err = strconv.Atoi(s); err != nil {
			return r, false, fmt.Errorf("ttl must be a number, got %q", s)
		}
	}

	hasPriority := false
	r.Priority = 0
	if s := strings.TrimSpace(es.values[FieldPriority]); s != "" {
		if r.Priority, err = strconv.Atoi(s); err != nil {
			return r, false, fmt.Errorf("priority must be a number, got %q", s)
		}
		hasPriority = true
	}
	return r, hasPriority, nil
}

// request turns the session into the command that saves it.
func (es *EditSession) request() (command.Request, error) {
	r, hasPriority, err := es.parse()
	if err != nil {
		return command.Request{}, err
	}
	switch {
	case es.Key == "":
		d := model.Draft{Name: r.Name, Type: r.Type, Content: r.Content, TTL: r.TTL}
		if hasPriority {
			d.Priority = model.Int(r.Priority)
		}
		return command.Request{Kind: command.KindCreate, ZoneID: es.ZoneID, Draft: d}, nil
	case es.Remote != nil:
		return command.Request{Kind: command.KindResolve, Key: es.Key, Resolution: store.Merge, Patch: model.Diff(*es.Remote, r)}, nil
	default:
		return command.Request{Kind: command.KindUpdate, Key: es.Key, Patch: model.Diff(es.Base, r)}, nil
	}
}

func (es *EditSession) view() *EditorView {
	ev := &EditorView{Focus: es.focus, Err: es.err, Saving: es.saving, Remote: es.Remote}
	switch {
	case es.Key == "":
		ev.Title = "New record"
	case es.Remote != nil:
		ev.Title = "Resolve conflict: " + es.Base.String()
	default:
		ev.Title = "Edit " + es.Base.String()
	}
	for _, f := range fieldOrder {
		ev.Fields = append(ev.Fields, Field{Name: f, Label: fieldLabels[f], Value: es.values[f]})
	}
	return ev
}

func (es *EditSession) move(delta int) {
	es.focus = (es.focus + delta + len(fieldOrder)) % len(fieldOrder)
}

// Focused returns the name of the focused field.
func (es *EditSession) Focused() string {
	return fieldOrder[es.focus]
}
