package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Printer writes command results in the selected format. Tables are for
// people; json and yaml carry the full value for scripts.
type Printer struct {
	w      io.Writer
	format string
}

// NewPrinter validates format and returns a printer writing to w.
func NewPrinter(w io.Writer, format string) (*Printer, error) {
	switch format {
	case FormatTable, FormatJSON, FormatYAML:
	default:
		return nil, model.Validationf("--output", "unknown format %q (must be table, json, or yaml)", format)
	}
	return &Printer{w: w, format: format}, nil
}

// Structured reports whether values are printed as json or yaml.
func (p *Printer) Structured() bool {
	return p.format != FormatTable
}

// Value prints v as json or yaml, or calls table for the table format.
func (p *Printer) Value(v any, table func(t *Table)) error {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	t := &Table{}
	table(t)
	_, err := io.WriteString(p.w, t.String())
	return err
}

// Line prints a human message. It is skipped for structured formats.
func (p *Printer) Line(format string, args ...any) {
	if p.Structured() {
		return
	}
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Table is a column-aligned text table. Columns are separated by two
// spaces and sized by display width.
type Table struct {
	rows [][]string
}

// Row adds one row.
func (t *Table) Row(cols ...string) {
	t.rows = append(t.rows, cols)
}

func (t *Table) String() string {
	var widths []int
	for _, row := range t.rows {
		for j, c := range row {
			if j >= len(widths) {
				widths = append(widths, 0)
			}
			widths[j] = max(widths[j], lipgloss.Width(c))
		}
	}
	var b strings.Builder
	for _, row := range t.rows {
		cells := make([]string, len(row))
		for j, c := range row {
			cells[j] = lipgloss.NewStyle().Width(widths[j] + 2).Render(c)
		}
		b.WriteString(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " "))
		b.WriteByte('\n')
	}
	return b.String()
}

func zonesTable(zones []model.Zone) func(*Table) {
	return func(t *Table) {
		t.Row("NAME", "STATUS", "ID")
		for _, z := range zones {
			t.Row(z.Name, string(z.Status), z.ID)
		}
	}
}

// recordView is the printed shape of a record.
type recordView struct {
	ID        string            `json:"id" yaml:"id"`
	Key       string            `json:"key" yaml:"key"`
	Name      string            `json:"name" yaml:"name"`
	FQDN      string            `json:"fqdn" yaml:"fqdn"`
	Type      model.RecordType  `json:"type" yaml:"type"`
	Content   string            `json:"content" yaml:"content"`
	TTL       int               `json:"ttl" yaml:"ttl"`
	Priority  *int              `json:"priority,omitempty" yaml:"priority,omitempty"`
	System    bool              `json:"system,omitempty" yaml:"system,omitempty"`
	State     model.RecordState `json:"state" yaml:"state"`
	LastError string            `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

func newRecordView(zone model.Zone, e store.Entry) recordView {
	r := e.Record
	v := recordView{
		ID:        r.ID,
		Key:       e.Key,
		Name:      r.DisplayName(),
		FQDN:      r.FQDN(zone.Name),
		Type:      r.Type,
		Content:   r.Content,
		TTL:       r.TTL,
		System:    r.System,
		State:     e.State,
		LastError: e.LastError,
	}
	if r.Type.UsesPriority() {
		v.Priority = model.Int(r.Priority)
	}
	return v
}

func recordsTable(views []recordView) func(*Table) {
	return func(t *Table) {
		t.Row("ID", "NAME", "TYPE", "CONTENT", "TTL", "PRIO", "STATE")
		for _, v := range views {
			prio := ""
			if v.Priority != nil {
				prio = strconv.Itoa(*v.Priority)
			}
			id := v.ID
			if id == "" {
				id = v.Key
			}
			name := v.Name
			if v.System {
				name += " (system)"
			}
			t.Row(id, name, string(v.Type), v.Content, strconv.Itoa(v.TTL), prio, string(v.State))
		}
	}
}
