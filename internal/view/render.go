package view

import (
	"fmt"
	"strconv"
	"strings"

	"gitlab.bluewillows.net/root/zonedeck/internal/command"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

var (
	accountHeader = []string{"ID", "NAME", "EMAIL", "SESSION"}
	zoneHeader    = []string{"NAME", "STATUS", "ID"}
	recordHeader  = []string{"NAME", "TYPE", "CONTENT", "TTL", "PRIO", "STATE"}
)

// Snapshot renders the current state.
func (m *Machine) Snapshot() Snapshot {
	screen := m.screen
	under := screen
	if screen == ScreenConfirm && m.prompt != nil {
		under = m.prompt.under
	}
	if screen == ScreenAuthPrompt && m.auth != nil {
		under = m.auth.returnTo
	}

	snap := Snapshot{
		Screen:  screen,
		Account: m.account,
		Zone:    m.zone,
		Loading: m.loading,
		Status:  m.status,
		Under:   under,
	}

	switch under {
	case ScreenAccountList:
		snap.Title = "Accounts"
		snap.Header = accountHeader
		snap.Rows = m.accountRows()
	case ScreenZoneList:
		snap.Title = "Zones of " + accountLabel(m.account)
		snap.Header = zoneHeader
		snap.Rows = m.zoneRows()
		if list, ok := m.st.Zones(m.account.ID); ok {
			snap.Stale = list.Cursor.Stale
		}
	case ScreenRecordList, ScreenRecordEditor:
		snap.Title = "Records of " + m.zone.Name
		snap.Header = recordHeader
		snap.Rows = m.recordRows()
		snap.Filter = m.filter
		if zs, ok := m.st.Get(m.zone.ID); ok {
			snap.Stale = zs.Cursor.Stale
		}
	}
	snap.Cursor = m.cursors[under]
	if under == ScreenRecordEditor {
		snap.Cursor = m.cursors[ScreenRecordList]
	}

	if m.editor != nil && (under == ScreenRecordEditor || screen == ScreenRecordEditor) {
		snap.Editor = m.editor.view()
	}
	if screen == ScreenConfirm && m.prompt != nil {
		snap.Prompt = m.prompt.message
	}
	if screen == ScreenAuthPrompt && m.auth != nil {
		snap.Title = "Sign in"
		snap.Auth = &EditorView{
			Title:  "API token",
			Fields: []Field{{Name: "token", Label: "Token", Value: mask(m.auth.token)}},
			Err:    m.auth.err,
			Saving: m.auth.busy,
		}
	}
	return snap
}

// rows returns the rows of the current list screen.
func (m *Machine) rows() []Row {
	switch m.screen {
	case ScreenAccountList:
		return m.accountRows()
	case ScreenZoneList:
		return m.zoneRows()
	case ScreenRecordList, ScreenRecordEditor:
		return m.recordRows()
	}
	return nil
}

func (m *Machine) accountRows() []Row {
	if m.account.ID == "" {
		return nil
	}
	session := "active"
	if !m.account.Active {
		session = "signed out"
	}
	if acct, ok := m.st.Account(); ok && acct.ID == m.account.ID && !acct.Active {
		session = "signed out"
	}
	return []Row{{
		Key:     m.account.ID,
		Columns: []string{m.account.ID, m.account.Name, m.account.Email, session},
	}}
}

func (m *Machine) zoneRows() []Row {
	rows := make([]Row, 0, len(m.zones))
	for _, z := range m.zones {
		rows = append(rows, Row{Key: z.ID, Columns: []string{z.Name, string(z.Status), z.ID}})
	}
	return rows
}

func (m *Machine) recordRows() []Row {
	zs, ok := m.st.Get(m.zone.ID)
	if !ok {
		return nil
	}
	match := command.Match(m.filter)
	rows := make([]Row, 0, len(zs.Entries))
	for _, e := range zs.Entries {
		if !match(e.Record) {
			continue
		}
		r := e.Record
		prio := ""
		if r.Type.UsesPriority() {
			prio = strconv.Itoa(r.Priority)
		}
		ttl := ""
		if r.TTL > 0 {
			ttl = strconv.Itoa(r.TTL)
		}
		row := Row{
			Key:     e.Key,
			Columns: []string{r.DisplayName(), string(r.Type), r.Content, ttl, prio, string(e.State)},
			State:   e.State,
			Busy:    m.busy[e.Key] > 0,
		}
		switch {
		case e.LastError != "":
			row.Error = e.LastError
		case e.State == model.StateConflict && e.RemoteGone:
			row.Error = "deleted remotely"
		case e.State == model.StateConflict && e.Remote != nil:
			row.Error = fmt.Sprintf("remote is now %q", e.Remote.Content)
		}
		rows = append(rows, row)
	}
	return rows
}

func mask(token string) string {
	return strings.Repeat("*", len(token))
}
