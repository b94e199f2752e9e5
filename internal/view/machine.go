// Package view is the interactive front end as a pure state machine. It
// turns user and completion events into a new state plus background
// commands, and renders that state into a Snapshot. It performs no I/O of
// its own, so it can be driven headlessly.
package view

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gitlab.bluewillows.net/root/zonedeck/internal/command"
	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// Cmd is background work requested by the machine. It runs off the
// foreground loop and reports back with an event; a nil event is dropped.
type Cmd func(ctx context.Context) Event

type prompt struct {
	message   string
	under     Screen
	onConfirm func() []Cmd
	onCancel  func() []Cmd
}

type authState struct {
	token    string
	err      string
	busy     bool
	returnTo Screen
}

// Machine holds the interactive state.
type Machine struct {
	b      Backend
	st     *store.Store
	logger *slog.Logger

	screen  Screen
	account model.Account
	zones   []model.Zone
	zone    model.Zone
	cursors map[Screen]int
	filter  string
	loading bool
	status  string

	editor *EditSession
	ticket uint64
	prompt *prompt
	auth   *authState

	// session follows the account scope for as long as an account is
	// known; sub follows the open zone.
	session *store.Subscription
	sub     *store.Subscription
	// ended is set once the view reacted to the session ending.
	ended bool
	busy  map[string]int
	abort context.CancelFunc
}

// Option is a functional option for configuring the Machine.
type Option func(*Machine)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMachine creates a machine on the account list.
func NewMachine(b Backend, opts ...Option) *Machine {
	m := &Machine{
		b:       b,
		st:      b.Store(),
		logger:  slog.Default(),
		screen:  ScreenAccountList,
		cursors: make(map[Screen]int),
		busy:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Screen returns the current screen.
func (m *Machine) Screen() Screen {
	return m.screen
}

// Init returns the commands that load the initial screen.
func (m *Machine) Init() []Cmd {
	m.loading = true
	return []Cmd{m.loadAccount()}
}

// Close releases the store subscriptions.
func (m *Machine) Close() {
	m.unwatchZone()
	if m.session != nil {
		m.session.Close()
		m.session = nil
	}
	if m.abort != nil {
		m.abort()
		m.abort = nil
	}
}

// Update applies ev and returns the background work it triggers.
func (m *Machine) Update(ev Event) []Cmd {
	if m.screen == ScreenQuit {
		return nil
	}
	switch ev := ev.(type) {
	case Quit:
		return m.quit()
	case Up:
		m.move(-1)
	case Down:
		m.move(1)
	case Select:
		return m.selectRow()
	case Back:
		return m.back()
	case Edit:
		return m.edit()
	case New:
		return m.newRecord()
	case Delete:
		return m.deleteRecord()
	case Discard:
		return m.discard()
	case Retry:
		return m.retry()
	case Resolve:
		return m.resolve(ev.Resolution)
	case Confirm:
		return m.confirm(true)
	case Cancel:
		return m.cancel()
	case Refresh:
		return m.refresh()
	case Search:
		if m.screen == ScreenRecordList {
			m.filter = ev.Text
			m.cursors[ScreenRecordList] = 0
		}
	case SetField:
		m.setField(ev.Field, ev.Value)
	case Save:
		return m.save()

	case AccountLoaded:
		return m.accountLoaded(ev)
	case ZonesLoaded:
		return m.zonesLoaded(ev)
	case RefreshDone:
		return m.refreshDone(ev)
	case CommitDone:
		return m.commitDone(ev)
	case StoreChanged:
		return m.storeChanged(ev)
	case BackgroundRefresh:
		return m.backgroundRefresh(ev)
	case AuthDone:
		return m.authDone(ev)
	}
	return nil
}

func (m *Machine) quit() []Cmd {
	if m.screen == ScreenRecordEditor && m.editor != nil && m.editor.Dirty() && !m.editor.saving {
		m.ask("Discard unsaved changes and quit?", func() []Cmd {
			m.editor = nil
			return m.quit()
		}, nil)
		return nil
	}
	m.Close()
	m.screen = ScreenQuit
	return nil
}

func (m *Machine) move(delta int) {
	switch m.screen {
	case ScreenRecordEditor:
		m.editor.move(delta)
	case ScreenAccountList, ScreenZoneList, ScreenRecordList:
		n := len(m.rows())
		c := m.cursors[m.screen] + delta
		if c >= n {
			c = n - 1
		}
		if c < 0 {
			c = 0
		}
		m.cursors[m.screen] = c
	}
}

func (m *Machine) selectRow() []Cmd {
	switch m.screen {
	case ScreenAccountList:
		if m.account.ID == "" {
			return nil
		}
		return m.openZones()
	case ScreenZoneList:
		row, ok := m.selected()
		if !ok {
			return nil
		}
		for _, z := range m.zones {
			if z.ID == row.Key {
				return m.openRecords(z)
			}
		}
	case ScreenRecordList:
		return m.edit()
	}
	return nil
}

func (m *Machine) openZones() []Cmd {
	m.screen = ScreenZoneList
	m.status = ""
	m.loading = true
	if list, ok := m.st.Zones(m.account.ID); ok {
		m.zones = list.Zones
	}
	m.unwatchZone()
	return []Cmd{m.watchSession(), m.loadZones(false)}
}

func (m *Machine) openRecords(zone model.Zone) []Cmd {
	m.screen = ScreenRecordList
	m.zone = zone
	m.filter = ""
	m.status = ""
	m.cursors[ScreenRecordList] = 0
	m.loading = true
	return []Cmd{m.watchZone(zone.ID), m.loadRecords(false)}
}

func (m *Machine) back() []Cmd {
	switch m.screen {
	case ScreenZoneList:
		m.screen = ScreenAccountList
		m.status = ""
	case ScreenRecordList:
		m.abortRefresh()
		m.unwatchZone()
		m.screen = ScreenZoneList
		m.status = ""
		m.loading = false
		if list, ok := m.st.Zones(m.account.ID); ok {
			m.zones = list.Zones
		}
	case ScreenRecordEditor:
		if m.editor.Dirty() && !m.editor.saving {
			m.ask("Discard unsaved changes?", func() []Cmd {
				m.closeEditor()
				return nil
			}, nil)
			return nil
		}
		// A save in flight keeps running; only the editor goes away.
		m.closeEditor()
	case ScreenConfirm:
		return m.confirm(false)
	case ScreenAuthPrompt:
		return m.cancel()
	}
	return nil
}

func (m *Machine) closeEditor() {
	m.editor = nil
	m.screen = ScreenRecordList
}

func (m *Machine) selectedEntry() (store.Entry, bool) {
	if m.screen != ScreenRecordList {
		return store.Entry{}, false
	}
	row, ok := m.selected()
	if !ok {
		return store.Entry{}, false
	}
	entry, _, ok := m.st.Lookup(row.Key)
	return entry, ok
}

func (m *Machine) edit() []Cmd {
	entry, ok := m.selectedEntry()
	if !ok {
		return nil
	}
	switch {
	case entry.Record.System:
		m.status = entry.Record.String() + " is managed by the provider and cannot be edited"
		return nil
	case entry.State == model.StatePendingDelete:
		m.status = entry.Record.String() + " is pending deletion"
		return nil
	case entry.State == model.StateConflict && entry.RemoteGone:
		m.status = entry.Record.String() + " was deleted remotely: keep local to recreate it or keep remote to drop it"
		return nil
	}
	m.editor = newEditSession(m.zone, entry.Key, entry.Record, entry.Remote)
	m.screen = ScreenRecordEditor
	m.status = ""
	return nil
}

func (m *Machine) newRecord() []Cmd {
	if m.screen != ScreenRecordList {
		return nil
	}
	m.editor = newEditSession(m.zone, "", model.Record{ZoneID: m.zone.ID, Type: model.RecordTypeA}, nil)
	m.screen = ScreenRecordEditor
	m.status = ""
	return nil
}

func (m *Machine) deleteRecord() []Cmd {
	entry, ok := m.selectedEntry()
	if !ok {
		return nil
	}
	if entry.Record.System {
		m.status = entry.Record.String() + " is managed by the provider and cannot be deleted"
		return nil
	}
	key := entry.Key
	m.ask(fmt.Sprintf("Delete %s?", entry.Record.String()), func() []Cmd {
		return []Cmd{m.submit(command.Request{Kind: command.KindDelete, Key: key})}
	}, nil)
	return nil
}

func (m *Machine) discard() []Cmd {
	entry, ok := m.selectedEntry()
	if !ok || entry.State == model.StateClean {
		return nil
	}
	key := entry.Key
	m.ask(fmt.Sprintf("Discard local changes to %s?", entry.Record.String()), func() []Cmd {
		return []Cmd{m.submit(command.Request{Kind: command.KindDiscard, Key: key})}
	}, nil)
	return nil
}

func (m *Machine) retry() []Cmd {
	entry, ok := m.selectedEntry()
	if !ok || entry.State == model.StateClean || entry.State == model.StateConflict {
		return nil
	}
	return []Cmd{m.submit(command.Request{Kind: command.KindRetry, Key: entry.Key})}
}

func (m *Machine) resolve(res store.Resolution) []Cmd {
	entry, ok := m.selectedEntry()
	if !ok || entry.State != model.StateConflict {
		return nil
	}
	if res == store.Merge {
		return m.edit()
	}
	return []Cmd{m.submit(command.Request{Kind: command.KindResolve, Key: entry.Key, Resolution: res})}
}

// ask opens a confirmation prompt over the current screen.
func (m *Machine) ask(message string, onConfirm, onCancel func() []Cmd) {
	m.prompt = &prompt{message: message, under: m.screen, onConfirm: onConfirm, onCancel: onCancel}
	m.screen = ScreenConfirm
}

func (m *Machine) confirm(accepted bool) []Cmd {
	if m.screen != ScreenConfirm || m.prompt == nil {
		return nil
	}
	p := m.prompt
	m.prompt = nil
	m.screen = p.under
	fn := p.onCancel
	if accepted {
		fn = p.onConfirm
	}
	if fn == nil {
		return nil
	}
	return fn()
}

func (m *Machine) cancel() []Cmd {
	switch m.screen {
	case ScreenConfirm:
		return m.confirm(false)
	case ScreenRecordEditor:
		return m.back()
	case ScreenAuthPrompt:
		m.auth = nil
		m.unwatchZone()
		m.screen = ScreenAccountList
		m.status = "not signed in"
		return []Cmd{m.watchSession()}
	case ScreenRecordList, ScreenZoneList:
		if m.abort != nil {
			m.abortRefresh()
			m.loading = false
			m.status = "refresh aborted"
		}
	}
	return nil
}

func (m *Machine) abortRefresh() {
	if m.abort != nil {
		m.abort()
		m.abort = nil
	}
}

func (m *Machine) refresh() []Cmd {
	switch m.screen {
	case ScreenAccountList:
		m.loading = true
		return []Cmd{m.loadAccount()}
	case ScreenZoneList:
		m.loading = true
		return []Cmd{m.loadZones(true)}
	case ScreenRecordList:
		m.loading = true
		return []Cmd{m.loadRecords(true)}
	}
	return nil
}

func (m *Machine) setField(field, value string) {
	switch m.screen {
	case ScreenRecordEditor:
		if err := m.editor.Set(field, value); err != nil {
			m.editor.err = err.Error()
		}
	case ScreenAuthPrompt:
		if field == "token" {
			m.auth.token = value
			m.auth.err = ""
		}
	}
}

func (m *Machine) save() []Cmd {
	switch m.screen {
	case ScreenRecordEditor:
		es := m.editor
		if es.saving {
			return nil
		}
		req, err := es.request()
		if err != nil {
			es.err = err.Error()
			return nil
		}
		if req.Kind == command.KindUpdate && req.Patch.IsEmpty() {
			entry, _, ok := m.st.Lookup(es.Key)
			if !ok || entry.State == model.StateClean {
				m.closeEditor()
				return nil
			}
			// Nothing new to change, but the last commit failed.
			req = command.Request{Kind: command.KindRetry, Key: es.Key}
		}
		es.saving = true
		es.err = ""
		m.ticket++
		return []Cmd{m.submitTicket(req, m.ticket)}
	case ScreenAuthPrompt:
		if m.auth.busy {
			return nil
		}
		m.auth.busy = true
		m.auth.err = ""
		token := m.auth.token
		b := m.b
		return []Cmd{func(ctx context.Context) Event {
			acct, err := b.Login(ctx, token)
			return AuthDone{Account: acct, Err: err}
		}}
	}
	return nil
}

func (m *Machine) submit(req command.Request) Cmd {
	return m.submitTicket(req, 0)
}

func (m *Machine) submitTicket(req command.Request, ticket uint64) Cmd {
	if req.Key != "" {
		m.busy[req.Key]++
	}
	m.editorTicket(ticket)
	b := m.b
	return func(ctx context.Context) Event {
		ch := b.Submit(ctx, req)
		select {
		case out := <-ch:
			return CommitDone{Outcome: out, ticket: ticket}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Machine) editorTicket(ticket uint64) {
	if ticket != 0 && m.editor != nil {
		m.editor.ticket = ticket
	}
}

func (m *Machine) loadAccount() Cmd {
	b := m.b
	return func(ctx context.Context) Event {
		acct, err := b.Account(ctx)
		return AccountLoaded{Account: acct, Err: err}
	}
}

func (m *Machine) loadZones(force bool) Cmd {
	b := m.b
	accountID := m.account.ID
	return func(ctx context.Context) Event {
		zones, err := b.Zones(ctx, accountID, force)
		return ZonesLoaded{AccountID: accountID, Zones: zones, Err: err}
	}
}

// loadRecords fetches the zone's records. Cancel stops waiting for it; the
// fetch itself completes in the background and still updates the store.
func (m *Machine) loadRecords(force bool) Cmd {
	m.abortRefresh()
	b := m.b
	zone := m.zone
	ctx, cancel := context.WithCancel(context.Background())
	m.abort = cancel
	return func(parent context.Context) Event {
		stop := context.AfterFunc(parent, cancel)
		defer stop()
		defer cancel()
		if force {
			result, err := b.Refresh(ctx, zone)
			return RefreshDone{ZoneID: zone.ID, Result: result, Err: err}
		}
		_, err := b.EnsureFresh(ctx, zone)
		return RefreshDone{ZoneID: zone.ID, Err: err}
	}
}

// watchSession subscribes to the account scope unless already subscribed,
// and returns the command that waits for its next event.
func (m *Machine) watchSession() Cmd {
	scope := store.AccountScope(m.account.ID)
	if m.session != nil {
		if m.session.Scope() == scope {
			return nil
		}
		m.session.Close()
	}
	m.session = m.b.Watch(scope)
	return waitStore(m.session)
}

// watchZone moves the zone subscription to zoneID.
func (m *Machine) watchZone(zoneID string) Cmd {
	scope := store.ZoneScope(zoneID)
	if m.sub != nil {
		if m.sub.Scope() == scope {
			return nil
		}
		m.sub.Close()
	}
	m.sub = m.b.Watch(scope)
	return waitStore(m.sub)
}

func (m *Machine) unwatchZone() {
	if m.sub != nil {
		m.sub.Close()
		m.sub = nil
	}
}

func waitStore(sub *store.Subscription) Cmd {
	return func(ctx context.Context) Event {
		select {
		case ev := <-sub.C:
			return StoreChanged{Event: ev, sub: sub}
		case <-sub.Done():
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Machine) accountLoaded(ev AccountLoaded) []Cmd {
	m.loading = false
	if ev.Err != nil {
		return m.fail(ev.Err)
	}
	m.account = ev.Account
	m.ended = false
	m.status = ""
	return []Cmd{m.watchSession()}
}

func (m *Machine) zonesLoaded(ev ZonesLoaded) []Cmd {
	if ev.AccountID != m.account.ID {
		return nil
	}
	m.loading = false
	m.zones = ev.Zones
	m.clampCursor(ScreenZoneList)
	if ev.Err != nil {
		return m.fail(ev.Err)
	}
	m.status = ""
	return nil
}

func (m *Machine) refreshDone(ev RefreshDone) []Cmd {
	if ev.ZoneID != m.zone.ID {
		return nil
	}
	m.loading = false
	m.abort = nil
	m.clampCursor(ScreenRecordList)
	if ev.Err != nil {
		if m.screen == ScreenRecordList || m.screen == ScreenRecordEditor {
			return m.fail(ev.Err)
		}
		return nil
	}
	if ev.Result != nil && ev.Result.HasConflicts() {
		m.status = fmt.Sprintf("%d record(s) in conflict", ev.Result.Report.Conflicts)
	} else if m.screen == ScreenRecordList {
		m.status = ""
	}
	return nil
}

func (m *Machine) commitDone(ev CommitDone) []Cmd {
	out := ev.Outcome
	if key := out.Request.Key; key != "" {
		if m.busy[key]--; m.busy[key] <= 0 {
			delete(m.busy, key)
		}
	}

	es := m.editor
	if ev.ticket != 0 && es != nil && es.ticket == ev.ticket && m.screen == ScreenRecordEditor {
		es.saving = false
		if out.Err == nil {
			m.closeEditor()
			m.status = "saved " + out.Entry.Record.String()
			return nil
		}
		if out.Entry.Key != "" && es.Key == "" {
			// The draft was staged; saving again retries it.
			es.Key = out.Entry.Key
			es.Base = out.Entry.Record
		}
		if model.IsUnauthorized(out.Err) {
			return m.fail(out.Err)
		}
		es.err = errorLine(out.Err)
		return nil
	}

	// Detached: the store already holds the outcome and the row shows it.
	if out.Err != nil {
		return m.fail(out.Err)
	}
	m.clampCursor(ScreenRecordList)
	return nil
}

func (m *Machine) storeChanged(ev StoreChanged) []Cmd {
	var next Cmd
	switch {
	case ev.sub == nil:
		return nil
	case ev.sub == m.session:
		if list, ok := m.st.Zones(m.account.ID); ok {
			m.zones = list.Zones
			m.clampCursor(ScreenZoneList)
		}
		next = waitStore(m.session)
	case ev.sub == m.sub:
		m.clampCursor(ScreenRecordList)
		next = waitStore(m.sub)
	default:
		return nil
	}
	// Events can be coalesced, so the session is read from the store
	// rather than from the event reason.
	if m.sessionEnded() && !m.ended && m.screen != ScreenAuthPrompt {
		m.ended = true
		m.status = "session ended: sign in again"
		m.logger.Info("session ended, asking for a new token", slog.String("account", m.account.ID))
		m.enterAuth()
	}
	return []Cmd{next}
}

func (m *Machine) sessionEnded() bool {
	acct, ok := m.st.Account()
	return ok && m.account.ID != "" && acct.ID == m.account.ID && !acct.Active
}

// backgroundRefresh reports a refresh made by the poller rather than by
// the view.
func (m *Machine) backgroundRefresh(ev BackgroundRefresh) []Cmd {
	if model.IsUnauthorized(ev.Err) {
		if m.screen == ScreenAuthPrompt || m.ended {
			return nil
		}
		m.ended = true
		return m.fail(ev.Err)
	}
	if ev.ZoneID != m.zone.ID || m.screen != ScreenRecordList {
		return nil
	}
	m.clampCursor(ScreenRecordList)
	switch {
	case ev.Err != nil:
		m.status = "showing cached records: " + errorLine(ev.Err)
	case ev.Result != nil && ev.Result.HasConflicts():
		m.status = fmt.Sprintf("%d record(s) in conflict", ev.Result.Report.Conflicts)
	}
	return nil
}

func (m *Machine) authDone(ev AuthDone) []Cmd {
	if m.auth == nil {
		return nil
	}
	m.auth.busy = false
	if ev.Err != nil && ev.Account.ID == "" {
		m.auth.err = errorLine(ev.Err)
		return nil
	}
	returnTo := m.auth.returnTo
	m.auth = nil
	m.account = ev.Account
	m.ended = false
	m.status = "signed in as " + accountLabel(ev.Account)
	if ev.Err != nil {
		m.status = ev.Err.Error()
	}

	switch returnTo {
	case ScreenZoneList:
		m.screen = ScreenZoneList
		return m.openZones()
	case ScreenRecordList, ScreenRecordEditor, ScreenConfirm:
		m.screen = ScreenRecordList
		m.editor = nil
		m.loading = true
		return []Cmd{m.watchSession(), m.watchZone(m.zone.ID), m.loadRecords(true)}
	}
	m.screen = ScreenAccountList
	return []Cmd{m.watchSession()}
}

// fail reports err. Unauthorized moves to the login prompt; anything else
// is shown on the status line.
func (m *Machine) fail(err error) []Cmd {
	if model.IsUnauthorized(err) {
		m.status = errorLine(err)
		if m.screen != ScreenAuthPrompt {
			m.enterAuth()
		}
		return nil
	}
	m.status = errorLine(err)
	return nil
}

func (m *Machine) enterAuth() {
	returnTo := m.screen
	if returnTo == ScreenConfirm && m.prompt != nil {
		returnTo = m.prompt.under
		m.prompt = nil
	}
	m.abortRefresh()
	m.loading = false
	m.auth = &authState{returnTo: returnTo}
	m.screen = ScreenAuthPrompt
}

func (m *Machine) clampCursor(screen Screen) {
	n := 0
	switch screen {
	case ScreenZoneList:
		n = len(m.zones)
	case ScreenRecordList:
		n = len(m.recordRows())
	}
	if m.cursors[screen] >= n {
		m.cursors[screen] = max(n-1, 0)
	}
}

func (m *Machine) selected() (Row, bool) {
	rows := m.rows()
	c := m.cursors[m.screen]
	if c < 0 || c >= len(rows) {
		return Row{}, false
	}
	return rows[c], true
}

// errorLine renders err as "<kind>: <resource>: <message>".
func errorLine(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if kind := model.KindOf(err); kind != "" && !strings.HasPrefix(msg, string(kind)+":") {
		msg = string(kind) + ": " + msg
	}
	return msg
}

func accountLabel(a model.Account) string {
	if a.Name != "" {
		return a.Name
	}
	if a.Email != "" {
		return a.Email
	}
	return a.ID
}
