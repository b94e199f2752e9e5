package tui

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gitlab.bluewillows.net/root/zonedeck/internal/command"
	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/internal/syncer"
	"gitlab.bluewillows.net/root/zonedeck/internal/view"
	"gitlab.bluewillows.net/root/zonedeck/providers/demo"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestListEvents(t *testing.T) {
	records := view.Snapshot{Screen: view.ScreenRecordList}
	zones := view.Snapshot{Screen: view.ScreenZoneList}
	tests := []struct {
		name string
		snap view.Snapshot
		msg  tea.KeyMsg
		want []view.Event
	}{
		{"down", records, runes("j"), []view.Event{view.Down{}}},
		{"up arrow", zones, tea.KeyMsg{Type: tea.KeyUp}, []view.Event{view.Up{}}},
		{"open", zones, tea.KeyMsg{Type: tea.KeyEnter}, []view.Event{view.Select{}}},
		{"back", zones, tea.KeyMsg{Type: tea.KeyEsc}, []view.Event{view.Back{}}},
		{"edit", records, runes("e"), []view.Event{view.Edit{}}},
		{"edit only on records", zones, runes("e"), nil},
		{"delete", records, runes("d"), []view.Event{view.Delete{}}},
		{"keep remote", records, runes("T"), []view.Event{view.Resolve{Resolution: store.KeepRemote}}},
		{"quit", zones, runes("q"), []view.Event{view.Quit{}}},
		{"esc cancels a load", view.Snapshot{Screen: view.ScreenRecordList, Loading: true}, tea.KeyMsg{Type: tea.KeyEsc}, []view.Event{view.Cancel{}}},
		{"esc clears filter", view.Snapshot{Screen: view.ScreenRecordList, Filter: "mx"}, tea.KeyMsg{Type: tea.KeyEsc}, []view.Event{view.Search{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := listEvents(tt.msg, tt.snap); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestConfirmEvents(t *testing.T) {
	if got := confirmEvents(runes("y")); !reflect.DeepEqual(got, []view.Event{view.Confirm{}}) {
		t.Errorf("expected confirm, got %v", got)
	}
	if got := confirmEvents(tea.KeyMsg{Type: tea.KeyEsc}); !reflect.DeepEqual(got, []view.Event{view.Cancel{}}) {
		t.Errorf("expected cancel, got %v", got)
	}
	if got := confirmEvents(runes("x")); got != nil {
		t.Errorf("expected nothing, got %v", got)
	}
}

func headless() Option {
	return func(o *options) { o.headless = true }
}

// session runs a Program without a terminal against the demo provider.
type session struct {
	t    *testing.T
	prog *Program
	done chan error

	mu   sync.Mutex
	snap view.Snapshot
}

func newSession(t *testing.T) *session {
	t.Helper()
	server := demo.NewServer()
	gw := demo.NewGateway(server, "demo")
	engine := syncer.New(gw, store.New())
	svc := &view.Services{Engine: engine, Core: command.New(gw, engine), Tokens: gw}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{t: t, done: make(chan error, 1)}
	s.prog = New(ctx, svc, headless())
	s.prog.model.observe = func(snap view.Snapshot) {
		s.mu.Lock()
		s.snap = snap
		s.mu.Unlock()
	}
	go func() { s.done <- s.prog.Run() }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			t.Error("program did not stop")
		}
		svc.Core.Wait()
	})
	return s
}

func (s *session) key(msgs ...tea.KeyMsg) {
	for _, msg := range msgs {
		s.prog.prog.Send(msg)
	}
}

func (s *session) waitFor(what string, cond func(view.Snapshot) bool) view.Snapshot {
	s.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		snap := s.snap
		s.mu.Unlock()
		if cond(snap) {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.t.Fatalf("timed out waiting for %s", what)
	return view.Snapshot{}
}

func TestProgramBrowsesAndSearches(t *testing.T) {
	s := newSession(t)
	s.waitFor("account", func(v view.Snapshot) bool {
		return v.Screen == view.ScreenAccountList && !v.Loading && len(v.Rows) == 1
	})

	s.key(tea.KeyMsg{Type: tea.KeyEnter})
	zones := s.waitFor("zones", func(v view.Snapshot) bool {
		return v.Screen == view.ScreenZoneList && !v.Loading && len(v.Rows) > 0
	})
	idx := -1
	for i, row := range zones.Rows {
		if row.Columns[0] == "driftwood.io" {
			idx = i
		}
	}
	if idx < 0 {
		t.Fatal("expected driftwood.io to be listed")
	}
	for i := zones.Cursor; i < idx; i++ {
		s.key(runes("j"))
	}
	s.key(tea.KeyMsg{Type: tea.KeyEnter})
	s.waitFor("records", func(v view.Snapshot) bool {
		return v.Screen == view.ScreenRecordList && !v.Loading && len(v.Rows) > 1
	})

	s.key(runes("/"), runes("_acme"))
	s.waitFor("filter", func(v view.Snapshot) bool { return v.Filter == "_acme" && len(v.Rows) == 1 })

	s.key(tea.KeyMsg{Type: tea.KeyEsc})
	s.waitFor("filter cleared", func(v view.Snapshot) bool { return v.Filter == "" && len(v.Rows) > 1 })

	s.key(runes("q"))
	select {
	case err := <-s.done:
		if err != nil {
			t.Errorf("expected a clean exit, got %v", err)
		}
		s.done <- err
	case <-time.After(5 * time.Second):
		t.Fatal("program did not quit")
	}
}

func TestProgramEditsThroughTextInput(t *testing.T) {
	s := newSession(t)
	s.waitFor("account", func(v view.Snapshot) bool {
		return v.Screen == view.ScreenAccountList && !v.Loading && len(v.Rows) == 1
	})
	s.key(tea.KeyMsg{Type: tea.KeyEnter})
	s.waitFor("zones", func(v view.Snapshot) bool {
		return v.Screen == view.ScreenZoneList && !v.Loading && len(v.Rows) > 0
	})
	s.key(tea.KeyMsg{Type: tea.KeyEnter})
	s.waitFor("records", func(v view.Snapshot) bool {
		return v.Screen == view.ScreenRecordList && !v.Loading && len(v.Rows) > 0
	})

	s.key(runes("n"))
	s.waitFor("editor", func(v view.Snapshot) bool { return v.Screen == view.ScreenRecordEditor && v.Editor != nil })

	s.key(runes("mail"))
	ed := s.waitFor("typed name", func(v view.Snapshot) bool {
		return v.Editor != nil && v.Editor.Fields[0].Value == "mail"
	})
	if ed.Editor.Focus != 0 {
		t.Errorf("expected focus on the name field, got %d", ed.Editor.Focus)
	}

	s.key(tea.KeyMsg{Type: tea.KeyTab})
	s.waitFor("next field", func(v view.Snapshot) bool { return v.Editor != nil && v.Editor.Focus == 1 })

	s.key(tea.KeyMsg{Type: tea.KeyEsc})
	s.waitFor("discard prompt", func(v view.Snapshot) bool { return v.Screen == view.ScreenConfirm })
	s.key(runes("y"))
	s.waitFor("records again", func(v view.Snapshot) bool { return v.Screen == view.ScreenRecordList })
}
