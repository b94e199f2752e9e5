package view

import (
	"gitlab.bluewillows.net/root/zonedeck/internal/command"
	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/internal/syncer"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// Event is an input to the machine: a user action or the completion of
// background work.
type Event interface {
	event()
}

// User actions.
type (
	// Select opens the highlighted row.
	Select struct{}
	// Back leaves the current screen.
	Back struct{}
	// Edit opens the editor on the highlighted record.
	Edit struct{}
	// New opens the editor on a new record.
	New struct{}
	// Delete asks to delete the highlighted record.
	Delete struct{}
	// Confirm accepts the open prompt.
	Confirm struct{}
	// Cancel rejects the open prompt, or aborts a refresh in progress.
	Cancel struct{}
	// Up moves the cursor or the editor focus up.
	Up struct{}
	// Down moves the cursor or the editor focus down.
	Down struct{}
	// Refresh reloads the current list from the provider.
	Refresh struct{}
	// Search filters the record list. Empty text clears the filter.
	Search struct{ Text string }
	// SetField sets an editor or login field.
	SetField struct {
		Field string
		Value string
	}
	// Save commits the editor or submits the login prompt.
	Save struct{}
	// Retry commits the pending change of the highlighted record again.
	Retry struct{}
	// Discard asks to drop the local change of the highlighted record.
	Discard struct{}
	// Resolve settles the conflict of the highlighted record.
	Resolve struct{ Resolution store.Resolution }
	// Quit ends the session.
	Quit struct{}
)

// Completions of background work.
type (
	// AccountLoaded carries the resolved account.
	AccountLoaded struct {
		Account model.Account
		Err     error
	}
	// ZonesLoaded carries the zone list of an account.
	ZonesLoaded struct {
		AccountID string
		Zones     []model.Zone
		Err       error
	}
	// RefreshDone reports a finished records load or refresh.
	RefreshDone struct {
		ZoneID string
		Result *syncer.Result
		Err    error
	}
	// CommitDone reports a finished mutation.
	CommitDone struct {
		Outcome command.Outcome
		ticket  uint64
	}
	// StoreChanged reports a store change in the watched scope.
	StoreChanged struct {
		Event store.Event
		sub   *store.Subscription
	}
	// AuthDone reports the result of a login attempt.
	AuthDone struct {
		Account model.Account
		Err     error
	}
	// BackgroundRefresh reports a refresh the poller made on its own.
	BackgroundRefresh struct {
		ZoneID string
		Result *syncer.Result
		Err    error
	}
)

func (Select) event()        {}
func (Back) event()          {}
func (Edit) event()          {}
func (New) event()           {}
func (Delete) event()        {}
func (Confirm) event()       {}
func (Cancel) event()        {}
func (Up) event()            {}
func (Down) event()          {}
func (Refresh) event()       {}
func (Search) event()        {}
func (SetField) event()      {}
func (Save) event()          {}
func (Retry) event()         {}
func (Discard) event()       {}
func (Resolve) event()       {}
func (Quit) event()          {}
func (AccountLoaded) event() {}
func (ZonesLoaded) event()   {}
func (RefreshDone) event()   {}
func (CommitDone) event()    {}
func (StoreChanged) event()  {}
func (AuthDone) event()      {}

func (BackgroundRefresh) event() {}
