package view

import (
	"context"
	"fmt"

	"gitlab.bluewillows.net/root/zonedeck/internal/command"
	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/internal/syncer"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// Backend is what the machine reads and mutates through. Every method may
// block on the network and is only called from commands.
type Backend interface {
	Store() *store.Store
	Account(ctx context.Context) (model.Account, error)
	Zones(ctx context.Context, accountID string, force bool) ([]model.Zone, error)
	EnsureFresh(ctx context.Context, zone model.Zone) (store.Snapshot, error)
	Refresh(ctx context.Context, zone model.Zone) (*syncer.Result, error)
	Submit(ctx context.Context, req command.Request) <-chan command.Outcome
	Login(ctx context.Context, token string) (model.Account, error)
	// Watch subscribes to scope. Watching a zone also schedules a
	// background refresh of it when a poller runs.
	Watch(scope store.Scope) *store.Subscription
}

// TokenSetter accepts a replacement credential.
type TokenSetter interface {
	SetToken(token string)
}

// Services is the Backend backed by the sync engine and the command core.
type Services struct {
	Engine *syncer.Engine
	Core   *command.Core
	Tokens TokenSetter
	// Poller refreshes watched zones in the background. Optional.
	Poller *syncer.Poller
	// SaveToken persists a credential the provider accepted. Optional.
	SaveToken func(token string) error
}

var _ Backend = (*Services)(nil)

func (s *Services) Store() *store.Store { return s.Engine.Store() }

func (s *Services) Account(ctx context.Context) (model.Account, error) {
	return s.Engine.Account(ctx)
}

func (s *Services) Zones(ctx context.Context, accountID string, force bool) ([]model.Zone, error) {
	return s.Engine.Zones(ctx, accountID, force)
}

func (s *Services) EnsureFresh(ctx context.Context, zone model.Zone) (store.Snapshot, error) {
	return s.Engine.EnsureFresh(ctx, zone)
}

func (s *Services) Refresh(ctx context.Context, zone model.Zone) (*syncer.Result, error) {
	return s.Engine.Refresh(ctx, zone)
}

func (s *Services) Watch(scope store.Scope) *store.Subscription {
	if s.Poller != nil && scope.Kind == store.ScopeZone {
		return s.Poller.Watch(scope.ID)
	}
	return s.Store().Subscribe(scope)
}

// Submit hands req to the command core. A commit that failed because the
// provider no longer matches the cache marks the zone stale and asks the
// poller for a refresh.
func (s *Services) Submit(ctx context.Context, req command.Request) <-chan command.Outcome {
	in := s.Core.Submit(ctx, req)
	if s.Poller == nil {
		return in
	}
	out := make(chan command.Outcome, 1)
	go func() {
		defer close(out)
		o, ok := <-in
		if !ok {
			return
		}
		if o.Err != nil && (model.IsNotFound(o.Err) || model.IsConflict(o.Err)) {
			zoneID := req.ZoneID
			if zoneID == "" {
				zoneID = o.Entry.Record.ZoneID
			}
			if zoneID != "" {
				s.Store().MarkStale(zoneID, o.Err)
			}
			s.Poller.Trigger()
		}
		out <- o
	}()
	return out
}

// Login swaps in token and resolves the account with it.
func (s *Services) Login(ctx context.Context, token string) (model.Account, error) {
	if token == "" {
		return model.Account{}, model.Validationf("token", "token is required")
	}
	if s.Tokens == nil {
		return model.Account{}, model.Validationf("token", "credentials cannot be changed in this session")
	}
	s.Tokens.SetToken(token)
	acct, err := s.Engine.Account(ctx)
	if err != nil {
		return model.Account{}, err
	}
	if s.SaveToken != nil {
		if err := s.SaveToken(token); err != nil {
			return acct, fmt.Errorf("signed in, but saving the token failed: %w", err)
		}
	}
	return acct, nil
}
