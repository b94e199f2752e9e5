package syncer

import (
	"log/slog"

	"gitlab.bluewillows.net/root/zonedeck/internal/metrics"
	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// Op is the kind of remote mutation a commit performed.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Outcome is the result of one remote commit.
type Outcome struct {
	Op  Op
	Key string
	// Rev is the entry revision that was sent.
	Rev uint64
	// Record is the provider's value after a successful create or update.
	Record model.Record
	Err    error
}

// ApplyOutcome writes the result of a commit into the store and returns the
// entry as it stands afterwards. It runs whether or not anyone still waits
// for the commit. The returned error is the commit error as seen by the
// caller; a delete of a record that is already gone is a success.
func (e *Engine) ApplyOutcome(o Outcome) (store.Entry, error) {
	err := o.Err
	if o.Op == OpDelete && model.IsNotFound(err) {
		err = nil
	}

	result := "ok"
	if err != nil {
		result = string(model.KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	metrics.Commits.WithLabelValues(string(o.Op), result).Inc()

	if err == nil {
		if o.Op == OpDelete {
			e.store.MarkDeleted(o.Key)
			e.logger.Info("record deleted", slog.String("key", o.Key))
			return store.Entry{Key: o.Key}, nil
		}
		entry, serr := e.store.MarkCommitted(o.Key, o.Record, o.Rev)
		if serr != nil {
			return store.Entry{}, serr
		}
		e.logger.Info("record committed",
			slog.String("op", string(o.Op)),
			slog.String("key", o.Key),
			slog.String("record", o.Record.String()),
		)
		return entry, nil
	}

	e.logger.Warn("commit failed",
		slog.String("op", string(o.Op)),
		slog.String("key", o.Key),
		slog.String("error", err.Error()),
	)

	switch {
	case model.IsUnauthorized(err):
		e.store.EndSession()
	case o.Op == OpUpdate && model.IsNotFound(err):
		// Edited locally, deleted remotely.
		if _, serr := e.store.MarkConflict(o.Key, nil); serr == nil {
			metrics.Conflicts.Inc()
		}
	}
	entry, serr := e.store.MarkFailed(o.Key, err)
	if serr != nil {
		return store.Entry{}, err
	}
	return entry, err
}
