package command

import (
	"context"
	"fmt"

	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// Kind names an operation that can be submitted asynchronously.
type Kind string

const (
	KindCreate  Kind = "create"
	KindUpdate  Kind = "update"
	KindDelete  Kind = "delete"
	KindRetry   Kind = "retry"
	KindDiscard Kind = "discard"
	KindResolve Kind = "resolve"
)

// Request describes one operation. Only the fields the kind needs are read.
type Request struct {
	Kind       Kind
	ZoneID     string
	Key        string
	Draft      model.Draft
	Patch      model.Patch
	Resolution store.Resolution
}

// Outcome is the result of a request.
type Outcome struct {
	Request Request
	Entry   store.Entry
	Err     error
}

// Do executes req and waits for it.
func (c *Core) Do(ctx context.Context, req Request) Outcome {
	out := Outcome{Request: req}
	switch req.Kind {
	case KindCreate:
		out.Entry, out.Err = c.CreateRecord(ctx, req.ZoneID, req.Draft)
	case KindUpdate:
		out.Entry, out.Err = c.UpdateRecord(ctx, req.Key, req.Patch)
	case KindDelete:
		out.Entry.Key = req.Key
		out.Err = c.DeleteRecord(ctx, req.Key)
	case KindRetry:
		out.Entry, out.Err = c.Retry(ctx, req.Key)
	case KindDiscard:
		out.Entry.Key = req.Key
		out.Err = c.Discard(req.Key)
	case KindResolve:
		out.Entry, out.Err = c.Resolve(ctx, req.Key, req.Resolution, req.Patch)
	default:
		out.Err = model.Validationf("request", "unknown operation %q", req.Kind)
	}
	if out.Entry.Key == "" && req.Key != "" {
		out.Entry.Key = req.Key
	}
	return out
}

// Submit executes req in the background and delivers its outcome on the
// returned channel, which receives exactly one value. The operation keeps
// running if the receiver stops listening.
func (c *Core) Submit(ctx context.Context, req Request) <-chan Outcome {
	ch := make(chan Outcome, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(ch)
		defer func() {
			if r := recover(); r != nil {
				ch <- Outcome{Request: req, Err: fmt.Errorf("%s panicked: %v", req.Kind, r)}
			}
		}()
		ch <- c.Do(context.WithoutCancel(ctx), req)
	}()
	return ch
}
