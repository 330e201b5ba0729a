package session

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Guard deduplicates concurrent invocations of an asynchronous operation:
// a caller arriving while an execution is in flight joins that execution and
// receives its result instead of starting a new one. The first caller's work
// is authoritative; later callers' arguments are never evaluated. Once the
// shared execution settles (success or failure) the guard resets and the
// next call starts fresh.
type Guard struct {
	group singleflight.Group
}

// guardKey is the single dedup key: a Guard serializes one logical
// operation, not a keyed family of them.
const guardKey = "in-flight"

// Do runs fn, or joins an execution of fn that is already in flight. Every
// caller sharing a flight observes the same value and error. A caller whose
// ctx is done stops waiting and returns ctx.Err(), but does not cancel the
// shared flight for the others.
func (g *Guard) Do(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	ch := g.group.DoChan(guardKey, fn)
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
