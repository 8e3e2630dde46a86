// Package vclock implements the per-actor vector clocks that every WSG node
// carries for conflict detection during rebase (spec §3 "Vector
// clock", §4.D "Rebase algorithm").
package vclock

import (
	"time"

	"eve.evalgo.org/internal/id"
)

// Entry is one actor's contribution to a vector clock: a monotonic counter
// plus the wall-clock time of the write that produced it, used only as a
// deterministic tie-breaker when two actors' counters collide.
type Entry struct {
	Counter   uint64
	Timestamp time.Time
}

// Clock maps actor ID to that actor's latest Entry. The zero value is an
// empty clock (no writes observed from any actor).
type Clock map[id.ID]Entry

// New returns an empty clock.
func New() Clock {
	return make(Clock)
}

// Clone returns a deep copy so callers can advance it without mutating the
// original (WSG node weights are otherwise immutable once content-hashed).
func (c Clock) Clone() Clock {
	out := make(Clock, len(c))
	for actor, entry := range c {
		out[actor] = entry
	}
	return out
}

// Advance increments actor's counter by one and stamps it with the given
// time, returning a new clock (the receiver is left untouched).
func (c Clock) Advance(actor id.ID, at time.Time) Clock {
	out := c.Clone()
	prev := out[actor]
	out[actor] = Entry{Counter: prev.Counter + 1, Timestamp: at}
	return out
}

// Merge returns the pointwise maximum of two clocks: for every actor, the
// entry with the higher counter wins, and the later timestamp breaks ties
// between equal counters (spec §3 "Merging takes the pointwise maximum
// counter (and latest timestamp as a tiebreaker)").
func Merge(a, b Clock) Clock {
	out := make(Clock, len(a)+len(b))
	for actor, entry := range a {
		out[actor] = entry
	}
	for actor, entry := range b {
		existing, ok := out[actor]
		if !ok || entryLess(existing, entry) {
			out[actor] = entry
		}
	}
	return out
}

func entryLess(a, b Entry) bool {
	if a.Counter != b.Counter {
		return a.Counter < b.Counter
	}
	return a.Timestamp.Before(b.Timestamp)
}

// Order is the result of comparing two clocks.
type Order int

const (
	// Equal means every actor entry matches exactly.
	Equal Order = iota
	// Less means a happened-before b: every entry in a is <= the
	// corresponding entry in b, and at least one is strictly less.
	Less
	// Greater is the inverse of Less.
	Greater
	// Concurrent means neither dominates the other — a genuine conflict.
	Concurrent
)

// Compare determines the happened-before relationship between a and b.
func Compare(a, b Clock) Order {
	aLessSomewhere, bLessSomewhere := false, false

	actors := make(map[id.ID]struct{}, len(a)+len(b))
	for actor := range a {
		actors[actor] = struct{}{}
	}
	for actor := range b {
		actors[actor] = struct{}{}
	}

	for actor := range actors {
		ae, bePresent := a[actor]
		be, aePresent := b[actor]
		_ = bePresent
		_ = aePresent
		if ae.Counter < be.Counter {
			aLessSomewhere = true
		} else if ae.Counter > be.Counter {
			bLessSomewhere = true
		}
	}

	switch {
	case !aLessSomewhere && !bLessSomewhere:
		return Equal
	case aLessSomewhere && !bLessSomewhere:
		return Less
	case !aLessSomewhere && bLessSomewhere:
		return Greater
	default:
		return Concurrent
	}
}

// Dominates reports whether a has observed everything in b (a >= b).
func Dominates(a, b Clock) bool {
	order := Compare(a, b)
	return order == Equal || order == Greater
}

// WinningActor resolves a same-scalar-field conflict deterministically:
// the actor with the lexicographically greatest (counter, timestamp,
// actor_id) triple wins (spec §4.D step 2, §9 open question resolution).
func WinningActor(a, b Clock) id.ID {
	var bestActor id.ID
	var bestEntry Entry
	first := true

	consider := func(actor id.ID, entry Entry) {
		if first || tripleLess(bestEntry, bestActor, entry, actor) {
			bestActor, bestEntry, first = actor, entry, false
		}
	}
	for actor, entry := range a {
		consider(actor, entry)
	}
	for actor, entry := range b {
		consider(actor, entry)
	}
	return bestActor
}

func tripleLess(e1 Entry, a1 id.ID, e2 Entry, a2 id.ID) bool {
	if e1.Counter != e2.Counter {
		return e1.Counter < e2.Counter
	}
	if !e1.Timestamp.Equal(e2.Timestamp) {
		return e1.Timestamp.Before(e2.Timestamp)
	}
	return id.Less(a1, a2)
}
