// Package aggregator is the Go realization of the queue aggregator from
// spec.md §4.3: a registry of mailbox handles that lets independent tasks
// exchange strongly-typed messages by tag, by unique message type, or by a
// runtime address, without any task knowing another task's concrete type.
//
// The reference kernel gets this "typed routing without inheritance" from a
// compile-time parameter pack over mailbox types. Go has no variadic list of
// distinct type parameters, so each mailbox instead registers a type-erased
// routing closure that captures its own generic TrySend, and the aggregator
// keeps a small table of those closures indexed by Tag. Ambiguity that would
// be a compile error in the source language (two mailboxes both able to
// accept the same message type, routed through SendUnique) is instead
// detected at run time, on each SendUnique call; registration itself accepts
// mailboxes whose message types overlap.
package aggregator

import (
	"errors"
	"reflect"

	"labctrl/mailbox"
)

// ErrAmbiguousMessage is the panic value SendUnique raises when a message
// type-asserts to more than one registered mailbox. In the reference kernel
// this situation is a compile error; this package detects it when
// SendUnique is called with such a message.
var ErrAmbiguousMessage = errors.New("aggregator: message type is ambiguous across more than one mailbox")

// Tag identifies one registered mailbox. Tags are small integers assigned by
// the application, one per task, starting at 0 — the Go analogue of the
// reference kernel's zero-sized tag types.
type Tag int

type route struct {
	tag     Tag
	msgType reflect.Type
	send    func(any) bool
}

// Aggregator is the fixed-size, write-once-per-tag mailbox registry.
type Aggregator struct {
	routes     []route
	registered map[Tag]bool
}

// New creates an aggregator with room for taskCount distinct tags.
func New(taskCount int) *Aggregator {
	return &Aggregator{
		routes:     make([]route, 0, taskCount),
		registered: make(map[Tag]bool, taskCount),
	}
}

// TaskCount reports how many mailboxes are currently registered.
func (a *Aggregator) TaskCount() int {
	return len(a.routes)
}

// RegisterMailbox registers mb under tag so it can be addressed by
// SendTag(tag, ...), by SendUnique(...) if no other mailbox also accepts T,
// and by SendToAddress(int(tag), ...). It returns false if tag has already
// been registered — re-registration is a boot-ordering bug, not a panic.
func RegisterMailbox[T any](agg *Aggregator, tag Tag, mb *mailbox.Mailbox[T]) bool {
	if agg.registered[tag] {
		return false
	}
	var zero T
	agg.registered[tag] = true
	agg.routes = append(agg.routes, route{
		tag:     tag,
		msgType: reflect.TypeOf(&zero).Elem(),
		send: func(msg any) bool {
			v, ok := msg.(T)
			if !ok {
				return false
			}
			return mb.TrySend(v)
		},
	})
	return true
}

// SendTag routes msg to the mailbox registered under tag. It returns false
// if tag is unregistered or msg does not type-assert to that mailbox's
// message type.
func (a *Aggregator) SendTag(tag Tag, msg any) bool {
	for _, r := range a.routes {
		if r.tag == tag {
			return r.send(msg)
		}
	}
	return false
}

// SendUnique routes msg to the single mailbox that accepts it — msg's
// concrete type is assignable to that route's registered element type,
// which is ordinarily a marker interface (messages.ThermalMessage and
// friends) rather than msg's own concrete type. It returns false if no
// mailbox matches, and panics with ErrAmbiguousMessage if more than one
// does — callers only use this when they know (by construction) that the
// message variant is unique to one mailbox, exactly as spec.md §4.3
// requires of the source language's compile-time equivalent.
func (a *Aggregator) SendUnique(msg any) bool {
	t := reflect.TypeOf(msg)
	matches := 0
	var target *route
	for i := range a.routes {
		if t != nil && t.AssignableTo(a.routes[i].msgType) {
			matches++
			target = &a.routes[i]
		}
	}
	if matches > 1 {
		panic(ErrAmbiguousMessage)
	}
	if target == nil {
		return false
	}
	return target.send(msg)
}

// SendToAddress routes msg to the mailbox registered under Tag(addr). It
// returns false for an address with no registered mailbox, or a message
// that does not type-assert to that mailbox's message type, and does
// nothing in either case.
func (a *Aggregator) SendToAddress(addr int, msg any) bool {
	return a.SendTag(Tag(addr), msg)
}
