// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

// Package events implements the hierarchical, cancellable progress
// stream that drives every lifecycle operation: begin/step/end/skip/fail
// states, nested child scopes, and LIFO rollback-on-failure. Producers
// send on a channel; a consumer drains it synchronously, one event per
// state transition.
package events

import "time"

// State is an event's terminal or in-flight status.
type State string

const (
	StatePending State = "pending"
	StateDone    State = "done"
	StateSkipped State = "skipped"
	StateFailed  State = "failed"
)

// Event is one record in the stream. Scope is a monotonic counter
// unique to the Node that produced it; Depth is its nesting level,
// used by consumers to indent. Consumers coalesce repeated events
// sharing (Type, Identifier) within one Scope for display — the
// producer does not deduplicate.
type Event struct {
	Type         string
	Identifier   string
	Scope        int
	Depth        int
	PendingCount int
	StartedAt    time.Time
	StoppedAt    time.Time
	State        State
	Err          error
	Message      string
	Data         map[string]any
}

// DedupKey is the (Type, Identifier) pair a consumer keys on to
// coalesce repeated events within one Scope.
func (e Event) DedupKey() string {
	return e.Type + "\x00" + e.Identifier
}

// Stream is the shared channel every Node in one orchestration call
// sends events on.
type Stream struct {
	ch        chan Event
	nextScope int
}

// NewStream creates a Stream with the given channel buffer. A buffer
// of 0 makes every send a synchronization point with the consumer,
// matching the spec's "send on an unbuffered channel" mapping for
// Python's generator yield; most callers use a small buffer so a
// burst of child events doesn't stall the producer goroutine on a
// slow consumer.
func NewStream(buffer int) *Stream {
	return &Stream{ch: make(chan Event, buffer)}
}

// Events returns the receive side of the stream.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Close closes the channel; callers must not send after calling this.
func (s *Stream) Close() {
	close(s.ch)
}

func (s *Stream) scope() int {
	s.nextScope++
	return s.nextScope
}

// Node is one in-flight event: the handle a lifecycle step holds while
// it does its work, accumulating rollback closures, and finally
// transitioning to End/Skip/Fail.
type Node struct {
	stream     *Stream
	eventType  string
	identifier string
	scope      int
	depth      int
	startedAt  time.Time
	rollbacks  []func() error
	parent     *Node
}

// Begin starts a new root node and emits its pending event.
func Begin(s *Stream, eventType, identifier string) *Node {
	n := &Node{stream: s, eventType: eventType, identifier: identifier, scope: s.scope(), depth: 0, startedAt: time.Now()}
	n.emit(StatePending, "", nil, nil)
	return n
}

// Child starts a nested node one depth below n, tracked under the
// same Stream, and emits its pending event. The parent's pending
// count is informational only (for indentation hints) and is derived
// by the consumer from Depth/State transitions, not tracked here.
func (n *Node) Child(eventType, identifier string) *Node {
	c := &Node{stream: n.stream, eventType: eventType, identifier: identifier, scope: n.stream.scope(), depth: n.depth + 1, startedAt: time.Now(), parent: n}
	c.emit(StatePending, "", nil, nil)
	return c
}

// Step re-emits a pending event with a progress message, without
// changing state — used for long single operations (a download, a
// zfs send) that want to report intermediate progress.
func (n *Node) Step(message string, data map[string]any) {
	n.emit(StatePending, message, nil, data)
}

// AddRollback registers a closure to run, in LIFO order with every
// other rollback on this node, when this node's Fail is called. An
// ancestor's Fail does not run a child node's rollbacks.
func (n *Node) AddRollback(fn func() error) {
	n.rollbacks = append(n.rollbacks, fn)
}

// End marks the node successfully finished.
func (n *Node) End(message string) {
	n.emit(StateDone, message, nil, nil)
}

// Skip marks the node as not applicable / intentionally not run.
func (n *Node) Skip(message string) {
	n.emit(StateSkipped, message, nil, nil)
}

// Fail drains this node's own rollback stack in LIFO order — each
// rollback emits its own child event so a consumer can see what was
// undone — then emits the failed event and returns err unchanged so
// callers can propagate it up through Go's normal error return path
// (the ancestor node's own Fail then runs its own rollbacks in turn).
func (n *Node) Fail(err error) error {
	for i := len(n.rollbacks) - 1; i >= 0; i-- {
		rb := n.rollbacks[i]
		rollbackNode := n.Child("Rollback", n.identifier)
		if rbErr := rb(); rbErr != nil {
			rollbackNode.emit(StateFailed, rbErr.Error(), rbErr, nil)
		} else {
			rollbackNode.End("")
		}
	}

	n.emit(StateFailed, "", err, nil)
	return err
}

func (n *Node) emit(state State, message string, err error, data map[string]any) {
	e := Event{
		Type:       n.eventType,
		Identifier: n.identifier,
		Scope:      n.scope,
		Depth:      n.depth,
		StartedAt:  n.startedAt,
		State:      state,
		Message:    message,
		Err:        err,
		Data:       data,
	}

	if state != StatePending {
		e.StoppedAt = time.Now()
	}

	n.stream.ch <- e
}
