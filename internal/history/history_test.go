// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

package history

import (
	"errors"
	"testing"
	"time"

	"github.com/alchemillahq/sylve/internal/events"
)

func TestOpenRejectsEmptyDataPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatalf("expected an error opening with no data path")
	}
}

func TestRecordSkipsPendingEvents(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := store.Record(events.Event{
		Type:       "jail.start",
		Identifier: "myjail",
		State:      events.StatePending,
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := store.ForIdentifier("myjail")
	if err != nil {
		t.Fatalf("ForIdentifier: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected pending events not to be persisted, got %d entries", len(entries))
	}
}

func TestRecordPersistsTerminalEvents(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := store.Record(events.Event{
		Type:       "jail.start",
		Identifier: "myjail",
		State:      events.StateDone,
		Message:    "started",
		StartedAt:  now,
		StoppedAt:  now.Add(time.Second),
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if err := store.Record(events.Event{
		Type:       "jail.stop",
		Identifier: "myjail",
		State:      events.StateFailed,
		Err:        errors.New("boom"),
		StartedAt:  now.Add(2 * time.Second),
		StoppedAt:  now.Add(3 * time.Second),
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := store.ForIdentifier("myjail")
	if err != nil {
		t.Fatalf("ForIdentifier: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 persisted entries, got %d", len(entries))
	}
	if entries[0].Message != "started" {
		t.Errorf("first entry message = %q, want %q", entries[0].Message, "started")
	}
	if entries[1].Err != "boom" {
		t.Errorf("second entry err = %q, want %q", entries[1].Err, "boom")
	}
}

func TestForIdentifierOnlyReturnsMatchingJail(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for _, id := range []string{"jail-a", "jail-b"} {
		if err := store.Record(events.Event{Type: "jail.create", Identifier: id, State: events.StateDone}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := store.ForIdentifier("jail-a")
	if err != nil {
		t.Fatalf("ForIdentifier: %v", err)
	}
	if len(entries) != 1 || entries[0].Identifier != "jail-a" {
		t.Fatalf("expected only jail-a's entries, got %+v", entries)
	}
}
