// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

// Package history persists completed lifecycle events to a sqlite
// ledger, so a jail's create/start/stop/destroy timeline survives
// past the process that ran them — the event stream (internal/events)
// is in-memory and per-call, this is its durable tail.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/alchemillahq/sylve/internal/events"
)

// Entry is one completed (or failed) event, flattened for storage —
// Data is dropped since it's producer-specific debug context, not
// part of the audit trail.
type Entry struct {
	ID         uint `gorm:"primaryKey"`
	Type       string `gorm:"index"`
	Identifier string `gorm:"index"`
	Depth      int
	State      string
	Message    string
	Err        string
	StartedAt  time.Time
	StoppedAt  time.Time
}

// Store owns the ledger's sqlite handle.
type Store struct {
	db *gorm.DB
}

// Open creates (or reuses) <dataPath>/sylve-jails-history.db and
// migrates the Entry table.
func Open(dataPath string) (*Store, error) {
	if dataPath == "" {
		return nil, fmt.Errorf("history_data_path_required")
	}

	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("create_history_data_path: %w", err)
	}

	dbPath := filepath.Join(dataPath, "sylve-jails-history.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open_history_db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("history_sql_handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db.Exec("PRAGMA busy_timeout = 5000")
	db.Exec("PRAGMA journal_mode = WAL")
	db.Exec("PRAGMA synchronous = NORMAL")

	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate_history_db: %w", err)
	}

	return &Store{db: db}, nil
}

// Record appends one terminal event (done/skipped/failed) to the
// ledger; pending events aren't persisted, since only a finished
// step is part of the audit trail.
func (s *Store) Record(e events.Event) error {
	if e.State == events.StatePending {
		return nil
	}

	errText := ""
	if e.Err != nil {
		errText = e.Err.Error()
	}

	entry := Entry{
		Type:       e.Type,
		Identifier: e.Identifier,
		Depth:      e.Depth,
		State:      string(e.State),
		Message:    e.Message,
		Err:        errText,
		StartedAt:  e.StartedAt,
		StoppedAt:  e.StoppedAt,
	}

	if err := s.db.Create(&entry).Error; err != nil {
		return fmt.Errorf("record_history_entry: %w", err)
	}

	return nil
}

// Drain reads every event off stream, recording terminal ones, until
// the stream is closed — the consumer side of a lifecycle operation's
// producer goroutine, used when the caller wants durable history
// without needing a live progress UI.
func (s *Store) Drain(stream *events.Stream) error {
	var firstErr error
	for e := range stream.Events() {
		if err := s.Record(e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ForIdentifier returns every recorded event for one jail id, oldest
// first.
func (s *Store) ForIdentifier(identifier string) ([]Entry, error) {
	var entries []Entry
	if err := s.db.Where("identifier = ?", identifier).Order("started_at ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("query_history: %w", err)
	}
	return entries, nil
}
