// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

package release

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alchemillahq/sylve/internal/logger"
)

// EOLCheckURL is the default FreeBSD security/errata data feed consulted
// for a release's end-of-life date. HardenedBSD releases track their
// FreeBSD base's EOL and are looked up the same way.
const EOLCheckURL = "https://www.freebsd.org/security/unsupported.json"

// EOLInfo is what's known about one release's support window.
type EOLInfo struct {
	Name   string
	EOL    time.Time
	Stale  bool // true once EOL has passed
	Reason string
}

// EOLChecker fetches the EOL feed once when Run starts and then
// refreshes it on a cron schedule, rather than a raw ticker, mirroring
// the scheduling idiom the teacher uses for periodic snapshot jobs.
// A stale or unreachable feed is informational only — it never blocks
// a release operation.
type EOLChecker struct {
	mu       sync.RWMutex
	client   *http.Client
	url      string
	schedule cron.Schedule
	byName   map[string]EOLInfo
	lastErr  error
	fetched  bool
}

// NewEOLChecker builds a checker that refreshes on cronExpr (standard
// five-field cron syntax, e.g. "0 6 * * *" for once daily at 06:00).
func NewEOLChecker(cronExpr string) (*EOLChecker, error) {
	sched, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse eol check schedule: %w", err)
	}

	return &EOLChecker{
		client:   &http.Client{Timeout: 15 * time.Second},
		url:      EOLCheckURL,
		schedule: sched,
		byName:   make(map[string]EOLInfo),
	}, nil
}

// Run blocks, refreshing the feed immediately and then again each time
// the schedule next fires, until ctx is cancelled. Intended to be
// launched in its own goroutine by the orchestrator's startup path.
func (c *EOLChecker) Run(ctx context.Context) {
	c.refresh(ctx)

	next := c.schedule.Next(time.Now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			c.refresh(ctx)
			next = c.schedule.Next(time.Now())
			timer.Reset(time.Until(next))
		}
	}
}

// Lookup returns what's known about name's EOL status. ok is false
// until the first successful refresh has populated the table.
func (c *EOLChecker) Lookup(name string) (info EOLInfo, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok = c.byName[strings.TrimSuffix(name, "-RELEASE")]
	return info, ok
}

func (c *EOLChecker) refresh(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		c.recordErr(err)
		return
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.recordErr(err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.recordErr(fmt.Errorf("eol feed returned %s", resp.Status))
		return
	}

	var raw map[string]struct {
		EOL string `json:"eol"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		c.recordErr(fmt.Errorf("decode eol feed: %w", err))
		return
	}

	now := time.Now()
	table := make(map[string]EOLInfo, len(raw))
	for name, entry := range raw {
		eol, err := time.Parse("2006-01-02", entry.EOL)
		if err != nil {
			continue
		}
		table[name] = EOLInfo{Name: name, EOL: eol, Stale: now.After(eol)}
	}

	c.mu.Lock()
	c.byName = table
	c.lastErr = nil
	c.fetched = true
	c.mu.Unlock()

	logger.L.Debug().Int("releases", len(table)).Msg("refreshed release eol table")
}

func (c *EOLChecker) recordErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	logger.L.Warn().Err(err).Msg("eol feed refresh failed, keeping previous table")
}
