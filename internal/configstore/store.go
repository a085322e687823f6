// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

// Package configstore reads and writes a jail's persisted configuration
// in whichever of the three formats iocage supports is present: JSON
// (config.json), UCL (config), or ZFS user properties on the jail's
// root dataset. Write always produces JSON; WriteUCL and
// WriteZFSProperty write the other two formats when called directly.
package configstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Format identifies which on-disk representation a jail's config is
// stored in.
type Format int

const (
	FormatJSON Format = iota
	FormatUCL
	FormatZFSProperty
)

// PropertyPrefix namespaces every config key stored as a ZFS user
// property, mirroring iocage's org.freebsd.iocage: convention.
const PropertyPrefix = "org.freebsd.iocage:"

const (
	jsonFileName = "config.json"
	uclFileName  = "config"
)

// Dataset is the subset of *zfs.Dataset the ZFS-property backend
// needs, kept narrow so tests can fake it.
type Dataset interface {
	GetAllProperties() (map[string]string, error)
	SetProperties(keyValPairs ...string) error
}

// Store is bound to one jail's on-disk directory (and, for the
// ZFS-property backend, its dataset).
type Store struct {
	Dir     string
	Dataset Dataset
}

// New returns a Store rooted at dir, the jail's dataset mountpoint
// (e.g. <source>/iocage/jails/<id>).
func New(dir string, ds Dataset) *Store {
	return &Store{Dir: dir, Dataset: ds}
}

// Detect picks the format whose marker is present, in JSON → UCL →
// ZFS-property order, per the spec's format-detection precedence.
func (s *Store) Detect() (Format, error) {
	if _, err := os.Stat(filepath.Join(s.Dir, jsonFileName)); err == nil {
		return FormatJSON, nil
	}

	if _, err := os.Stat(filepath.Join(s.Dir, uclFileName)); err == nil {
		return FormatUCL, nil
	}

	if s.Dataset != nil {
		props, err := s.Dataset.GetAllProperties()
		if err != nil {
			return 0, fmt.Errorf("read dataset properties: %w", err)
		}

		for k := range props {
			if strings.HasPrefix(k, PropertyPrefix) {
				return FormatZFSProperty, nil
			}
		}
	}

	return 0, fmt.Errorf("no config found under %s", s.Dir)
}

// Read loads the jail's configuration as a flat string map, using
// whichever format Detect resolves. Values are normalized: booleans to
// "yes"/"no", unset to "none", lists comma-joined — the same
// normalization Write expects on the way back in, so a read-write
// round trip with no mutation reproduces the same mapping.
func (s *Store) Read() (map[string]string, error) {
	format, err := s.Detect()
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatJSON:
		return s.readJSON()
	case FormatUCL:
		return s.readUCL()
	case FormatZFSProperty:
		return s.readZFSProperty()
	default:
		return nil, fmt.Errorf("unknown config format %d", format)
	}
}

// Write persists values as config.json, atomically (write a temp file,
// then rename over the target) so a crash mid-write never leaves a
// truncated config behind. New jails always write JSON regardless of
// what format they were read in — migrating a UCL- or
// property-backed jail to JSON is the expected upgrade path.
func (s *Store) Write(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]string, len(values))
	for _, k := range keys {
		ordered[k] = values[k]
	}

	data, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	target := filepath.Join(s.Dir, jsonFileName)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("rename temp config into place: %w", err)
	}

	return nil
}

func (s *Store) readJSON() (map[string]string, error) {
	raw, err := os.ReadFile(filepath.Join(s.Dir, jsonFileName))
	if err != nil {
		return nil, fmt.Errorf("read config.json: %w", err)
	}

	var anyValues map[string]any
	if err := json.Unmarshal(raw, &anyValues); err != nil {
		return nil, fmt.Errorf("parse config.json: %w", err)
	}

	return normalizeAll(anyValues), nil
}

// WriteUCL writes values in the legacy UCL "config" format instead of
// JSON, for a caller that wants to keep a UCL-backed jail in its
// original format. Nothing in this module calls it.
func (s *Store) WriteUCL(values map[string]string) error {
	target := filepath.Join(s.Dir, uclFileName)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, writeUCL(values), 0o644); err != nil {
		return fmt.Errorf("write temp UCL config: %w", err)
	}

	return os.Rename(tmp, target)
}

func (s *Store) readUCL() (map[string]string, error) {
	raw, err := os.ReadFile(filepath.Join(s.Dir, uclFileName))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return parseUCL(raw)
}

// WriteZFSProperty persists values as org.freebsd.iocage:-prefixed user
// properties on the jail's dataset. Nothing in this module calls it;
// Model.Save always goes through Write (JSON).
func (s *Store) WriteZFSProperty(values map[string]string) error {
	if s.Dataset == nil {
		return fmt.Errorf("no dataset bound to store at %s", s.Dir)
	}

	return s.Dataset.SetProperties(ZFSPropertyArgs(values)...)
}

func (s *Store) readZFSProperty() (map[string]string, error) {
	props, err := s.Dataset.GetAllProperties()
	if err != nil {
		return nil, fmt.Errorf("read dataset properties: %w", err)
	}

	out := make(map[string]string)
	for k, v := range props {
		if !strings.HasPrefix(k, PropertyPrefix) {
			continue
		}
		out[strings.TrimPrefix(k, PropertyPrefix)] = v
	}

	return out, nil
}

// normalizeAll coerces arbitrary decoded-JSON values to the canonical
// string form: booleans to yes/no, nil to "none", slices comma-joined.
func normalizeAll(values map[string]any) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = Normalize(v)
	}
	return out
}

// Normalize renders an arbitrary config value in its canonical stored
// string form.
func Normalize(v any) string {
	switch t := v.(type) {
	case nil:
		return "none"
	case bool:
		if t {
			return "yes"
		}
		return "no"
	case string:
		if t == "" {
			return "none"
		}
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, Normalize(item))
		}
		return strings.Join(parts, ",")
	case float64:
		return trimFloat(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%v", f)
}

// ZFSPropertyArgs renders values as SetProperties-ready key=value pairs
// under PropertyPrefix, for the ZFS-property backend's Write path.
func ZFSPropertyArgs(values map[string]string) []string {
	args := make([]string, 0, len(values)*2)
	for k, v := range values {
		args = append(args, PropertyPrefix+k, v)
	}
	return args
}
