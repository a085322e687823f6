// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

// Package configmodel resolves a jail's configuration view: the
// stored value for a key, falling back through special-property
// defaults and host/hard-coded defaults, raising an error for
// anything unrecognized unless the caller opts into skip_on_error.
package configmodel

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/alchemillahq/sylve/internal/configstore"
	"github.com/alchemillahq/sylve/internal/logger"
	"github.com/alchemillahq/sylve/internal/specialprops"
)

// idPattern validates a jail identity: up to 32 characters, starting
// alphanumeric, then alphanumeric/dot/underscore/hyphen. A UUID (36
// chars with hyphens at the RFC-4122 positions) is also accepted and
// is validated with google/uuid rather than a hand-rolled pattern.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,31}$`)

// ValidID reports whether id is an acceptable jail identity.
func ValidID(id string) bool {
	if idPattern.MatchString(id) {
		return true
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// ErrUnknownProperty is returned by Get/Set for a key that resolves
// to neither a stored value, a special property, nor any default.
type ErrUnknownProperty struct{ Key string }

func (e *ErrUnknownProperty) Error() string {
	return fmt.Sprintf("unknown jail config property: %s", e.Key)
}

// Model is the in-memory, typed view over one jail's stored
// configuration.
type Model struct {
	ID           string
	store        *configstore.Store
	values       map[string]string
	hostDefaults map[string]string
	registry     specialprops.Registry
	special      map[string]specialprops.Property
}

// New constructs a Model bound to store, merging hostDefaultsPath
// (a source's <source>/iocage/defaults.json, may not exist) over
// HardcodedDefaults.
func New(id string, store *configstore.Store, hostDefaultsPath string) (*Model, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("invalid jail id: %s", id)
	}

	merged := make(map[string]string, len(HardcodedDefaults))
	for k, v := range HardcodedDefaults {
		merged[k] = v
	}

	if hostDefaultsPath != "" {
		if raw, err := os.ReadFile(hostDefaultsPath); err == nil {
			var overrides map[string]any
			if err := json.Unmarshal(raw, &overrides); err != nil {
				return nil, fmt.Errorf("parse host defaults %s: %w", hostDefaultsPath, err)
			}
			for k, v := range overrides {
				merged[k] = configstore.Normalize(v)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read host defaults %s: %w", hostDefaultsPath, err)
		}
	}

	return &Model{
		ID:           id,
		store:        store,
		values:       make(map[string]string),
		hostDefaults: merged,
		registry:     specialprops.Default,
		special:      make(map[string]specialprops.Property),
	}, nil
}

// Load reads the store and canonicalizes legacy key spellings.
func (m *Model) Load() error {
	raw, err := m.store.Read()
	if err != nil {
		return fmt.Errorf("load config for %s: %w", m.ID, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		values[CanonicalKey(k)] = v
	}
	// exec_created is a stale key from one historical defaults table;
	// never surface it once loaded.
	delete(values, "exec_created")

	m.values = values
	return nil
}

// Save writes the current values back through the store as JSON.
func (m *Model) Save() error {
	return m.store.Write(m.values)
}

// Hash returns a content hash of the current value set, used by Set
// to report whether a mutation actually changed anything.
func (m *Model) Hash() string {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\n", k, m.values[k])
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Get resolves key through: stored value → special-property zero
// value → host/hard-coded default → ErrUnknownProperty.
func (m *Model) Get(key string) (string, error) {
	key = CanonicalKey(key)

	if v, ok := m.values[key]; ok {
		return v, nil
	}

	if isUserOrMACKey(key) {
		return "", nil
	}

	if m.registry != nil {
		if ctor, ok := m.registry[key]; ok {
			return ctor().String(), nil
		}
	}

	if v, ok := m.hostDefaults[key]; ok {
		return v, nil
	}

	return "", &ErrUnknownProperty{Key: key}
}

// Set stores a value for key, validating it through the matching
// special property's Parse when one is registered. Unknown keys
// return ErrUnknownProperty unless skipOnError degrades them to a
// logged warning. Returns whether the stored hash changed.
func (m *Model) Set(key, value string, skipOnError bool) (bool, error) {
	key = CanonicalKey(key)
	before := m.Hash()

	if err := m.validate(key, value); err != nil {
		if !skipOnError {
			return false, err
		}
		logger.L.Warn().Err(err).Str("key", key).Msg("skipping invalid jail config value")
		return false, nil
	}

	m.values[key] = value
	return m.Hash() != before, nil
}

func (m *Model) validate(key, value string) error {
	if isUserOrMACKey(key) {
		return nil
	}

	if ctor, ok := m.registry[key]; ok {
		prop := ctor()
		if err := prop.Parse(value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		m.special[key] = prop
		return nil
	}

	if _, ok := m.hostDefaults[key]; ok {
		return nil
	}

	if _, ok := m.values[key]; ok {
		return nil
	}

	return &ErrUnknownProperty{Key: key}
}

// SpecialProperty returns the parsed Property for key if the last Set
// call for it went through the special-property path, constructing
// and caching one from the current stored value otherwise.
func (m *Model) SpecialProperty(key string) (specialprops.Property, error) {
	key = CanonicalKey(key)

	if p, ok := m.special[key]; ok {
		return p, nil
	}

	ctor, ok := m.registry[key]
	if !ok {
		return nil, fmt.Errorf("%s is not a special property", key)
	}

	prop := ctor()
	raw, err := m.Get(key)
	if err != nil {
		return nil, err
	}

	if err := prop.Parse(raw); err != nil {
		return nil, fmt.Errorf("parse stored %s: %w", key, err)
	}

	m.special[key] = prop
	return prop, nil
}

// All returns every resolved key the stored config carries (not
// merged with defaults), for round-trip/iteration use.
func (m *Model) All() map[string]string {
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

func isUserOrMACKey(key string) bool {
	return strings.HasPrefix(key, "user.") || strings.HasSuffix(key, "_mac")
}
