// Package settings reads the user's persisted preferences: their first name,
// their routine checklist and the daily session time.
//
// A missing key is not an error; Lookup returns "".
package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Well-known keys.
const (
	UserFirstName = "userFirstName"
	UserPrompt    = "userPrompt"
	Time          = "time"
)

// Store is a read-only view of the persisted settings.
type Store interface {
	Lookup(key string) string
}

// Map is an in-memory Store, used for settings inlined in the config file.
type Map map[string]string

// Lookup implements [Store].
func (m Map) Lookup(key string) string { return m[key] }

// LoadYAML reads a flat YAML mapping of keys to string values.
func LoadYAML(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}
	m := Map{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	return m, nil
}

// Greeting returns the opening line for the user in s.
func Greeting(s Store) string {
	if name := s.Lookup(UserFirstName); name != "" {
		return "Good morning " + name + "!"
	}
	return "Good morning!"
}

// Chain looks a key up in each store in order and returns the first
// non-empty value.
type Chain []Store

// Lookup implements [Store].
func (c Chain) Lookup(key string) string {
	for _, s := range c {
		if v := s.Lookup(key); v != "" {
			return v
		}
	}
	return ""
}
