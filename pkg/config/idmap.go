package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// IDMap relates human-readable instance names to numeric instance ids.
// It is loaded from a YAML file of "name: id" entries.
type IDMap map[string]uint32

// LoadIDMap reads a name-to-id map from a YAML file
func LoadIDMap(path string) (IDMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading id map: %w", err)
	}
	m := IDMap{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error parsing id map %s: %w", path, err)
	}
	return m, nil
}

// Resolve accepts either an instance name or a numeric id string and returns
// both. A numeric string is looked up in reverse to recover the name.
func (m IDMap) Resolve(nameOrID string) (uint32, string, error) {
	if id, err := strconv.ParseUint(nameOrID, 10, 32); err == nil {
		name, err := m.NameOf(uint32(id))
		if err != nil {
			return 0, "", err
		}
		return uint32(id), name, nil
	}
	id, ok := m[nameOrID]
	if !ok {
		return 0, "", fmt.Errorf("unknown instance name %q", nameOrID)
	}
	return id, nameOrID, nil
}

// NameOf returns the name mapped to id
func (m IDMap) NameOf(id uint32) (string, error) {
	// Deterministic when two names share an id
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if m[name] == id {
			return name, nil
		}
	}
	return "", fmt.Errorf("no instance with id %d", id)
}
