// Package hotreload watches configuration files and atomically rebuilds
// settings snapshots when they change. File events are debounced so a burst
// of writes produces a single reload, and a reload that fails validation
// leaves the previous snapshot untouched.
package hotreload

import (
	"reflect"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/ajitpratap0/stratum/pkg/settings"
)

// FieldChange is a before/after pair for one top-level settings field.
type FieldChange struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// ReloadEvent describes one successful reload: the snapshots before and
// after, the files whose changes triggered it, and the fields that differ.
type ReloadEvent struct {
	Old           settings.Schema
	New           settings.Schema
	ChangedFiles  []string
	ChangedFields []string
	Reason        string
}

// ChangedValues returns the old and new value for every changed field.
func (e *ReloadEvent) ChangedValues() map[string]FieldChange {
	oldMap := schemaToMap(e.Old)
	newMap := schemaToMap(e.New)

	changes := make(map[string]FieldChange, len(e.ChangedFields))
	for _, field := range e.ChangedFields {
		changes[field] = FieldChange{Old: oldMap[field], New: newMap[field]}
	}
	return changes
}

// HasFieldChanged reports whether the named top-level field changed.
func (e *ReloadEvent) HasFieldChanged(field string) bool {
	for _, f := range e.ChangedFields {
		if f == field {
			return true
		}
	}
	return false
}

// diffFields compares two snapshots field by field through their JSON
// representation and returns the sorted names of changed top-level fields.
func diffFields(oldSchema, newSchema settings.Schema) []string {
	oldMap := schemaToMap(oldSchema)
	newMap := schemaToMap(newSchema)

	seen := make(map[string]struct{}, len(oldMap)+len(newMap))
	for k := range oldMap {
		seen[k] = struct{}{}
	}
	for k := range newMap {
		seen[k] = struct{}{}
	}

	var changed []string
	for k := range seen {
		if !reflect.DeepEqual(oldMap[k], newMap[k]) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

func schemaToMap(schema settings.Schema) map[string]interface{} {
	if schema == nil {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
