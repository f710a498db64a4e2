// Package source defines the configuration sources that feed the settings
// registry. Each source produces a raw key/value mapping on demand and carries
// a numeric priority; a lower number means higher precedence during the merge.
//
// Conventional priorities are defaults only and may be changed per instance:
//
//	environment = 1
//	override    = 2
//	profiles    = 2 (between override and file)
//	file        = 3
package source

// Conventional default priorities. Lower number = higher precedence.
const (
	PriorityOverrideScope = 0
	PriorityEnvironment   = 1
	PriorityOverride      = 2
	PriorityProfiles      = 2
	PriorityFile          = 3
)

// Source is a leaf provider of a raw key/value configuration mapping.
type Source interface {
	// Name identifies the source in logs and diagnostics.
	Name() string

	// Priority returns the merge priority. Lower numbers win.
	Priority() int

	// SetPriority overrides the conventional default priority.
	SetPriority(priority int)

	// Load produces the source's key/value mapping. Values may be nested
	// mappings or lists; the registry only overwrites at the top level.
	Load() (map[string]interface{}, error)
}
