package source

// OverrideMapSource wraps a caller-supplied mapping unchanged.
type OverrideMapSource struct {
	values   map[string]interface{}
	name     string
	priority int
}

// NewOverrideMapSource creates an override source around the given mapping.
func NewOverrideMapSource(values map[string]interface{}) *OverrideMapSource {
	return &OverrideMapSource{
		values:   values,
		name:     "override",
		priority: PriorityOverride,
	}
}

// NewScopedOverrideSource creates a highest-precedence override source used
// for temporary patch sets (test scopes). It participates in the same
// priority-merge pipeline as every other source.
func NewScopedOverrideSource(values map[string]interface{}) *OverrideMapSource {
	return &OverrideMapSource{
		values:   values,
		name:     "scoped-override",
		priority: PriorityOverrideScope,
	}
}

// Name identifies the source.
func (s *OverrideMapSource) Name() string { return s.name }

// Priority returns the merge priority.
func (s *OverrideMapSource) Priority() int { return s.priority }

// SetPriority overrides the default priority.
func (s *OverrideMapSource) SetPriority(priority int) { s.priority = priority }

// Load returns the wrapped mapping unchanged. The returned map is a shallow
// copy so callers cannot mutate the source through the merge result.
func (s *OverrideMapSource) Load() (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(s.values))
	for key, value := range s.values {
		out[key] = value
	}
	return out, nil
}
