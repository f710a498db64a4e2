package settings

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-viper/mapstructure/v2"

	"github.com/ajitpratap0/stratum/pkg/logger"
	"github.com/ajitpratap0/stratum/pkg/secrets"
	"github.com/ajitpratap0/stratum/pkg/source"
	"github.com/ajitpratap0/stratum/pkg/stratumerrors"
)

// snapshotBox wraps the cached schema so the atomic.Value always stores one
// concrete type regardless of which schema implementation is registered.
type snapshotBox struct {
	schema Schema
}

// Registry merges configuration sources by priority and builds validated,
// cached settings snapshots. Snapshot reads are lock-free; registration and
// rebuilds are serialized by a mutex.
type Registry struct {
	mu            sync.Mutex
	sources       []source.Source
	schemaFactory func() Schema
	secrets       *secrets.Manager
	resolveSecret bool
	snapshot      atomic.Value // *snapshotBox
}

// NewRegistry returns an empty registry using the default Settings schema.
func NewRegistry() *Registry {
	r := &Registry{
		schemaFactory: func() Schema { return NewSettings() },
	}
	r.snapshot.Store((*snapshotBox)(nil))
	return r
}

// AddSource registers a configuration source, keeping the source list stably
// sorted by ascending priority so equal priorities preserve insertion order.
func (r *Registry) AddSource(src source.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addSourceLocked(src)
}

func (r *Registry) addSourceLocked(src source.Source) {
	r.sources = append(r.sources, src)
	sort.SliceStable(r.sources, func(i, j int) bool {
		return r.sources[i].Priority() < r.sources[j].Priority()
	})
}

// Sources returns the registered sources in precedence order, highest first.
func (r *Registry) Sources() []source.Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]source.Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// SetSchema replaces the schema factory and invalidates any cached snapshot
// built with the previous schema.
func (r *Registry) SetSchema(factory func() Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemaFactory = factory
	r.snapshot.Store((*snapshotBox)(nil))
}

// SetSecretsResolver attaches a secrets manager used to resolve secret
// references in the merged configuration during snapshot construction.
func (r *Registry) SetSecretsResolver(m *secrets.Manager, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.secrets = m
	r.resolveSecret = enabled && m != nil
}

// GetMergedConfig loads every source and merges the results by priority.
// Later (higher-precedence) sources overwrite earlier ones key by key at the
// top level. A source load failure aborts the merge.
func (r *Registry) GetMergedConfig() (map[string]interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mergedConfigLocked()
}

func (r *Registry) mergedConfigLocked() (map[string]interface{}, error) {
	merged := make(map[string]interface{})
	// Iterate lowest precedence first so higher-precedence values win.
	for i := len(r.sources) - 1; i >= 0; i-- {
		src := r.sources[i]
		values, err := src.Load()
		if err != nil {
			return nil, stratumerrors.Wrap(err, stratumerrors.ErrorTypeConfig, "failed to load configuration source").
				WithDetail("source", src.Name())
		}
		for k, v := range values {
			merged[k] = v
		}
	}
	return merged, nil
}

// GetSnapshot returns the cached settings snapshot, building one on first
// use. The build pipeline is merge, optional secret resolution, decode,
// normalize, validate; the result is cached only when every step succeeds.
func (r *Registry) GetSnapshot(ctx context.Context) (Schema, error) {
	if box, ok := r.snapshot.Load().(*snapshotBox); ok && box != nil {
		return box.schema, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if box, ok := r.snapshot.Load().(*snapshotBox); ok && box != nil {
		return box.schema, nil
	}

	schema, err := r.buildLocked(ctx)
	if err != nil {
		return nil, err
	}
	r.snapshot.Store(&snapshotBox{schema: schema})
	return schema, nil
}

// Rebuild constructs a fresh snapshot and swaps it in only on success. On
// failure the previously cached snapshot stays in place, which is what makes
// hot reloads atomic.
func (r *Registry) Rebuild(ctx context.Context) (Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	schema, err := r.buildLocked(ctx)
	if err != nil {
		return nil, err
	}
	r.snapshot.Store(&snapshotBox{schema: schema})
	return schema, nil
}

func (r *Registry) buildLocked(ctx context.Context) (Schema, error) {
	merged, err := r.mergedConfigLocked()
	if err != nil {
		return nil, err
	}

	if r.resolveSecret {
		merged = r.secrets.ResolveConfigSecrets(ctx, merged)
	}

	schema := r.schemaFactory()
	if err := decodeInto(merged, schema); err != nil {
		return nil, err
	}

	if n, ok := schema.(Normalizer); ok {
		n.Normalize()
	}

	if err := schema.Validate(); err != nil {
		logger.Get().Debug("settings snapshot rejected by validation")
		if stratumerrors.IsType(err, stratumerrors.ErrorTypeValidation) {
			return nil, err
		}
		return nil, stratumerrors.Wrap(err, stratumerrors.ErrorTypeValidation, "settings validation failed")
	}
	return schema, nil
}

// decodeInto maps the merged configuration onto the schema struct. Unknown
// keys are ignored and string values are coerced to the target field types.
func decodeInto(merged map[string]interface{}, target Schema) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return stratumerrors.Wrap(err, stratumerrors.ErrorTypeInternal, "failed to construct settings decoder")
	}
	if err := decoder.Decode(merged); err != nil {
		return stratumerrors.Wrap(err, stratumerrors.ErrorTypeValidation, "merged configuration does not match schema")
	}
	return nil
}

// Invalidate drops the cached snapshot so the next read rebuilds it.
func (r *Registry) Invalidate() {
	r.snapshot.Store((*snapshotBox)(nil))
}

// Reset returns the registry to its initial state: no sources, default
// schema, no secrets resolver, no cached snapshot.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = nil
	r.schemaFactory = func() Schema { return NewSettings() }
	r.secrets = nil
	r.resolveSecret = false
	r.snapshot.Store((*snapshotBox)(nil))
}

// PushOverride installs a highest-precedence override source and returns a
// release function that removes exactly that source. Both installation and
// release invalidate the cached snapshot.
func (r *Registry) PushOverride(values map[string]interface{}) func() {
	src := source.NewScopedOverrideSource(values)

	r.mu.Lock()
	r.addSourceLocked(src)
	r.snapshot.Store((*snapshotBox)(nil))
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, s := range r.sources {
				if s == src {
					r.sources = append(r.sources[:i], r.sources[i+1:]...)
					break
				}
			}
			r.snapshot.Store((*snapshotBox)(nil))
		})
	}
}
