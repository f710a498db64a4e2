package hotreload

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratum/pkg/settings"
	"github.com/ajitpratap0/stratum/pkg/source"
)

// mutableSource lets tests change configuration between rebuilds.
type mutableSource struct {
	mu     sync.Mutex
	values map[string]interface{}
}

func (s *mutableSource) Name() string             { return "mutable" }
func (s *mutableSource) Priority() int            { return 1 }
func (s *mutableSource) SetPriority(priority int) {}
func (s *mutableSource) Load() (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

func (s *mutableSource) set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func newTestFactory(t *testing.T, src *mutableSource) *settings.Factory {
	t.Helper()
	f := settings.NewFactory()
	require.NoError(t, f.Configure(context.Background(), settings.WithSources(src)))
	return f
}

func TestConfigureRequiresFactory(t *testing.T) {
	m := NewManager()
	require.Error(t, m.Configure(nil, nil, nil))
}

func TestEnableRequiresConfiguration(t *testing.T) {
	m := NewManager()
	require.Error(t, m.Enable(context.Background()))
}

func TestTriggerReloadSwapsSnapshot(t *testing.T) {
	src := &mutableSource{values: map[string]interface{}{"SERVER_NAME": "before"}}
	factory := newTestFactory(t, src)

	dir := t.TempDir()
	m := NewManager()
	require.NoError(t, m.Configure(factory, []string{dir}, nil))
	require.NoError(t, m.Enable(context.Background()))
	defer m.Disable()

	assert.Equal(t, "before", m.CurrentSettings().(*settings.Settings).ServerName)

	src.set("SERVER_NAME", "after")
	var events []ReloadEvent
	m.OnReload(func(e ReloadEvent) { events = append(events, e) })

	ok := m.TriggerReload([]string{"manual.json"})
	require.True(t, ok)

	assert.Equal(t, "after", m.CurrentSettings().(*settings.Settings).ServerName)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"manual.json"}, events[0].ChangedFiles)
	assert.True(t, events[0].HasFieldChanged("SERVER_NAME"))
	assert.Equal(t, "file_change", events[0].Reason)
}

func TestTriggerReloadFailureKeepsSnapshot(t *testing.T) {
	src := &mutableSource{values: map[string]interface{}{"BACKEND_PORT": 8080}}
	factory := newTestFactory(t, src)

	dir := t.TempDir()
	m := NewManager()
	require.NoError(t, m.Configure(factory, []string{dir}, nil))
	require.NoError(t, m.Enable(context.Background()))
	defer m.Disable()

	before := m.CurrentSettings()

	hookCalls := 0
	m.OnReload(func(ReloadEvent) { hookCalls++ })

	src.set("BACKEND_PORT", -1)
	ok := m.TriggerReload(nil)

	assert.False(t, ok)
	assert.Same(t, before, m.CurrentSettings())
	assert.Zero(t, hookCalls)

	// The factory snapshot is also untouched.
	schema, err := factory.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8080, schema.(*settings.Settings).BackendPort)
}

func TestTriggerReloadHookPanicIsContained(t *testing.T) {
	src := &mutableSource{values: map[string]interface{}{"SERVER_NAME": "a"}}
	factory := newTestFactory(t, src)

	m := NewManager()
	require.NoError(t, m.Configure(factory, nil, []string{filepath.Join(t.TempDir(), "f.json")}))
	require.NoError(t, m.Enable(context.Background()))
	defer m.Disable()

	var secondRan bool
	m.OnReload(func(ReloadEvent) { panic("bad hook") })
	m.OnReload(func(ReloadEvent) { secondRan = true })

	src.set("SERVER_NAME", "b")
	ok := m.TriggerReload(nil)

	assert.True(t, ok)
	assert.True(t, secondRan)
}

func TestHookReleaseRemovesHook(t *testing.T) {
	src := &mutableSource{values: map[string]interface{}{"SERVER_NAME": "a"}}
	factory := newTestFactory(t, src)

	m := NewManager()
	require.NoError(t, m.Configure(factory, []string{t.TempDir()}, nil))
	require.NoError(t, m.Enable(context.Background()))
	defer m.Disable()

	var removed, kept int
	release := m.OnReload(func(ReloadEvent) { removed++ })
	m.OnReload(func(ReloadEvent) { kept++ })

	src.set("SERVER_NAME", "b")
	require.True(t, m.TriggerReload(nil))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, kept)

	release()
	release() // second call is a no-op

	src.set("SERVER_NAME", "c")
	require.True(t, m.TriggerReload(nil))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, kept)
}

func TestAsyncHookReleaseRemovesHook(t *testing.T) {
	src := &mutableSource{values: map[string]interface{}{"SERVER_NAME": "a"}}
	factory := newTestFactory(t, src)

	m := NewManager()
	require.NoError(t, m.Configure(factory, []string{t.TempDir()}, nil))
	require.NoError(t, m.Enable(context.Background()))

	var mu sync.Mutex
	calls := 0
	release := m.OnReloadAsync(func(ReloadEvent) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	release()

	src.set("SERVER_NAME", "b")
	require.True(t, m.TriggerReload(nil))
	m.Disable()

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

func TestAsyncHooksRunAndAreAwaitedOnDisable(t *testing.T) {
	src := &mutableSource{values: map[string]interface{}{"SERVER_NAME": "a"}}
	factory := newTestFactory(t, src)

	dir := t.TempDir()
	m := NewManager()
	require.NoError(t, m.Configure(factory, []string{dir}, nil))
	require.NoError(t, m.Enable(context.Background()))

	var mu sync.Mutex
	var asyncRan bool
	m.OnReloadAsync(func(ReloadEvent) {
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		asyncRan = true
		mu.Unlock()
	})

	src.set("SERVER_NAME", "b")
	require.True(t, m.TriggerReload(nil))

	// Disable waits for in-flight async hooks.
	m.Disable()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, asyncRan)
}

func TestDebounceCoalescesBursts(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"SERVER_NAME": "initial"}`), 0o644))

	factory := settings.NewFactory()
	require.NoError(t, factory.Configure(context.Background(),
		settings.WithSources(source.NewFileSource(configPath))))

	m := NewManager()
	require.NoError(t, m.Configure(factory, []string{dir}, nil))
	m.SetDebounce(200 * time.Millisecond)

	var mu sync.Mutex
	var reloads [][]string
	m.OnReload(func(e ReloadEvent) {
		mu.Lock()
		reloads = append(reloads, e.ChangedFiles)
		mu.Unlock()
	})

	require.NoError(t, m.Enable(context.Background()))
	defer m.Disable()

	// A burst of writes inside one debounce window, touching several files.
	extraPath := filepath.Join(dir, "extra.yaml")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(configPath, []byte(`{"SERVER_NAME": "updated"}`), 0o644))
		require.NoError(t, os.WriteFile(extraPath, []byte("IGNORED: true\n"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reloads) == 1
	}, 3*time.Second, 20*time.Millisecond)

	// No further reloads arrive after the window closes, and the single
	// reload carries the union of every touched file.
	time.Sleep(400 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reloads, 1)
	assert.Contains(t, reloads[0], configPath)
	assert.Contains(t, reloads[0], extraPath)

	assert.Equal(t, "updated", m.CurrentSettings().(*settings.Settings).ServerName)
}

func TestExplicitFileWatchIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"SERVER_NAME": "initial"}`), 0o644))

	factory := settings.NewFactory()
	require.NoError(t, factory.Configure(context.Background(),
		settings.WithSources(source.NewFileSource(configPath))))

	m := NewManager()
	require.NoError(t, m.Configure(factory, nil, []string{configPath}))
	m.SetDebounce(100 * time.Millisecond)

	var mu sync.Mutex
	var reloads [][]string
	m.OnReload(func(e ReloadEvent) {
		mu.Lock()
		reloads = append(reloads, e.ChangedFiles)
		mu.Unlock()
	})

	require.NoError(t, m.Enable(context.Background()))
	defer m.Disable()

	// A sibling in the same directory shares the fsnotify watch but is not
	// on the watch list; writing it must not trigger a reload.
	siblingPath := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(siblingPath, []byte("IGNORED: true\n"), 0o644))

	time.Sleep(400 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, reloads)
	mu.Unlock()

	// The explicitly watched file still reloads.
	require.NoError(t, os.WriteFile(configPath, []byte(`{"SERVER_NAME": "updated"}`), 0o644))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reloads) == 1
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][]string{{configPath}}, reloads)
}

func TestIsRelevantScopesExtensionsToWatchedDirs(t *testing.T) {
	watched := t.TempDir()
	outside := t.TempDir()
	explicit := filepath.Join(outside, "pinned.conf")

	m := NewManager()
	src := &mutableSource{values: map[string]interface{}{}}
	require.NoError(t, m.Configure(newTestFactory(t, src), []string{watched}, []string{explicit}))

	assert.True(t, m.isRelevant(filepath.Join(watched, "app.yaml")))
	assert.True(t, m.isRelevant(filepath.Join(watched, "sub", "deep.json")))
	assert.False(t, m.isRelevant(filepath.Join(watched, "notes.txt")))
	assert.True(t, m.isRelevant(explicit))
	assert.False(t, m.isRelevant(filepath.Join(outside, "stray.yaml")))
}

func TestDisableIsIdempotent(t *testing.T) {
	src := &mutableSource{values: map[string]interface{}{}}
	factory := newTestFactory(t, src)

	m := NewManager()
	require.NoError(t, m.Configure(factory, []string{t.TempDir()}, nil))
	require.NoError(t, m.Enable(context.Background()))
	assert.True(t, m.Enabled())

	m.Disable()
	assert.False(t, m.Enabled())
	m.Disable()

	// A disabled manager can be reconfigured and re-enabled.
	require.NoError(t, m.Configure(factory, []string{t.TempDir()}, nil))
	require.NoError(t, m.Enable(context.Background()))
	m.Disable()
}

func TestDiffFields(t *testing.T) {
	oldSettings := settings.NewSettings()
	oldSettings.ServerName = "old"
	oldSettings.BackendPort = 8080
	oldSettings.SecretKey = "shared"

	newSettings := settings.NewSettings()
	newSettings.ServerName = "new"
	newSettings.BackendPort = 9090
	newSettings.SecretKey = "shared"

	changed := diffFields(oldSettings, newSettings)
	assert.Contains(t, changed, "SERVER_NAME")
	assert.Contains(t, changed, "BACKEND_PORT")
	assert.NotContains(t, changed, "SECRET_KEY")

	event := ReloadEvent{Old: oldSettings, New: newSettings, ChangedFields: changed}
	values := event.ChangedValues()
	assert.Equal(t, "old", values["SERVER_NAME"].Old)
	assert.Equal(t, "new", values["SERVER_NAME"].New)
	assert.True(t, event.HasFieldChanged("SERVER_NAME"))
	assert.False(t, event.HasFieldChanged("SECRET_KEY"))
}
