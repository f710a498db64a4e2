package hotreload

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stratum/pkg/logger"
	"github.com/ajitpratap0/stratum/pkg/settings"
	"github.com/ajitpratap0/stratum/pkg/stratumerrors"
)

// DefaultDebounce is the quiet period collected file events must satisfy
// before a reload fires.
const DefaultDebounce = 500 * time.Millisecond

// eventBuffer bounds the producer-to-consumer channel; events beyond it are
// dropped (the debounced reload reads full files, so drops lose nothing).
const eventBuffer = 64

// State describes the manager lifecycle.
type State int

const (
	// StateUnconfigured means Configure has not been called yet.
	StateUnconfigured State = iota
	// StateDisabled means the manager is configured but not watching.
	StateDisabled
	// StateEnabled means the watcher and reload loop are running.
	StateEnabled
)

// Hook receives a reload event. Sync hooks run in registration order on the
// reload goroutine; async hooks run on their own goroutines, best effort.
type Hook func(ReloadEvent)

// hookEntry pairs a hook with a registration id so release functions can
// remove exactly the hook they registered.
type hookEntry struct {
	id   uint64
	hook Hook
}

// watchExtensions are the file types that trigger reloads inside watched
// directories. Explicitly watched files match by path regardless of type.
var watchExtensions = map[string]struct{}{
	".json": {},
	".yaml": {},
	".yml":  {},
	".env":  {},
}

// Manager owns the file watcher and the reload pipeline. One goroutine reads
// raw fsnotify events and filters them; a second owns the debounce timer and
// triggers reloads. Reloads themselves are serialized and swap the settings
// snapshot only when the rebuild succeeds.
type Manager struct {
	mu       sync.Mutex
	state    State
	factory  *settings.Factory
	dirs     []string
	files    map[string]struct{}
	debounce time.Duration
	current  settings.Schema

	syncHooks  []hookEntry
	asyncHooks []hookEntry
	nextHookID uint64

	watcher *fsnotify.Watcher
	events  chan string
	stop    chan struct{}
	wg      sync.WaitGroup
	asyncWG sync.WaitGroup

	reloadMu sync.Mutex

	log *zap.Logger
}

// NewManager returns an unconfigured manager with the default debounce.
func NewManager() *Manager {
	return &Manager{
		debounce: DefaultDebounce,
		files:    make(map[string]struct{}),
		log:      logger.Get().With(zap.String("component", "hotreload")),
	}
}

// Configure binds the manager to a settings factory and the directories and
// files to watch. It fails while watching is enabled.
func (m *Manager) Configure(factory *settings.Factory, dirs []string, files []string) error {
	if factory == nil {
		return stratumerrors.New(stratumerrors.ErrorTypeConfig, "hot reload requires a settings factory")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateEnabled {
		return stratumerrors.New(stratumerrors.ErrorTypeConfig, "cannot reconfigure while watching is enabled")
	}

	m.factory = factory
	m.dirs = nil
	m.files = make(map[string]struct{})
	for _, d := range dirs {
		m.dirs = append(m.dirs, filepath.Clean(d))
	}
	for _, f := range files {
		m.files[filepath.Clean(f)] = struct{}{}
	}
	m.state = StateDisabled
	return nil
}

// SetDebounce overrides the debounce window. Non-positive values restore the
// default. Takes effect on the next Enable.
func (m *Manager) SetDebounce(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d <= 0 {
		d = DefaultDebounce
	}
	m.debounce = d
}

// OnReload registers a hook that runs synchronously, in registration order,
// after each successful reload. The returned release function removes exactly
// that hook; calling it more than once is a no-op.
func (m *Manager) OnReload(hook Hook) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextHookID++
	id := m.nextHookID
	m.syncHooks = append(m.syncHooks, hookEntry{id: id, hook: hook})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.syncHooks = removeHook(m.syncHooks, id)
		})
	}
}

// OnReloadAsync registers a hook that runs on its own goroutine after each
// successful reload. Failures are logged and never affect the reload. The
// returned release function removes exactly that hook.
func (m *Manager) OnReloadAsync(hook Hook) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextHookID++
	id := m.nextHookID
	m.asyncHooks = append(m.asyncHooks, hookEntry{id: id, hook: hook})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.asyncHooks = removeHook(m.asyncHooks, id)
		})
	}
}

func removeHook(entries []hookEntry, id uint64) []hookEntry {
	for i, e := range entries {
		if e.id == id {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}

// Enable builds the baseline snapshot, starts the file watcher, and launches
// the event and reload loops.
func (m *Manager) Enable(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateUnconfigured:
		return stratumerrors.New(stratumerrors.ErrorTypeConfig, "hot reload is not configured")
	case StateEnabled:
		return nil
	}

	baseline, err := m.factory.GetSettings(ctx)
	if err != nil {
		return stratumerrors.Wrap(err, stratumerrors.ErrorTypeConfig, "cannot enable hot reload without a valid baseline snapshot")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return stratumerrors.Wrap(err, stratumerrors.ErrorTypeWatch, "failed to create file watcher")
	}

	if err := m.addWatchTargets(watcher); err != nil {
		watcher.Close()
		return err
	}

	m.current = baseline
	m.watcher = watcher
	m.events = make(chan string, eventBuffer)
	m.stop = make(chan struct{})
	m.state = StateEnabled

	m.wg.Add(2)
	go m.watchLoop(watcher, m.events, m.stop)
	go m.reloadLoop(m.events, m.stop)

	m.log.Info("hot reload enabled",
		zap.Strings("dirs", m.dirs),
		zap.Int("files", len(m.files)),
		zap.Duration("debounce", m.debounce))
	return nil
}

// addWatchTargets registers every configured directory (recursively, since
// fsnotify watches are not recursive) plus the parent directory of each
// explicitly watched file.
func (m *Manager) addWatchTargets(watcher *fsnotify.Watcher) error {
	added := make(map[string]struct{})

	add := func(dir string) error {
		if _, ok := added[dir]; ok {
			return nil
		}
		if err := watcher.Add(dir); err != nil {
			return stratumerrors.Wrap(err, stratumerrors.ErrorTypeWatch, "failed to watch directory").
				WithDetail("dir", dir)
		}
		added[dir] = struct{}{}
		return nil
	}

	for _, root := range m.dirs {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return add(path)
			}
			return nil
		})
		if err != nil {
			return stratumerrors.Wrap(err, stratumerrors.ErrorTypeWatch, "failed to walk watch directory").
				WithDetail("dir", root)
		}
	}

	for file := range m.files {
		if err := add(filepath.Dir(file)); err != nil {
			return err
		}
	}
	return nil
}

// watchLoop filters raw fsnotify events down to relevant configuration file
// changes and forwards their paths without blocking.
func (m *Manager) watchLoop(watcher *fsnotify.Watcher, events chan<- string, stop <-chan struct{}) {
	defer m.wg.Done()

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !m.isRelevant(ev.Name) {
				continue
			}
			select {
			case events <- ev.Name:
			default:
				m.log.Debug("event buffer full, dropping file event", zap.String("path", ev.Name))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.log.Warn("file watcher error", zap.Error(err))
		case <-stop:
			return
		}
	}
}

// isRelevant accepts explicitly watched files by exact path, and otherwise
// only configuration-typed files that live under a watched directory. Events
// for siblings of explicitly watched files are ignored even though fsnotify
// reports them (their parent directory carries the watch).
func (m *Manager) isRelevant(path string) bool {
	clean := filepath.Clean(path)

	m.mu.Lock()
	_, watched := m.files[clean]
	dirs := m.dirs
	m.mu.Unlock()
	if watched {
		return true
	}

	if _, ok := watchExtensions[filepath.Ext(clean)]; !ok {
		return false
	}
	for _, dir := range dirs {
		if underDir(clean, dir) {
			return true
		}
	}
	return false
}

// underDir reports whether path is dir itself or contained within it.
func underDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// reloadLoop owns the debounce timer. Each incoming path restarts the timer;
// when it fires, the accumulated set of paths triggers a single reload.
func (m *Manager) reloadLoop(events <-chan string, stop <-chan struct{}) {
	defer m.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time
	pending := make(map[string]struct{})

	for {
		select {
		case path := <-events:
			pending[path] = struct{}{}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(m.debounceWindow())
			timerC = timer.C
		case <-timerC:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			pending = make(map[string]struct{})
			timerC = nil
			m.TriggerReload(paths)
		case <-stop:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (m *Manager) debounceWindow() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debounce
}

// TriggerReload rebuilds the settings snapshot and, on success, swaps it in
// and notifies hooks. On failure the previous snapshot stays active and the
// method returns false. Reloads are serialized; concurrent triggers queue.
func (m *Manager) TriggerReload(changedFiles []string) bool {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	m.mu.Lock()
	factory := m.factory
	old := m.current
	m.mu.Unlock()

	if factory == nil {
		m.log.Warn("reload triggered before configuration")
		return false
	}

	newSchema, err := factory.Rebuild(context.Background())
	if err != nil {
		m.log.Warn("reload rejected, keeping previous settings",
			zap.Strings("changed_files", changedFiles),
			zap.Error(err))
		return false
	}

	reason := "manual"
	if len(changedFiles) > 0 {
		reason = "file_change"
	}

	event := ReloadEvent{
		Old:           old,
		New:           newSchema,
		ChangedFiles:  changedFiles,
		ChangedFields: diffFields(old, newSchema),
		Reason:        reason,
	}

	m.mu.Lock()
	m.current = newSchema
	syncHooks := make([]hookEntry, len(m.syncHooks))
	copy(syncHooks, m.syncHooks)
	asyncHooks := make([]hookEntry, len(m.asyncHooks))
	copy(asyncHooks, m.asyncHooks)
	m.mu.Unlock()

	m.log.Info("settings reloaded",
		zap.Strings("changed_files", changedFiles),
		zap.Strings("changed_fields", event.ChangedFields),
		zap.String("reason", reason))

	for _, entry := range syncHooks {
		m.runHook(entry.hook, event)
	}
	for _, entry := range asyncHooks {
		m.asyncWG.Add(1)
		go func(h Hook) {
			defer m.asyncWG.Done()
			m.runHook(h, event)
		}(entry.hook)
	}
	return true
}

// runHook isolates hook panics so one misbehaving callback cannot break the
// reload pipeline.
func (m *Manager) runHook(hook Hook, event ReloadEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("reload hook panicked", zap.Any("panic", r))
		}
	}()
	hook(event)
}

// Disable stops the watcher and waits for the loops and any in-flight async
// hooks to finish. Safe to call repeatedly.
func (m *Manager) Disable() {
	m.mu.Lock()
	if m.state != StateEnabled {
		m.mu.Unlock()
		return
	}
	m.state = StateDisabled
	close(m.stop)
	if m.watcher != nil {
		m.watcher.Close()
		m.watcher = nil
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.asyncWG.Wait()
	m.log.Info("hot reload disabled")
}

// CurrentSettings returns the snapshot installed by the last successful
// reload, or the baseline captured at Enable.
func (m *Manager) CurrentSettings() settings.Schema {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Enabled reports whether the watcher is running.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateEnabled
}
