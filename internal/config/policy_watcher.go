package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"lockstep/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// PolicyWatcher watches .lockstep/policy.yaml for changes and delivers
// validated reloads to a callback. Invalid edits are logged and ignored so
// a half-saved file never degrades a running session.
type PolicyWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	policyPath  string
	onReload    func(Policy)
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats PolicyWatcherStats
}

// PolicyWatcherStats tracks watcher activity for debugging.
type PolicyWatcherStats struct {
	ReloadsApplied int
	ReloadsFailed  int
	LastEventTime  time.Time
}

// NewPolicyWatcher creates a watcher for workspace/.lockstep/policy.yaml.
func NewPolicyWatcher(workspace string, onReload func(Policy)) (*PolicyWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &PolicyWatcher{
		watcher:     watcher,
		policyPath:  filepath.Join(workspace, ".lockstep", "policy.yaml"),
		onReload:    onReload,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond, // Debounce rapid saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the watch loop runs in a goroutine.
func (pw *PolicyWatcher) Start(ctx context.Context) error {
	pw.mu.Lock()
	if pw.running {
		pw.mu.Unlock()
		return nil // Already running
	}
	pw.running = true
	pw.mu.Unlock()

	if err := pw.watcher.Add(filepath.Dir(pw.policyPath)); err != nil {
		pw.mu.Lock()
		pw.running = false
		pw.mu.Unlock()
		// The watcher is unusable and Stop will never run its close path;
		// release the fsnotify handle here.
		pw.watcher.Close()
		return err
	}

	go pw.watchLoop(ctx)
	logging.Policy("PolicyWatcher started: %s", pw.policyPath)
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (pw *PolicyWatcher) Stop() {
	pw.mu.Lock()
	if !pw.running {
		pw.mu.Unlock()
		return
	}
	pw.running = false
	pw.mu.Unlock()

	close(pw.stopCh)
	<-pw.doneCh
	pw.watcher.Close()
}

// Stats returns a copy of the watcher stats.
func (pw *PolicyWatcher) Stats() PolicyWatcherStats {
	pw.mu.RLock()
	defer pw.mu.RUnlock()
	return pw.stats
}

func (pw *PolicyWatcher) watchLoop(ctx context.Context) {
	defer close(pw.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-pw.stopCh:
			return
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if event.Name != pw.policyPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if pw.debounced(event.Name) {
				continue
			}
			pw.reload()
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryPolicy).Warn("watcher error: %v", err)
		}
	}
}

// debounced reports whether this path fired within the debounce window.
func (pw *PolicyWatcher) debounced(path string) bool {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	now := time.Now()
	if last, ok := pw.debounceMap[path]; ok && now.Sub(last) < pw.debounceDur {
		return true
	}
	pw.debounceMap[path] = now
	return false
}

func (pw *PolicyWatcher) reload() {
	policy, err := LoadPolicyFile(pw.policyPath)

	pw.mu.Lock()
	pw.stats.LastEventTime = time.Now()
	if err != nil {
		pw.stats.ReloadsFailed++
		pw.mu.Unlock()
		logging.Get(logging.CategoryPolicy).Warn("policy reload rejected: %v", err)
		return
	}
	pw.stats.ReloadsApplied++
	cb := pw.onReload
	pw.mu.Unlock()

	logging.Policy("policy reloaded from %s", pw.policyPath)
	if cb != nil {
		cb(policy)
	}
}
