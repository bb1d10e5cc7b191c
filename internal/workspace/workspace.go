// Package workspace hands out private scratch directories, one per compile
// job, and removes them when the job is done.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"asmexplorer/internal/logging"
)

// DefaultPrefix names workspace directories when none is configured.
const DefaultPrefix = "explorer-compiler"

// Workspace is a directory exclusively owned by one job.
type Workspace struct {
	ID      string
	Path    string
	Created time.Time
}

// File returns the path of name inside the workspace.
func (w *Workspace) File(name string) string {
	return filepath.Join(w.Path, name)
}

// Manager creates and removes workspaces under a root directory.
type Manager struct {
	root   string
	prefix string

	mu     sync.Mutex
	active map[string]*Workspace
}

// NewManager returns a manager rooted at root (os.TempDir() when empty).
func NewManager(root, prefix string) *Manager {
	if root == "" {
		root = os.TempDir()
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Manager{
		root:   root,
		prefix: prefix,
		active: make(map[string]*Workspace),
	}
}

// Root returns the directory workspaces are created in.
func (m *Manager) Root() string {
	return m.root
}

// Acquire creates a new private directory named <prefix>-<uuid>.
func (m *Manager) Acquire() (*Workspace, error) {
	if err := os.MkdirAll(m.root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}

	id := uuid.NewString()
	path := filepath.Join(m.root, m.prefix+"-"+id)
	if err := os.Mkdir(path, 0700); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	ws := &Workspace{ID: id, Path: path, Created: time.Now()}
	m.mu.Lock()
	m.active[path] = ws
	m.mu.Unlock()

	logging.WorkspaceDebug("Acquired workspace %s", path)
	return ws, nil
}

// Release removes the workspace and everything in it. Releasing twice is a no-op.
func (m *Manager) Release(ws *Workspace) error {
	if ws == nil {
		return nil
	}
	m.mu.Lock()
	delete(m.active, ws.Path)
	m.mu.Unlock()

	if err := os.RemoveAll(ws.Path); err != nil {
		logging.WorkspaceWarn("Failed to remove workspace %s: %v", ws.Path, err)
		return fmt.Errorf("failed to remove workspace: %w", err)
	}
	logging.WorkspaceDebug("Released workspace %s after %s", ws.Path, time.Since(ws.Created))
	return nil
}

// Active returns the number of workspaces not yet released.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Sweep removes directories carrying this manager's prefix that are older
// than olderThan and not held by a live job. It returns how many it removed.
// Such directories are left behind only by a crashed process.
func (m *Manager) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list workspace root: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), m.prefix+"-") {
			continue
		}
		path := filepath.Join(m.root, entry.Name())

		m.mu.Lock()
		_, live := m.active[path]
		m.mu.Unlock()
		if live {
			continue
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			logging.WorkspaceWarn("Failed to sweep %s: %v", path, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		logging.WorkspaceDebug("Swept %d stale workspaces from %s", removed, m.root)
	}
	return removed, nil
}

// Start sweeps every interval until ctx is done. Directories must be at
// least one interval old to be swept.
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(interval); err != nil {
				logging.WorkspaceWarn("Workspace sweep failed: %v", err)
			}
		}
	}
}
