package session

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// ArtifactPath returns the synthesized audio file mapped to the active turn at index.
func (m *Manager) ArtifactPath(index int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	path, ok := m.artifacts[index]
	return path, ok
}

// TrackedArtifacts returns every artifact path the session still owns.
func (m *Manager) TrackedArtifacts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.artifacts)+len(m.orphans))
	for _, p := range m.artifacts {
		out = append(out, p)
	}
	return append(out, m.orphans...)
}

// mapArtifact attaches path to the turn at index. An artifact already mapped there becomes an orphan.
func (m *Manager) mapArtifact(index int, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.artifacts[index]; ok && prev != path {
		m.orphans = append(m.orphans, prev)
	}
	m.artifacts[index] = path
}

// CleanupArtifacts deletes every tracked artifact and clears tracking.
// Files that fail to delete are logged and reported in the joined error; they are not retried.
func (m *Manager) CleanupArtifacts() (int, error) {
	m.mu.Lock()
	paths := make([]string, 0, len(m.artifacts)+len(m.orphans))
	for _, p := range m.artifacts {
		paths = append(paths, p)
	}
	paths = append(paths, m.orphans...)
	m.artifacts = make(map[int]string)
	m.orphans = nil
	m.mu.Unlock()

	removed := 0
	var errs []error
	for _, p := range paths {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, os.ErrNotExist):
		default:
			m.logger.Warn("artifact cleanup failed", zap.String("path", p), zap.Error(err))
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
		}
	}
	if removed > 0 {
		m.logger.Info("artifacts cleaned up", zap.Int("removed", removed))
	}
	return removed, errors.Join(errs...)
}
