package store

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/forgeworks/teamhub"
)

// snapshot is the whole-file shape Memory reads and writes, grounded on
// the teacher's persistence.go JSONPersistence, generalized from a
// flat []ProcessState slice to the two row kinds this module persists.
type snapshot struct {
	Teams     []teamhub.TeamRow     `json:"teams"`
	Templates []teamhub.TemplateRow `json:"templates"`
}

// Memory is a JSON-snapshot-file TeamStore/TemplateStore: the whole
// state lives in one file, rewritten wholesale on every mutation. It
// requires no cgo and no external database, used as cmd/teamhubd's
// default when no --db flag names a SQLite path, matching the
// teacher's own "runs with zero external services" posture.
type Memory struct {
	path string

	mu        sync.Mutex
	teams     map[string]teamhub.TeamRow
	templates map[string]teamhub.TemplateRow
}

// NewMemory constructs a Memory store backed by the JSON file at path.
func NewMemory(path string) *Memory {
	return &Memory{
		path:      path,
		teams:     make(map[string]teamhub.TeamRow),
		templates: make(map[string]teamhub.TemplateRow),
	}
}

// Init loads any existing snapshot from disk. A missing file is not an
// error: Memory starts empty, exactly as JSONPersistence.Load treats
// os.IsNotExist.
func (m *Memory) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	for _, t := range snap.Teams {
		m.teams[t.ID] = t
	}
	for _, t := range snap.Templates {
		m.templates[t.ID] = t
	}
	return nil
}

// Close is a no-op; every mutation already flushes to disk.
func (m *Memory) Close() error { return nil }

func (m *Memory) flushLocked() error {
	snap := snapshot{
		Teams:     make([]teamhub.TeamRow, 0, len(m.teams)),
		Templates: make([]teamhub.TemplateRow, 0, len(m.templates)),
	}
	for _, t := range m.teams {
		snap.Teams = append(snap.Teams, t)
	}
	for _, t := range m.templates {
		snap.Templates = append(snap.Templates, t)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

// SaveTeam upserts a team row and flushes the snapshot.
func (m *Memory) SaveTeam(row teamhub.TeamRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[row.ID] = row
	return m.flushLocked()
}

// GetTeam returns one team row, or ok=false if absent.
func (m *Memory) GetTeam(id string) (teamhub.TeamRow, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.teams[id]
	return row, ok, nil
}

// ListTeams returns every team for tenantID, or every team if tenantID
// is empty.
func (m *Memory) ListTeams(tenantID string) ([]teamhub.TeamRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []teamhub.TeamRow
	for _, row := range m.teams {
		if tenantID == "" || row.TenantID == tenantID {
			out = append(out, row)
		}
	}
	return out, nil
}

// DeleteTeam removes a team row and flushes the snapshot.
func (m *Memory) DeleteTeam(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.teams, id)
	return m.flushLocked()
}

// SaveTemplate upserts a template row and flushes the snapshot.
func (m *Memory) SaveTemplate(row teamhub.TemplateRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[row.ID] = row
	return m.flushLocked()
}

// GetTemplate returns one template row, or ok=false if absent.
func (m *Memory) GetTemplate(id string) (teamhub.TemplateRow, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.templates[id]
	return row, ok, nil
}

// ListTemplates returns every template visible to tenantID: its own
// plus every builtin one.
func (m *Memory) ListTemplates(tenantID string) ([]teamhub.TemplateRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []teamhub.TemplateRow
	for _, row := range m.templates {
		if row.Builtin || row.TenantID == tenantID {
			out = append(out, row)
		}
	}
	return out, nil
}

// DeleteTemplate removes a template row and flushes the snapshot.
func (m *Memory) DeleteTemplate(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.templates, id)
	return m.flushLocked()
}

var (
	_ teamhub.TeamStore     = (*Memory)(nil)
	_ teamhub.TemplateStore = (*Memory)(nil)
)
