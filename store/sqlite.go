// Package store implements teamhub.TeamStore and teamhub.TemplateStore,
// grounded on the teacher's serve/store_sqlite.go: a pure-Go
// modernc.org/sqlite backend with WAL mode, schema-on-Init, and
// JSON-encoded composite columns for the roster/channel slices.
package store

import (
	"database/sql"
	"encoding/json"

	_ "modernc.org/sqlite"

	"github.com/forgeworks/teamhub"
)

// SQLiteStore implements both teamhub.TeamStore and teamhub.TemplateStore
// over a single database file, following the teacher's one-file,
// one-schema convention.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Init creates the schema tables.
func (s *SQLiteStore) Init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS teams (
		id         TEXT PRIMARY KEY,
		tenant_id  TEXT NOT NULL,
		name       TEXT NOT NULL,
		repo_url   TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL,
		channels   TEXT NOT NULL DEFAULT '[]',
		chat_port  INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		id                 TEXT PRIMARY KEY,
		team_id            TEXT NOT NULL,
		role               TEXT NOT NULL,
		model              TEXT NOT NULL DEFAULT '',
		runtime            TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL,
		last_heartbeat_at  DATETIME
	);

	CREATE TABLE IF NOT EXISTS templates (
		id          TEXT PRIMARY KEY,
		tenant_id   TEXT NOT NULL DEFAULT '',
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		builtin     INTEGER NOT NULL DEFAULT 0,
		agents      TEXT NOT NULL DEFAULT '[]',
		env         TEXT NOT NULL DEFAULT '{}',
		tags        TEXT NOT NULL DEFAULT '[]',
		created_at  DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_teams_tenant ON teams(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_agents_team ON agents(team_id);
	CREATE INDEX IF NOT EXISTS idx_templates_tenant ON templates(tenant_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveTeam upserts a team row plus its full agent roster. The roster is
// replaced wholesale (delete+reinsert) rather than diffed, matching the
// coarse-grained write pattern teamhub.LifecycleManager actually uses:
// one SaveTeam call per transition, never a partial patch.
func (s *SQLiteStore) SaveTeam(row teamhub.TeamRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	channelsJSON, _ := json.Marshal(row.Channels)
	_, err = tx.Exec(
		`INSERT INTO teams (id, tenant_id, name, repo_url, status, channels, chat_port, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   tenant_id=excluded.tenant_id, name=excluded.name, repo_url=excluded.repo_url,
		   status=excluded.status, channels=excluded.channels, chat_port=excluded.chat_port,
		   updated_at=excluded.updated_at`,
		row.ID, row.TenantID, row.Name, row.RepoURL, row.Status, string(channelsJSON), row.ChatPort, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM agents WHERE team_id = ?`, row.ID); err != nil {
		return err
	}
	for _, a := range row.Agents {
		var lastHB interface{}
		if a.LastHeartbeatAt != nil {
			lastHB = *a.LastHeartbeatAt
		}
		if _, err := tx.Exec(
			`INSERT INTO agents (id, team_id, role, model, runtime, status, last_heartbeat_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, row.ID, a.Role, a.Model, a.Runtime, a.Status, lastHB,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetTeam returns one team row with its agents, or ok=false if absent.
func (s *SQLiteStore) GetTeam(id string) (teamhub.TeamRow, bool, error) {
	row := s.db.QueryRow(
		`SELECT id, tenant_id, name, repo_url, status, channels, chat_port, created_at, updated_at
		 FROM teams WHERE id = ?`, id,
	)
	team, err := scanTeamRow(row)
	if err == sql.ErrNoRows {
		return teamhub.TeamRow{}, false, nil
	}
	if err != nil {
		return teamhub.TeamRow{}, false, err
	}

	agents, err := s.agentsForTeam(id)
	if err != nil {
		return teamhub.TeamRow{}, false, err
	}
	team.Agents = agents
	return team, true, nil
}

// ListTeams returns every team for tenantID, or every team if tenantID
// is empty (used by Rehydrate's full-fleet reconciliation pass).
func (s *SQLiteStore) ListTeams(tenantID string) ([]teamhub.TeamRow, error) {
	var rows *sql.Rows
	var err error
	if tenantID == "" {
		rows, err = s.db.Query(
			`SELECT id, tenant_id, name, repo_url, status, channels, chat_port, created_at, updated_at FROM teams`,
		)
	} else {
		rows, err = s.db.Query(
			`SELECT id, tenant_id, name, repo_url, status, channels, chat_port, created_at, updated_at
			 FROM teams WHERE tenant_id = ?`, tenantID,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []teamhub.TeamRow
	for rows.Next() {
		team, err := scanTeamRow(rows)
		if err != nil {
			return nil, err
		}
		agents, err := s.agentsForTeam(team.ID)
		if err != nil {
			return nil, err
		}
		team.Agents = agents
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

// DeleteTeam removes a team row and its agents.
func (s *SQLiteStore) DeleteTeam(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM agents WHERE team_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM teams WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTeamRow(r rowScanner) (teamhub.TeamRow, error) {
	var team teamhub.TeamRow
	var channelsJSON string
	if err := r.Scan(
		&team.ID, &team.TenantID, &team.Name, &team.RepoURL, &team.Status,
		&channelsJSON, &team.ChatPort, &team.CreatedAt, &team.UpdatedAt,
	); err != nil {
		return teamhub.TeamRow{}, err
	}
	json.Unmarshal([]byte(channelsJSON), &team.Channels)
	return team, nil
}

func (s *SQLiteStore) agentsForTeam(teamID string) ([]teamhub.AgentRow, error) {
	rows, err := s.db.Query(
		`SELECT id, role, model, runtime, status, last_heartbeat_at FROM agents WHERE team_id = ?`, teamID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []teamhub.AgentRow
	for rows.Next() {
		var a teamhub.AgentRow
		var lastHB sql.NullTime
		if err := rows.Scan(&a.ID, &a.Role, &a.Model, &a.Runtime, &a.Status, &lastHB); err != nil {
			return nil, err
		}
		if lastHB.Valid {
			t := lastHB.Time
			a.LastHeartbeatAt = &t
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// SaveTemplate upserts a template row.
func (s *SQLiteStore) SaveTemplate(row teamhub.TemplateRow) error {
	agentsJSON, _ := json.Marshal(row.Agents)
	envJSON, _ := json.Marshal(row.Env)
	tagsJSON, _ := json.Marshal(row.Tags)

	builtin := 0
	if row.Builtin {
		builtin = 1
	}

	_, err := s.db.Exec(
		`INSERT INTO templates (id, tenant_id, name, description, builtin, agents, env, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   tenant_id=excluded.tenant_id, name=excluded.name, description=excluded.description,
		   builtin=excluded.builtin, agents=excluded.agents, env=excluded.env, tags=excluded.tags`,
		row.ID, row.TenantID, row.Name, row.Description, builtin, string(agentsJSON), string(envJSON), string(tagsJSON), row.CreatedAt,
	)
	return err
}

// GetTemplate returns one template row, or ok=false if absent.
func (s *SQLiteStore) GetTemplate(id string) (teamhub.TemplateRow, bool, error) {
	row := s.db.QueryRow(
		`SELECT id, tenant_id, name, description, builtin, agents, env, tags, created_at
		 FROM templates WHERE id = ?`, id,
	)
	tmpl, err := scanTemplateRow(row)
	if err == sql.ErrNoRows {
		return teamhub.TemplateRow{}, false, nil
	}
	if err != nil {
		return teamhub.TemplateRow{}, false, err
	}
	return tmpl, true, nil
}

// ListTemplates returns every template visible to tenantID: its own
// plus every builtin one.
func (s *SQLiteStore) ListTemplates(tenantID string) ([]teamhub.TemplateRow, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, name, description, builtin, agents, env, tags, created_at
		 FROM templates WHERE tenant_id = ? OR builtin = 1 ORDER BY created_at DESC`, tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []teamhub.TemplateRow
	for rows.Next() {
		tmpl, err := scanTemplateRow(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tmpl)
	}
	return templates, rows.Err()
}

// DeleteTemplate removes a template row.
func (s *SQLiteStore) DeleteTemplate(id string) error {
	_, err := s.db.Exec(`DELETE FROM templates WHERE id = ?`, id)
	return err
}

func scanTemplateRow(r rowScanner) (teamhub.TemplateRow, error) {
	var tmpl teamhub.TemplateRow
	var agentsJSON, envJSON, tagsJSON string
	var builtin int
	if err := r.Scan(
		&tmpl.ID, &tmpl.TenantID, &tmpl.Name, &tmpl.Description, &builtin,
		&agentsJSON, &envJSON, &tagsJSON, &tmpl.CreatedAt,
	); err != nil {
		return teamhub.TemplateRow{}, err
	}
	tmpl.Builtin = builtin != 0
	json.Unmarshal([]byte(agentsJSON), &tmpl.Agents)
	json.Unmarshal([]byte(envJSON), &tmpl.Env)
	json.Unmarshal([]byte(tagsJSON), &tmpl.Tags)
	return tmpl, nil
}

var (
	_ teamhub.TeamStore     = (*SQLiteStore)(nil)
	_ teamhub.TemplateStore = (*SQLiteStore)(nil)
)
