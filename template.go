package teamhub

import "time"

// Template is a reusable agent roster a tenant (or the process itself,
// for builtins) can CRUD and later hand to CreateTeam as a starting
// point for AgentSpec list. Builtin templates are read-only and loaded
// at process init; custom templates are scoped to a tenant.
type Template struct {
	ID          string
	TenantID    string // empty for builtin templates
	Name        string
	Description string
	Builtin     bool
	Agents      []AgentSpec
	Env         map[string]string
	Tags        []string
	CreatedAt   time.Time
}

// ValidateTemplate checks the invariants a Template must satisfy
// before it is persisted.
func ValidateTemplate(t Template) error {
	if t.Name == "" {
		return NewError(KindValidation, "ValidateTemplate", "name must not be empty", nil)
	}
	if len(t.Agents) == 0 {
		return NewError(KindValidation, "ValidateTemplate", "at least one agent is required", nil)
	}
	return nil
}
