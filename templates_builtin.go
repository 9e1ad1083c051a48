package teamhub

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var builtinTemplatesFS embed.FS

// builtinTemplateFile is the on-disk shape of a builtin template,
// parsed with yaml.v3 the way the teacher's skills/parser.go parses
// SKILL.md frontmatter.
type builtinTemplateFile struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Agents      []AgentSpec       `yaml:"agents"`
	Env         map[string]string `yaml:"env"`
	Tags        []string          `yaml:"tags"`
}

// LoadBuiltinTemplates parses every templates/*.yaml file embedded in
// the binary into read-only TemplateRow values (TenantID empty,
// Builtin true). cmd/teamhubd seeds these into the configured
// TemplateStore on startup so every tenant sees the same starter
// rosters without needing its own TemplateStore entries.
func LoadBuiltinTemplates() ([]TemplateRow, error) {
	entries, err := builtinTemplatesFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("read embedded templates: %w", err)
	}

	rows := make([]TemplateRow, 0, len(entries))
	for _, entry := range entries {
		data, err := builtinTemplatesFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		var f builtinTemplateFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		rows = append(rows, TemplateRow{
			ID:          "builtin-" + f.Name,
			Name:        f.Name,
			Description: f.Description,
			Builtin:     true,
			Agents:      f.Agents,
			Env:         f.Env,
			Tags:        f.Tags,
		})
	}
	return rows, nil
}
