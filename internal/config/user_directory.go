package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

type directoryEntry struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Email        string `yaml:"email"`
	Role         string `yaml:"role"`
	Area         string `yaml:"area"`
	Sound        *bool  `yaml:"sound"`
	SystemAlerts *bool  `yaml:"system_alerts"`
	EmailAlerts  *bool  `yaml:"email_alerts"`
	Inactive     bool   `yaml:"inactive"`
}

// Users reads the seed directory. Without a seed file it returns nil.
//
//	users:
//	  - id: op-1
//	    role: operator
//	    area: logistics
//	    email: op1@example.com
func (d DirectoryConfig) Users() ([]domain.User, error) {
	if d.SeedFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(d.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("read user directory: %w", err)
	}
	return parseDirectory(data)
}

func parseDirectory(data []byte) ([]domain.User, error) {
	var file struct {
		Users []directoryEntry `yaml:"users"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse user directory: %w", err)
	}

	users := make([]domain.User, 0, len(file.Users))
	seen := make(map[string]bool, len(file.Users))
	for i, e := range file.Users {
		if e.ID == "" {
			return nil, fmt.Errorf("user directory: entry %d has no id", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("user directory: duplicate id %q", e.ID)
		}
		seen[e.ID] = true

		role := domain.Role(e.Role)
		if !role.Valid() {
			return nil, fmt.Errorf("user directory: %s: unknown role %q", e.ID, e.Role)
		}
		area := domain.Area(e.Area)
		if area != "" && !area.Valid() {
			return nil, fmt.Errorf("user directory: %s: unknown area %q", e.ID, e.Area)
		}
		users = append(users, domain.User{
			ID:                  e.ID,
			Name:                e.Name,
			Email:               e.Email,
			Role:                role,
			Area:                area,
			SoundEnabled:        boolOr(e.Sound, true),
			SystemAlertsEnabled: boolOr(e.SystemAlerts, true),
			EmailEnabled:        boolOr(e.EmailAlerts, e.Email != ""),
			Active:              !e.Inactive,
		})
	}
	return users, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
