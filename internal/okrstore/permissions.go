package okrstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Write rules understood in permissions.yml.
const (
	RuleOwnerIDMatch        = "owner_id_match"
	RuleDelegatedExplicitly = "delegated_explicitly"
)

// PermissionConfig mirrors okrs/permissions.yml.
type PermissionConfig struct {
	Permissions struct {
		Write []string `yaml:"write"`
	} `yaml:"permissions"`

	// Admins may check in on any key result and override objective progress.
	Admins []string `yaml:"admins"`

	// Delegations optionally maps owner_id -> list of actor ids allowed to write.
	Delegations map[string][]string `yaml:"delegations"`
}

// DefaultPermissions lets owners update their own key results and nothing else.
func DefaultPermissions() *PermissionConfig {
	cfg := &PermissionConfig{}
	cfg.Permissions.Write = []string{RuleOwnerIDMatch}
	return cfg
}

// LoadPermissionConfig reads the permissions YAML from the provided path.
func LoadPermissionConfig(path string) (*PermissionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read permissions file: %w", err)
	}
	var cfg PermissionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse permissions file: %w", err)
	}
	for _, rule := range cfg.Permissions.Write {
		switch strings.TrimSpace(rule) {
		case RuleOwnerIDMatch, RuleDelegatedExplicitly:
		default:
			return nil, fmt.Errorf("parse permissions file: unknown write rule %q", rule)
		}
	}
	return &cfg, nil
}

// LoadPermissionsForDir reads dir/permissions.yml, falling back to DefaultPermissions.
func LoadPermissionsForDir(dir string) (*PermissionConfig, error) {
	path := filepath.Join(dir, PermissionsFile)
	if _, err := os.Stat(path); err == nil {
		return LoadPermissionConfig(path)
	}
	return DefaultPermissions(), nil
}

// CanCheckIn returns whether actor may record a new value on a key result
// owned by ownerID.
func (c *PermissionConfig) CanCheckIn(actor, ownerID string) bool {
	actor = strings.TrimSpace(actor)
	ownerID = strings.TrimSpace(ownerID)
	if c == nil || actor == "" {
		return false
	}
	if c.IsAdmin(actor) {
		return true
	}
	if ownerID == "" {
		return false
	}

	writeRules := make(map[string]struct{})
	for _, r := range c.Permissions.Write {
		writeRules[strings.TrimSpace(r)] = struct{}{}
	}

	if _, ok := writeRules[RuleOwnerIDMatch]; ok && actor == ownerID {
		return true
	}

	if _, ok := writeRules[RuleDelegatedExplicitly]; ok {
		if c.isDelegated(actor, ownerID) {
			return true
		}
	}

	return false
}

// CanOverride returns whether actor may pin objective progress manually.
func (c *PermissionConfig) CanOverride(actor string) bool {
	return c.IsAdmin(actor)
}

// IsAdmin reports whether actor is listed under admins.
func (c *PermissionConfig) IsAdmin(actor string) bool {
	actor = strings.TrimSpace(actor)
	if c == nil || actor == "" {
		return false
	}
	for _, admin := range c.Admins {
		if strings.TrimSpace(admin) == actor {
			return true
		}
	}
	return false
}

func (c *PermissionConfig) isDelegated(actor, ownerID string) bool {
	if c == nil || len(c.Delegations) == 0 {
		return false
	}
	for _, candidate := range c.Delegations[ownerID] {
		if strings.TrimSpace(candidate) == actor {
			return true
		}
	}
	return false
}
