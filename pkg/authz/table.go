package authz

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/rentgrid/rentgrid/pkg/auth"
	"github.com/rentgrid/rentgrid/pkg/observability"
)

// RoleTable holds the role → resource type → actions mapping. Reads are
// lock-free in the common case of the built-in table; when a permissions
// file is loaded the table swaps atomically under the mutex so in-flight
// requests see either the old or the new table, never a partial one.
type RoleTable struct {
	mu    sync.RWMutex
	table map[auth.Role]RolePermissions

	logger  *observability.Logger
	watcher *fsnotify.Watcher
}

// NewRoleTable creates a role table with the built-in permissions
func NewRoleTable(logger *observability.Logger) *RoleTable {
	return &RoleTable{
		table:  DefaultRolePermissions(),
		logger: logger.WithField("component", "role_table"),
	}
}

// PermissionsFor returns the permissions for a role. Unknown roles get an
// empty map; callers must treat empty as deny.
func (t *RoleTable) PermissionsFor(role auth.Role) RolePermissions {
	t.mu.RLock()
	defer t.mu.RUnlock()

	perms, ok := t.table[role]
	if !ok {
		return RolePermissions{}
	}

	out := make(RolePermissions, len(perms))
	for rt, actions := range perms {
		out[rt] = append([]Action(nil), actions...)
	}
	return out
}

// Allows reports whether the role grants the action on the resource type
func (t *RoleTable) Allows(role auth.Role, resourceType ResourceType, action Action) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	perms, ok := t.table[role]
	if !ok {
		return false
	}
	for _, a := range perms[resourceType] {
		if a == action {
			return true
		}
	}
	return false
}

// permissionsFile is the YAML shape of a role table override
type permissionsFile struct {
	Roles map[string]map[string][]string `yaml:"roles"`
}

// LoadFile replaces the table with the contents of a YAML permissions file.
// The file must parse and reference only known roles, resource types, and
// actions; on any error the current table stays in effect.
func (t *RoleTable) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read permissions file: %w", err)
	}

	var parsed permissionsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse permissions file: %w", err)
	}

	table := make(map[auth.Role]RolePermissions, len(parsed.Roles))
	for roleName, resources := range parsed.Roles {
		role := auth.Role(roleName)
		if !role.IsValid() {
			return fmt.Errorf("permissions file references unknown role: %s", roleName)
		}

		perms := make(RolePermissions, len(resources))
		for rtName, actionNames := range resources {
			rt := ResourceType(rtName)
			if !rt.IsValid() {
				return fmt.Errorf("permissions file references unknown resource type: %s", rtName)
			}

			actions := make([]Action, 0, len(actionNames))
			for _, actionName := range actionNames {
				action := Action(actionName)
				if !action.IsValid() {
					return fmt.Errorf("permissions file references unknown action: %s", actionName)
				}
				actions = append(actions, action)
			}
			perms[rt] = actions
		}
		table[role] = perms
	}

	t.mu.Lock()
	t.table = table
	t.mu.Unlock()

	t.logger.WithField("path", path).Info("role permission table loaded from file")
	return nil
}

// Watch reloads the permissions file whenever it changes. Editors often
// replace files by rename, so the parent directory is watched and events
// are filtered by name. A reload failure keeps the previous table.
func (t *RoleTable) Watch(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	t.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := t.LoadFile(path); err != nil {
					t.logger.WithError(err).Warn("permissions file reload failed, keeping previous table")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				t.logger.WithError(err).Warn("permissions file watcher error")
			}
		}
	}()

	t.logger.WithField("path", path).Info("watching permissions file for changes")
	return nil
}

// Close stops the file watcher if one is running
func (t *RoleTable) Close() error {
	if t.watcher != nil {
		return t.watcher.Close()
	}
	return nil
}
