package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
)

// defaultUsers seeds the roster on first run, before anyone has saved a
// users file.
var defaultUsers = map[string]string{
	"Lucas":              "149613316",
	"Scott":              "181459152",
	"Steeeeeeeeeeeeeeve": "177163782",
	"Saif":               "84888953",
	"Dickson":            "60267601",
	"Kris":               "163608983",
}

// Roster persists the name→id user mapping backing all queries. The file
// format is a plain JSON object; the legacy list-of-objects form is still
// accepted on load.
type Roster struct {
	path string

	mu    sync.RWMutex
	users map[string]string
}

// LoadRoster reads users from path, falling back to the defaults when the
// file is missing or unreadable. The file is written on first run so it
// exists afterwards.
func LoadRoster(ctx context.Context, path string) *Roster {
	r := &Roster{path: path, users: loadUsers(ctx, path)}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := r.save(); err != nil {
			Log(ctx).Warn("problem saving initial users", "err", err)
		}
	}
	return r
}

func loadUsers(ctx context.Context, path string) map[string]string {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			Log(ctx).Warn("problem loading users", "err", err)
		}
		return maps.Clone(defaultUsers)
	}

	var m map[string]string
	if err := json.Unmarshal(raw, &m); err == nil && len(m) > 0 {
		return m
	}

	// Legacy form: [{"name": ..., "id": ...}, ...].
	var list []struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		m = map[string]string{}
		for _, u := range list {
			if u.Name != "" && u.ID != "" {
				m[u.Name] = u.ID
			}
		}
		if len(m) > 0 {
			return m
		}
	}

	Log(ctx).Warn("unrecognized users file, using defaults", "path", path)
	return maps.Clone(defaultUsers)
}

// Users returns a copy of the current mapping.
func (r *Roster) Users() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.users)
}

// Lookup resolves a user name to its source ID.
func (r *Roster) Lookup(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.users[name]
	return id, ok
}

// Add registers a new user and persists the roster. The in-memory mapping
// rolls back if the write fails.
func (r *Roster) Add(name, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[name]; ok {
		return fmt.Errorf("a user named %q already exists", name)
	}
	r.users[name] = id
	if err := r.save(); err != nil {
		delete(r.users, name)
		return fmt.Errorf("saving users: %w", err)
	}
	return nil
}

// Delete removes the given names and persists the roster if anything
// changed. The names actually removed are returned.
func (r *Roster) Delete(names ...string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := []string{}
	for _, name := range names {
		if _, ok := r.users[name]; ok {
			delete(r.users, name)
			deleted = append(deleted, name)
		}
	}
	if len(deleted) == 0 {
		return deleted, nil
	}
	if err := r.save(); err != nil {
		return deleted, fmt.Errorf("saving users: %w", err)
	}
	return deleted, nil
}

func (r *Roster) save() error {
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	raw, err := json.MarshalIndent(r.users, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.path, raw, 0o644)
}
