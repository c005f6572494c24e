// Package acl keeps the bot admin list and the runtime session whitelist,
// persisted as a small YAML document.
package acl

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
)

type document struct {
	Admins    []string `yaml:"admins"`
	Whitelist []string `yaml:"whitelist"`
}

// Store is a file-backed ports.ACL. An empty path keeps everything in memory.
type Store struct {
	path string

	mu        sync.RWMutex
	admins    map[string]struct{}
	whitelist map[string]struct{}
}

var _ ports.ACL = (*Store)(nil)

// Open loads path if it exists. seedAdmins are merged in without being
// written until the next change.
func Open(path string, seedAdmins ...string) (*Store, error) {
	s := &Store{
		path:      path,
		admins:    make(map[string]struct{}),
		whitelist: make(map[string]struct{}),
	}
	for _, id := range seedAdmins {
		if id != "" {
			s.admins[id] = struct{}{}
		}
	}

	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read acl %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse acl %s: %w", path, err)
	}
	for _, id := range doc.Admins {
		s.admins[id] = struct{}{}
	}
	for _, sid := range doc.Whitelist {
		s.whitelist[sid] = struct{}{}
	}
	return s, nil
}

func (s *Store) IsAdmin(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.admins[userID]
	return ok
}

func (s *Store) HasAdmins() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.admins) > 0
}

// AddAdmin grants admin rights. Adding an existing admin is a no-op.
func (s *Store) AddAdmin(userID string) error {
	return s.update(func() bool { return add(s.admins, userID) })
}

func (s *Store) RemoveAdmin(userID string) error {
	return s.update(func() bool { return remove(s.admins, userID) })
}

// Allow whitelists a session id such as "group:123".
func (s *Store) Allow(sessionID string) error {
	return s.update(func() bool { return add(s.whitelist, sessionID) })
}

func (s *Store) Disallow(sessionID string) error {
	return s.update(func() bool { return remove(s.whitelist, sessionID) })
}

func (s *Store) Allowed(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.whitelist[sessionID]
	return ok
}

// Admins returns the sorted admin ids.
func (s *Store) Admins() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.admins)
}

// Whitelist returns the sorted whitelisted session ids.
func (s *Store) Whitelist() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.whitelist)
}

func (s *Store) update(mutate func() bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !mutate() {
		return nil
	}
	return s.saveLocked()
}

// saveLocked writes the document atomically via a temp file and rename.
func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}

	data, err := yaml.Marshal(document{
		Admins:    sortedKeys(s.admins),
		Whitelist: sortedKeys(s.whitelist),
	})
	if err != nil {
		return fmt.Errorf("encode acl: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create acl dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write acl: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace acl: %w", err)
	}
	return nil
}

func add(set map[string]struct{}, id string) bool {
	if id == "" {
		return false
	}
	if _, ok := set[id]; ok {
		return false
	}
	set[id] = struct{}{}
	return true
}

func remove(set map[string]struct{}, id string) bool {
	if _, ok := set[id]; !ok {
		return false
	}
	delete(set, id)
	return true
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return slices.Clip(out)
}
