// Package features is a small persisted flag store for toggling app
// surfaces (swap tab, charts, referrals) without a redeploy.
package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Defaults seed a fresh store.
var Defaults = map[string]bool{
	"swapEnabled":      true,
	"buyEnabled":       false,
	"marketsEnabled":   true,
	"referralsEnabled": true,
	"importEnabled":    true,
}

// Store persists feature flags at <data>/features.json.
type Store struct {
	mu    sync.Mutex
	path  string
	flags map[string]bool
}

func NewStore(dataRoot string) (*Store, error) {
	s := &Store{
		path:  filepath.Join(dataRoot, "features.json"),
		flags: make(map[string]bool, len(Defaults)),
	}
	for k, v := range Defaults {
		s.flags[k] = v
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	var saved map[string]bool
	if err := json.Unmarshal(raw, &saved); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	for k, v := range saved {
		s.flags[k] = v
	}
	return s, nil
}

// All returns a copy of the current flags.
func (s *Store) All() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.flags))
	for k, v := range s.flags {
		out[k] = v
	}
	return out
}

// Enabled reports one flag; unknown flags are off.
func (s *Store) Enabled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[name]
}

// Set updates one flag and persists the whole map atomically.
func (s *Store) Set(name string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[name] = on

	data, err := json.MarshalIndent(s.flags, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
