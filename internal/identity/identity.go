// Package identity names a peer for one session and remembers the display
// name across runs.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Identity is how one peer presents itself: a per-session opaque id and a
// human display name.
type Identity struct {
	ID   string
	Name string
}

// New mints a session identity. The id is never reused across runs.
func New(name string) Identity {
	return Identity{
		ID:   uuid.NewString(),
		Name: strings.TrimSpace(name),
	}
}

// Profile holds persistable user preferences
type Profile struct {
	Name string `json:"name"`
}

// ProfileStore handles loading and saving the user profile
type ProfileStore struct {
	path string
}

// NewProfileStore creates a store with the default config path
func NewProfileStore() (*ProfileStore, error) {
	path, err := profilePath()
	if err != nil {
		return nil, err
	}
	return &ProfileStore{path: path}, nil
}

// NewProfileStoreAt creates a store with an explicit path, for tests.
func NewProfileStoreAt(path string) *ProfileStore {
	return &ProfileStore{path: path}
}

// profilePath returns the profile file path.
// Uses XDG_CONFIG_HOME if set, otherwise the OS user config dir.
func profilePath() (string, error) {
	var configDir string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "peerbeam")
	} else {
		userConfigDir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(userConfigDir, "peerbeam")
	}

	return filepath.Join(configDir, "profile.json"), nil
}

// Load reads the stored profile. A missing or unreadable file is not an
// error; it just means nothing was saved yet.
func (s *ProfileStore) Load() Profile {
	var p Profile

	data, err := os.ReadFile(s.path)
	if err != nil {
		return p
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}
	}
	return p
}

// Save writes the profile, creating the config directory if needed.
func (s *ProfileStore) Save(p Profile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// ResolveName picks the display name for a session: an explicit name wins,
// then the saved profile, then the OS username.
func ResolveName(explicit string, store *ProfileStore) string {
	if name := strings.TrimSpace(explicit); name != "" {
		return name
	}
	if store != nil {
		if saved := strings.TrimSpace(store.Load().Name); saved != "" {
			return saved
		}
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "anonymous"
}
