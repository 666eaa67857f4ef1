package app

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Prefs are the three values another surface may pre-seed for the next run.
// They are read once at startup and cleared, so a stale repo URL never leaks
// into a later session.
type Prefs struct {
	RepoURL        string `json:"repo_url,omitempty"`
	TeamName       string `json:"team_name,omitempty"`
	TeamLeaderName string `json:"team_leader_name,omitempty"`
}

func DefaultPrefsPath() string {
	return filepath.Join(DefaultStateDir(), "prefs.json")
}

func LoadPrefs(path string) (Prefs, error) {
	var p Prefs
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return Prefs{}, err
	}
	return p, nil
}

func SavePrefs(p Prefs, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// TakePrefs loads the pre-seeded values and clears the file in one step.
func TakePrefs(path string) (Prefs, error) {
	p, err := LoadPrefs(path)
	if err != nil {
		return p, err
	}
	if p != (Prefs{}) {
		if err := SavePrefs(Prefs{}, path); err != nil {
			return p, err
		}
	}
	return p, nil
}
