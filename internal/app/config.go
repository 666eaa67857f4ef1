package app

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// ServerURL is the healing server (WebSocket streaming + PR endpoint).
	ServerURL string `yaml:"server_url"`
	// AgentURL is the execution agent that clones repos and owns sessions.
	AgentURL string `yaml:"agent_url"`
	// ProxyURL serves the GitHub repository listing for the picker.
	ProxyURL string `yaml:"proxy_url"`

	Language      string `yaml:"language"`
	BaseBranch    string `yaml:"base_branch"`
	MaxIterations int    `yaml:"max_iterations"`

	TeamName       string `yaml:"team_name"`
	TeamLeaderName string `yaml:"team_leader_name"`
	UserID         string `yaml:"user_id"`
	GithubToken    string `yaml:"github_token"`
}

func DefaultConfig() Config {
	return Config{
		Language:      "nodejs",
		BaseBranch:    "main",
		MaxIterations: 5,
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.GithubToken == "" {
		cfg.GithubToken = os.Getenv("GITHUB_TOKEN")
	}
	if cfg.Language == "" {
		cfg.Language = "nodejs"
	}
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 5
	}
	if cfg.MaxIterations > 20 {
		cfg.MaxIterations = 20
	}
	return cfg, nil
}

func SaveConfig(cfg Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if path == "" {
		return errors.New("no path provided for config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "greenbranch", "config.yml")
}

func DefaultStateDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "greenbranch")
	}
	return filepath.Join(base, "greenbranch")
}
