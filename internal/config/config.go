package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "CHATPOST"

type Config struct {
	GitHub  GitHubConfig  `mapstructure:"github"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Post    PostConfig    `mapstructure:"post"`
	Journal JournalConfig `mapstructure:"journal"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Alerts  AlertsConfig  `mapstructure:"alerts"`
	Log     LogConfig     `mapstructure:"log"`
}

type GitHubConfig struct {
	Token     string `mapstructure:"token"`
	Owner     string `mapstructure:"owner"`
	Repo      string `mapstructure:"repo"`
	Path      string `mapstructure:"path"`
	Branch    string `mapstructure:"branch"`
	APIURL    string `mapstructure:"api_url"`
	ViewerURL string `mapstructure:"viewer_url"`
}

type AgentConfig struct {
	Name string `mapstructure:"name"`
}

type PostConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DataDir string `mapstructure:"data_dir"`
}

type ArchiveConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
}

type AlertsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	SlackWebhook string `mapstructure:"slack_webhook"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("github.token", "")
	v.SetDefault("github.owner", "")
	v.SetDefault("github.repo", "")
	v.SetDefault("github.path", "")
	v.SetDefault("github.branch", "main")
	v.SetDefault("github.api_url", "https://api.github.com")
	v.SetDefault("github.viewer_url", "")
	v.SetDefault("agent.name", "")
	v.SetDefault("post.timeout", "15s")
	v.SetDefault("post.max_retries", 3)
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.data_dir", defaultDataDir())
	v.SetDefault("archive.database_url", "")
	v.SetDefault("alerts.enabled", false)
	v.SetDefault("alerts.slack_webhook", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the YAML file at configPath, overlays CHATPOST_* environment
// variables (a .env file in the working directory is loaded first) and
// validates the result. A missing config file is not an error; everything
// can come from the environment.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if expanded := os.ExpandEnv(val); expanded != val {
			v.Set(key, expanded)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.GitHub.Token == "" {
		config.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.GitHub.Token == "" {
		return fmt.Errorf("github.token is required")
	}
	if c.GitHub.Owner == "" {
		return fmt.Errorf("github.owner is required")
	}
	if c.GitHub.Repo == "" {
		return fmt.Errorf("github.repo is required")
	}
	if strings.Trim(c.GitHub.Path, "/") == "" {
		return fmt.Errorf("github.path is required")
	}
	if strings.TrimSpace(c.Agent.Name) == "" {
		return fmt.Errorf("agent.name is required")
	}

	if c.GitHub.Branch == "" {
		c.GitHub.Branch = "main"
	}
	if c.GitHub.APIURL == "" {
		c.GitHub.APIURL = "https://api.github.com"
	}
	if c.Post.Timeout <= 0 {
		c.Post.Timeout = 15 * time.Second
	}

	if c.Post.MaxRetries < 0 || c.Post.MaxRetries > 10 {
		return fmt.Errorf("post.max_retries must be between 0 and 10, got %d", c.Post.MaxRetries)
	}

	if c.Journal.Enabled && c.Journal.DataDir == "" {
		return fmt.Errorf("journal.data_dir is required when the journal is enabled")
	}

	if c.Alerts.Enabled && c.Alerts.SlackWebhook == "" {
		return fmt.Errorf("alerts.slack_webhook is required when alerts are enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s (valid options: debug, info, warn, error)", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (valid options: text, json)", c.Log.Format)
	}

	return nil
}

// ViewerLink is where the chat room renders the log. Without an explicit
// viewer_url it is the GitHub Pages URL of the log's directory.
func (g *GitHubConfig) ViewerLink() string {
	if g.ViewerURL != "" {
		return g.ViewerURL
	}

	link := fmt.Sprintf("https://%s.github.io/%s/", strings.ToLower(g.Owner), g.Repo)
	if dir := path.Dir(strings.Trim(g.Path, "/")); dir != "." && dir != "/" {
		link += dir + "/"
	}
	return link
}

// JournalPath is the bbolt file holding the local post journal.
func (j *JournalConfig) JournalPath() string {
	return filepath.Join(j.DataDir, "chatpost.db")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatpost"
	}
	return filepath.Join(home, ".chatpost")
}
