package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/raidwatch/raidwatch/internal/notify"
)

const (
	// AutoToken in server.auth_token asks for a random token at startup.
	AutoToken = "auto"

	defaultManagerID  = "eternal-city"
	defaultWebhookEnv = "DISCORD_WEBHOOK_ETERNAL"
)

type Config struct {
	Server   ServerConfig             `yaml:"server"`
	Engine   EngineConfig             `yaml:"engine"`
	Managers map[string]ManagerConfig `yaml:"managers"`
	Monitor  MonitorConfig            `yaml:"monitor"`
	Logging  LoggingConfig            `yaml:"logging"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxConnections int      `yaml:"max_connections"`
}

// EngineConfig says how to launch the analysis engine. Relative paths are
// resolved against ResourceDir.
type EngineConfig struct {
	Python          string   `yaml:"python"`
	InterpreterArgs []string `yaml:"interpreter_args"`
	Script          string   `yaml:"script"`
	ResourceDir     string   `yaml:"resource_dir"`
}

type ManagerConfig struct {
	Enabled         *bool  `yaml:"enabled"`
	PluginPath      string `yaml:"plugin_path"`
	WebhookURL      string `yaml:"webhook_url"`
	WebhookEnv      string `yaml:"webhook_env"`
	WebhookUsername string `yaml:"webhook_username"`
}

type MonitorConfig struct {
	InvasionDebounce time.Duration `yaml:"invasion_debounce"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	NotifyTimeout    time.Duration `yaml:"notify_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Host:           "127.0.0.1",
			MaxConnections: 64,
		},
		Engine: EngineConfig{
			Python:          "python3",
			InterpreterArgs: []string{"-u"},
			Script:          "sniffer.py",
			ResourceDir:     "engine",
		},
		Managers: map[string]ManagerConfig{
			defaultManagerID: {
				WebhookEnv:      defaultWebhookEnv,
				WebhookUsername: "EternalCity Bot",
			},
		},
		Monitor: MonitorConfig{
			InvasionDebounce: 2 * time.Second,
			SnapshotInterval: 5 * time.Second,
			NotifyTimeout:    10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	cfg.fillManagerDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if os.IsNotExist(errors.Cause(err)) {
		return defaultConfig(), nil
	}
	return nil, err
}

// fillManagerDefaults restores per-manager defaults that a partial YAML
// entry replaced with zero values.
func (c *Config) fillManagerDefaults() {
	if c.Managers == nil {
		c.Managers = map[string]ManagerConfig{}
	}
	m := c.Managers[defaultManagerID]
	if m.WebhookEnv == "" {
		m.WebhookEnv = defaultWebhookEnv
	}
	if m.WebhookUsername == "" {
		m.WebhookUsername = "EternalCity Bot"
	}
	c.Managers[defaultManagerID] = m
}

func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return errors.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}
	if c.Monitor.InvasionDebounce < 0 {
		return errors.New("monitor.invasion_debounce must not be negative")
	}
	return nil
}

// ManagerEnabled reports whether the manager should be offered. Managers
// without an entry, or without an explicit enabled flag, are enabled.
func (c *Config) ManagerEnabled(id string) bool {
	m, ok := c.Managers[id]
	if !ok || m.Enabled == nil {
		return true
	}
	return *m.Enabled
}

// Webhook returns the webhook target for a manager. An empty webhook_url
// falls back to the environment variable named by webhook_env.
func (c *Config) Webhook(id string) notify.Target {
	m := c.Managers[id]
	url := m.WebhookURL
	if url == "" && m.WebhookEnv != "" {
		url = os.Getenv(m.WebhookEnv)
	}
	return notify.Target{URL: strings.TrimSpace(url), Username: m.WebhookUsername}
}

// Webhooks returns Webhook for every configured manager.
func (c *Config) Webhooks() map[string]notify.Target {
	out := make(map[string]notify.Target, len(c.Managers))
	for id := range c.Managers {
		out[id] = c.Webhook(id)
	}
	return out
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GenerateToken returns a random 32 character hex token.
func GenerateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Diff describes what changed between two configs, one line per setting.
// Webhook URLs are reported as set or unset, never by value.
func Diff(old, new *Config) []string {
	var changes []string
	add := func(key string, a, b any) {
		if fmt.Sprint(a) != fmt.Sprint(b) {
			changes = append(changes, fmt.Sprintf("%s: %v → %v", key, a, b))
		}
	}

	add("server.host", old.Server.Host, new.Server.Host)
	add("server.port", old.Server.Port, new.Server.Port)
	add("server.auth_token", redact(old.Server.AuthToken), redact(new.Server.AuthToken))
	add("server.allowed_origins", old.Server.AllowedOrigins, new.Server.AllowedOrigins)
	add("server.max_connections", old.Server.MaxConnections, new.Server.MaxConnections)

	add("engine.python", old.Engine.Python, new.Engine.Python)
	add("engine.interpreter_args", old.Engine.InterpreterArgs, new.Engine.InterpreterArgs)
	add("engine.script", old.Engine.Script, new.Engine.Script)
	add("engine.resource_dir", old.Engine.ResourceDir, new.Engine.ResourceDir)

	ids := map[string]bool{}
	for id := range old.Managers {
		ids[id] = true
	}
	for id := range new.Managers {
		ids[id] = true
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)
	for _, id := range sorted {
		prefix := "managers." + id + "."
		add(prefix+"enabled", old.ManagerEnabled(id), new.ManagerEnabled(id))
		add(prefix+"plugin_path", old.Managers[id].PluginPath, new.Managers[id].PluginPath)
		add(prefix+"webhook", redact(old.Webhook(id).URL), redact(new.Webhook(id).URL))
		add(prefix+"webhook_username", old.Managers[id].WebhookUsername, new.Managers[id].WebhookUsername)
	}

	add("monitor.invasion_debounce", old.Monitor.InvasionDebounce, new.Monitor.InvasionDebounce)
	add("monitor.snapshot_interval", old.Monitor.SnapshotInterval, new.Monitor.SnapshotInterval)
	add("monitor.notify_timeout", old.Monitor.NotifyTimeout, new.Monitor.NotifyTimeout)
	add("logging.level", old.Logging.Level, new.Logging.Level)
	add("logging.format", old.Logging.Format, new.Logging.Format)
	return changes
}

func redact(s string) string {
	if s == "" {
		return "unset"
	}
	return "set"
}
