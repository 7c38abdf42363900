// Package config loads clawless's single YAML configuration document and
// offers a minimal interactive line-editor over it. Both are external
// collaborators per spec.md §1 — the core only ever sees the already
// decoded Config struct — implemented here only at the interface
// SPEC_FULL.md §10.2 describes: gopkg.in/yaml.v3 (a direct govega
// dependency, used the same way govega's own settings load) for the
// document, bufio.Scanner for the editor (matching cmd/vega's own
// stdlib-only CLI style).
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full startup configuration for the clawless bridge.
type Config struct {
	Platform PlatformConfig `yaml:"platform"`
	Agent    AgentConfig    `yaml:"agent"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Prewarm  PrewarmConfig  `yaml:"prewarm"`
	Stream   StreamConfig   `yaml:"stream"`
	HTTP     HTTPConfig     `yaml:"http"`
	Paths    PathsConfig    `yaml:"paths"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
}

// PlatformConfig selects and authenticates the chat-platform adapter.
type PlatformConfig struct {
	Kind            string   `yaml:"kind"` // "telegram" | "slack"
	TelegramToken   string   `yaml:"telegramToken"`
	SlackBotToken   string   `yaml:"slackBotToken"`
	SlackAppToken   string   `yaml:"slackAppToken"`
	AllowedUserIDs  []string `yaml:"allowedUserIds"`
}

// AgentConfig selects and configures the driven CLI agent.
type AgentConfig struct {
	Kind               string   `yaml:"kind"` // "gemini" | "opencode" | "claude"
	Model              string   `yaml:"model"`
	ApprovalMode       string   `yaml:"approvalMode"`
	IncludeDirectories []string `yaml:"includeDirectories"`
	Cwd                string   `yaml:"cwd"`
	PermissionStrategy string   `yaml:"permissionStrategy"`
	McpServers         []McpServerConfig `yaml:"mcpServers"`
}

// McpServerConfig is the YAML shape of one MCP server entry; it mirrors
// clawless.McpServer's tagged-variant fields so config round-trips
// directly into the runtime type.
type McpServerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Type    string            `yaml:"type,omitempty"`
	URL     string            `yaml:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// TimeoutsConfig carries the durations of spec.md §6 Environment.
type TimeoutsConfig struct {
	AcpMs      int `yaml:"acpMs"`      // default 1,200,000
	NoOutputMs int `yaml:"noOutputMs"` // default 300,000
	KillGraceMs int `yaml:"killGraceMs"` // default 10,000
}

// PrewarmConfig carries the retry policy of spec.md §4.3.
type PrewarmConfig struct {
	RetryMs    int `yaml:"retryMs"`    // default 5,000
	MaxRetries int `yaml:"maxRetries"` // default 10
}

// StreamConfig carries live-message and hybrid-mode tunables.
type StreamConfig struct {
	StdoutMirror         bool `yaml:"stdoutMirror"`
	Debug                bool `yaml:"debug"`
	UpdateIntervalMs     int  `yaml:"updateIntervalMs"`     // default 5,000
	MaxResponseLength    int  `yaml:"maxResponseLength"`    // default 4,000
	MaxMessageLength     int  `yaml:"maxMessageLength"`     // default 4,000
	MessageGapThresholdMs int `yaml:"messageGapThresholdMs"` // default 2,000
}

// HTTPConfig carries the callback+scheduler HTTP surface's settings.
type HTTPConfig struct {
	Addr         string `yaml:"addr"` // default "localhost:8788"
	AuthToken    string `yaml:"authToken"`
	MaxBodyBytes int64  `yaml:"maxBodyBytes"` // default 65536
}

// PathsConfig overrides the default <home>/.clawless/ layout.
type PathsConfig struct {
	Home     string `yaml:"home"`
	Timezone string `yaml:"timezone"` // IANA name, default Local
}

// SandboxConfig selects how ASYNC one-shot jobs execute.
type SandboxConfig struct {
	Mode  string `yaml:"mode"` // "host" | "docker", default "host"
	Image string `yaml:"image"`
}

// applyDefaults fills zero-valued fields with spec.md §6 defaults.
func (c *Config) applyDefaults() {
	if c.Timeouts.AcpMs == 0 {
		c.Timeouts.AcpMs = 1_200_000
	}
	if c.Timeouts.NoOutputMs == 0 {
		c.Timeouts.NoOutputMs = 300_000
	}
	if c.Timeouts.KillGraceMs == 0 {
		c.Timeouts.KillGraceMs = 10_000
	}
	if c.Prewarm.RetryMs == 0 {
		c.Prewarm.RetryMs = 5_000
	}
	if c.Prewarm.MaxRetries == 0 {
		c.Prewarm.MaxRetries = 10
	}
	if c.Stream.UpdateIntervalMs == 0 {
		c.Stream.UpdateIntervalMs = 5_000
	}
	if c.Stream.MaxResponseLength == 0 {
		c.Stream.MaxResponseLength = 4_000
	}
	if c.Stream.MaxMessageLength == 0 {
		c.Stream.MaxMessageLength = 4_000
	}
	if c.Stream.MessageGapThresholdMs == 0 {
		c.Stream.MessageGapThresholdMs = 2_000
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "localhost:8788"
	}
	if c.HTTP.MaxBodyBytes == 0 {
		c.HTTP.MaxBodyBytes = 65_536
	}
	if c.Sandbox.Mode == "" {
		c.Sandbox.Mode = "host"
	}
}

// AcpTimeout, NoOutputTimeout, KillGrace, PrewarmRetryDelay,
// StreamUpdateInterval, MessageGapThreshold convert the millisecond fields
// to time.Duration for the runtime/orchestrator constructors.
func (c Config) AcpTimeout() time.Duration      { return time.Duration(c.Timeouts.AcpMs) * time.Millisecond }
func (c Config) NoOutputTimeout() time.Duration { return time.Duration(c.Timeouts.NoOutputMs) * time.Millisecond }
func (c Config) KillGrace() time.Duration       { return time.Duration(c.Timeouts.KillGraceMs) * time.Millisecond }
func (c Config) PrewarmRetryDelay() time.Duration {
	return time.Duration(c.Prewarm.RetryMs) * time.Millisecond
}
func (c Config) StreamUpdateInterval() time.Duration {
	return time.Duration(c.Stream.UpdateIntervalMs) * time.Millisecond
}
func (c Config) MessageGapThreshold() time.Duration {
	return time.Duration(c.Stream.MessageGapThresholdMs) * time.Millisecond
}

// Load reads and decodes path as YAML into a Config with defaults applied.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("clawless/config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("clawless/config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as needed.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("clawless/config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("clawless/config: mkdir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// RunEditor walks the operator through a minimal line-by-line
// configuration session over stdin/stdout (bufio.Scanner, no TUI
// library), seeding defaults from an existing file at path if present,
// then saves the result to path. Matches cmd/vega's own stdlib-only CLI
// editing style; not exercised by the core's tests (spec.md §1: external
// collaborator, interface only).
func RunEditor(path string) error {
	cfg, err := Load(path)
	if err != nil {
		cfg = Config{}
		cfg.applyDefaults()
	}

	scanner := bufio.NewScanner(os.Stdin)
	ask := func(prompt, current string) string {
		fmt.Printf("%s [%s]: ", prompt, current)
		if !scanner.Scan() {
			return current
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return current
		}
		return line
	}
	askInt := func(prompt string, current int) int {
		s := ask(prompt, strconv.Itoa(current))
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		return current
	}

	cfg.Platform.Kind = ask("Platform (telegram|slack)", cfg.Platform.Kind)
	switch cfg.Platform.Kind {
	case "telegram":
		cfg.Platform.TelegramToken = ask("Telegram bot token", cfg.Platform.TelegramToken)
	case "slack":
		cfg.Platform.SlackBotToken = ask("Slack bot token", cfg.Platform.SlackBotToken)
		cfg.Platform.SlackAppToken = ask("Slack app-level token", cfg.Platform.SlackAppToken)
	}
	cfg.Agent.Kind = ask("Agent (gemini|opencode|claude)", cfg.Agent.Kind)
	cfg.Agent.Model = ask("Model override (blank for agent default)", cfg.Agent.Model)
	cfg.Agent.Cwd = ask("Agent working directory", cfg.Agent.Cwd)
	cfg.HTTP.Addr = ask("HTTP callback address", cfg.HTTP.Addr)
	cfg.HTTP.AuthToken = ask("HTTP callback auth token (blank disables auth)", cfg.HTTP.AuthToken)
	cfg.Timeouts.AcpMs = askInt("Overall prompt timeout (ms)", cfg.Timeouts.AcpMs)
	cfg.Timeouts.NoOutputMs = askInt("No-output timeout (ms)", cfg.Timeouts.NoOutputMs)

	if err := Save(path, cfg); err != nil {
		return err
	}
	fmt.Printf("Saved configuration to %s\n", path)
	return nil
}
