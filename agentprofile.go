package clawless

import "time"

// McpServer is opaque to the core: it is resolved by configuration,
// validated optionally by the mcpprobe probe, and passed through verbatim
// to the agent at session creation. It is a tagged variant over two wire
// shapes — command-form (stdio) and url-form (http/sse) — represented here
// as one struct with omitted fields rather than an interface, since it
// round-trips through JSON at the ACP boundary and through YAML
// configuration unchanged.
type McpServer struct {
	Name string `json:"name" yaml:"name"`

	// Command-form (stdio transport).
	Command string         `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string       `json:"args,omitempty" yaml:"args,omitempty"`
	Env     []McpServerEnv `json:"env,omitempty" yaml:"env,omitempty"`

	// URL-form (http/sse transport).
	Type    string            `json:"type,omitempty" yaml:"type,omitempty"` // "http" | "sse"
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers []McpServerHeader `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// McpServerEnv is one environment variable passed to a command-form server.
type McpServerEnv struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// McpServerHeader is one HTTP header passed to a url-form server.
type McpServerHeader struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// IsURLForm reports whether this record uses the http/sse transport rather
// than a spawned command.
func (m McpServer) IsURLForm() bool {
	return m.URL != ""
}

// AgentProfile is a capability record for the chosen CLI agent: the
// executable, the two argv-builders required by the ACP runtime and the
// async one-shot worker, and process-management knobs. It is immutable
// once constructed — the same pattern govega/mcp/registry.go uses for its
// DefaultRegistry of well-known servers, generalized here from MCP servers
// to whole agent profiles.
type AgentProfile struct {
	// Command is the executable name or path, e.g. "gemini", "opencode",
	// "claude".
	Command string

	// DisplayName is used in logs and the "[<token>] " stderr prefix.
	DisplayName string

	// KillGraceMs is how long terminateGracefully waits after SIGTERM
	// before escalating to SIGKILL.
	KillGraceMs int

	// McpServers resolves the configured MCP servers for this profile, or
	// nil if none are configured. Called once at session creation.
	McpServers func() []McpServer

	// acpArgsFn and promptArgsFn are agent-specific argv builders; set by
	// the constructors in registry.go (NewGeminiProfile etc.).
	acpArgsFn    func(p AgentOptions) []string
	promptArgsFn func(p AgentOptions, text string) []string
}

// AgentOptions carries the per-invocation knobs an AgentProfile's argv
// builders may consult: included directories, approval/permission mode,
// and model override. Supplied from configuration (§10.2 / §12.1).
type AgentOptions struct {
	IncludeDirectories []string
	ApprovalMode       string // gemini: auto_edit|default|yolo ; claude: bypassPermissions|acceptEdits|default|plan
	Model              string
}

// AcpArgs returns the argv (excluding the executable itself) used to launch
// the agent in long-lived ACP mode.
func (a AgentProfile) AcpArgs(opts AgentOptions) []string {
	if a.acpArgsFn == nil {
		return nil
	}
	return a.acpArgsFn(opts)
}

// PromptArgs returns the argv used to launch the agent in one-shot prompt
// mode for an ASYNC background job.
func (a AgentProfile) PromptArgs(opts AgentOptions, text string) []string {
	if a.promptArgsFn == nil {
		return []string{"-p", text}
	}
	return a.promptArgsFn(opts, text)
}

// KillGrace returns the SIGTERM→SIGKILL grace period, defaulting to 10s.
func (a AgentProfile) KillGrace() time.Duration {
	if a.KillGraceMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(a.KillGraceMs) * time.Millisecond
}

// stderrToken returns the lower-cased, whitespace-collapsed token used as
// the "[<token>] " prefix on mirrored stderr lines.
func (a AgentProfile) stderrToken() string {
	name := a.DisplayName
	if name == "" {
		name = a.Command
	}
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r == ' ' || r == '\t' {
			out = append(out, '-')
			continue
		}
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}
