package clawless

import (
	"encoding/json"
	"fmt"
)

// AgentKind selects one of the built-in AgentProfile constructors by
// configuration (agent: gemini|opencode|claude).
type AgentKind string

const (
	AgentGemini   AgentKind = "gemini"
	AgentOpenCode AgentKind = "opencode"
	AgentClaude   AgentKind = "claude"
)

// registryEntry pairs a well-known agent kind with its profile
// constructor, mirroring govega/mcp/registry.go's DefaultRegistry map of
// well-known MCP servers generalized here to whole agent profiles.
type registryEntry struct {
	Description string
	New         func(mcpServers func() []McpServer) AgentProfile
}

// DefaultAgentRegistry lists the agent kinds clawless knows how to drive.
var DefaultAgentRegistry = map[AgentKind]registryEntry{
	AgentGemini: {
		Description: "Google Gemini CLI, ACP mode via --experimental-acp",
		New:         NewGeminiProfile,
	},
	AgentOpenCode: {
		Description: "OpenCode CLI, ACP mode via the 'acp' subcommand",
		New:         NewOpenCodeProfile,
	},
	AgentClaude: {
		Description: "Claude Code CLI",
		New:         NewClaudeProfile,
	},
}

// LookupAgent resolves an AgentKind to its AgentProfile constructor.
func LookupAgent(kind AgentKind) (registryEntry, bool) {
	e, ok := DefaultAgentRegistry[kind]
	return e, ok
}

// NewAgentProfile builds the AgentProfile for kind, or an error if kind is
// not registered.
func NewAgentProfile(kind AgentKind, mcpServers func() []McpServer) (AgentProfile, error) {
	entry, ok := LookupAgent(kind)
	if !ok {
		return AgentProfile{}, fmt.Errorf("clawless: unknown agent kind %q", kind)
	}
	return entry.New(mcpServers), nil
}

// NewGeminiProfile returns the AgentProfile for Gemini-CLI-like agents.
//
// Gemini passes MCP servers both via --allowed-mcp-server-names on argv
// and via the ACP session's mcpServers field; the allow-list is derived
// from the names of the resolved servers.
func NewGeminiProfile(mcpServers func() []McpServer) AgentProfile {
	return AgentProfile{
		Command:      "gemini",
		DisplayName:  "Gemini CLI",
		KillGraceMs:  10_000,
		McpServers:   mcpServers,
		acpArgsFn:    geminiAcpArgs(mcpServers),
		promptArgsFn: geminiPromptArgs,
	}
}

func geminiAcpArgs(mcpServers func() []McpServer) func(AgentOptions) []string {
	return func(opts AgentOptions) []string {
		args := []string{"--experimental-acp"}
		args = append(args, commonGeminiLikeArgs(opts)...)
		if mcpServers != nil {
			if servers := mcpServers(); len(servers) > 0 {
				args = append(args, "--allowed-mcp-server-names")
				names := ""
				for i, s := range servers {
					if i > 0 {
						names += ","
					}
					names += s.Name
				}
				args = append(args, names)
			}
		}
		return args
	}
}

func geminiPromptArgs(opts AgentOptions, text string) []string {
	args := commonGeminiLikeArgs(opts)
	args = append(args, "-p", text)
	return args
}

func commonGeminiLikeArgs(opts AgentOptions) []string {
	var args []string
	for _, d := range opts.IncludeDirectories {
		args = append(args, "--include-directories", d)
	}
	if opts.ApprovalMode != "" {
		args = append(args, "--approval-mode", opts.ApprovalMode)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	return args
}

// NewOpenCodeProfile returns the AgentProfile for OpenCode-like agents.
//
// OpenCode also receives MCP server configuration as a single
// --mcp-servers <json> flag, in addition to the session-level mcpServers
// every profile sends.
func NewOpenCodeProfile(mcpServers func() []McpServer) AgentProfile {
	return AgentProfile{
		Command:     "opencode",
		DisplayName: "OpenCode",
		KillGraceMs: 10_000,
		McpServers:  mcpServers,
		acpArgsFn: func(opts AgentOptions) []string {
			args := []string{"acp"}
			if mcpServers != nil {
				if json := marshalMcpServersJSON(mcpServers()); json != "" {
					args = append(args, "--mcp-servers", json)
				}
			}
			return args
		},
		promptArgsFn: func(opts AgentOptions, text string) []string {
			return []string{"-p", text}
		},
	}
}

// NewClaudeProfile returns the AgentProfile for Claude-Code-like agents.
func NewClaudeProfile(mcpServers func() []McpServer) AgentProfile {
	return AgentProfile{
		Command:      "claude",
		DisplayName:  "Claude Code",
		KillGraceMs:  10_000,
		McpServers:   mcpServers,
		acpArgsFn:    claudeLikeArgs,
		promptArgsFn: func(opts AgentOptions, text string) []string {
			return append(claudeLikeArgs(opts), "-p", text)
		},
	}
}

func claudeLikeArgs(opts AgentOptions) []string {
	var args []string
	for _, d := range opts.IncludeDirectories {
		args = append(args, "--add-dir", d)
	}
	if opts.ApprovalMode != "" {
		args = append(args, "--permission-mode", opts.ApprovalMode)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	return args
}

func marshalMcpServersJSON(servers []McpServer) string {
	if len(servers) == 0 {
		return ""
	}
	b, err := json.Marshal(servers)
	if err != nil {
		return ""
	}
	return string(b)
}
