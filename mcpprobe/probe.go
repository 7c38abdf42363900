// Package mcpprobe validates that a configured MCP server actually
// responds to initialize before it is handed to the agent. The core
// never calls MCP tools itself — it only passes McpServer records
// through to the agent at session creation — so this probe is advisory:
// a failure is logged, not fatal, and the server is still passed through
// unchanged.
//
// Grounded on mark3labs/mcp-go's client package (kdlbs-kandev's direct
// dependency on the library, there used server-side; clawless is the
// retrieval pack's one caller of its client half) rather than a
// hand-rolled JSON-RPC probe.
package mcpprobe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	clawless "github.com/clawlessdev/clawless"
)

// DefaultTimeout bounds one server's initialize round-trip.
const DefaultTimeout = 5 * time.Second

// ProbeAll probes every server in servers and logs a warning for each one
// that fails to initialize within timeout. It never returns an error: by
// contract this check is advisory only.
func ProbeAll(ctx context.Context, servers []clawless.McpServer, timeout time.Duration, log *slog.Logger) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	for _, s := range servers {
		if err := probeOne(ctx, s, timeout); err != nil {
			log.Warn("mcp server failed reachability probe, passing through unchanged", "server", s.Name, "error", err)
			continue
		}
		log.Info("mcp server reachability confirmed", "server", s.Name)
	}
}

func probeOne(ctx context.Context, s clawless.McpServer, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, err := newClient(s)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "clawless", Version: "probe"}

	if _, err := c.Initialize(ctx, req); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return nil
}

func newClient(s clawless.McpServer) (*client.Client, error) {
	if s.IsURLForm() {
		headers := make(map[string]string, len(s.Headers))
		for _, h := range s.Headers {
			headers[h.Name] = h.Value
		}
		if s.Type == "sse" {
			return client.NewSSEMCPClient(s.URL, client.WithHeaders(headers))
		}
		return client.NewStreamableHttpClient(s.URL, client.WithHTTPHeaders(headers))
	}

	env := make([]string, 0, len(s.Env))
	for _, e := range s.Env {
		env = append(env, e.Name+"="+e.Value)
	}
	return client.NewStdioMCPClient(s.Command, env, s.Args...)
}
