// Command clawless runs the agent bridge: it loads configuration,
// validates and spawns the configured CLI coding agent, wires a chat
// platform adapter, the scheduler, and the HTTP callback surface, and
// serves until interrupted.
//
// Grounded on govega/cmd/vega/main.go's dispatch-table CLI shape
// (os.Args[1] selects a sub-command, each with its own
// flag.NewFlagSet and Usage), adapted from vega's
// run/validate/repl/version/help set to clawless's
// run/config/version/help.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	clawless "github.com/clawlessdev/clawless"
	"github.com/clawlessdev/clawless/config"
	"github.com/clawlessdev/clawless/httpapi"
	"github.com/clawlessdev/clawless/mcpprobe"
	"github.com/clawlessdev/clawless/memory"
	"github.com/clawlessdev/clawless/platform/slack"
	"github.com/clawlessdev/clawless/platform/telegram"
	"github.com/clawlessdev/clawless/sandbox"
	"github.com/clawlessdev/clawless/scheduler"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch cmd := os.Args[1]; cmd {
	case "run":
		runCmd(os.Args[2:])
	case "config":
		configCmd(os.Args[2:])
	case "version":
		fmt.Printf("clawless %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Clawless - chat-to-coding-agent bridge

Usage:
  clawless <command> [options]

Commands:
  run       Start the long-lived bridge process
  config    Load or interactively edit the YAML configuration
  version   Print version information
  help      Show this help message

Examples:
  clawless run --config ~/.clawless/config.yaml
  clawless config ~/.clawless/config.yaml

Run 'clawless <command> --help' for more information on a command.`)
}

func configCmd(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Println(`Usage: clawless config [path]

Interactively edit the YAML configuration at path, creating it with
defaults if it does not yet exist. Defaults to <home>/config.yaml.`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	path := configPath(fs.Args())
	if err := config.RunEditor(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configFlag := fs.String("config", "", "Path to the YAML configuration file (default <home>/config.yaml)")
	debug := fs.Bool("debug", false, "Enable debug-level logging")
	fs.Usage = func() {
		fmt.Println(`Usage: clawless run [options]

Start the long-lived bridge process: spawn the configured agent, connect
the chat platform adapter, and serve scheduled jobs and HTTP callbacks
until interrupted.

Options:`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	path := *configFlag
	if path == "" {
		path = configPath(nil)
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Error("failed to load configuration", "path", path, "error", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("clawless exited with error", "error", err)
		os.Exit(1)
	}
}

func configPath(positional []string) string {
	if len(positional) > 0 {
		return positional[0]
	}
	return clawless.Home() + "/config.yaml"
}

// run wires every component described by spec.md §4 and SPEC_FULL.md
// §11-12 from a loaded Config, and serves until SIGINT/SIGTERM.
func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpServers := mcpServersFrom(cfg.Agent.McpServers)
	profile, err := clawless.NewAgentProfile(clawless.AgentKind(cfg.Agent.Kind), mcpServers)
	if err != nil {
		return err
	}

	if len(mcpServers()) > 0 {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		mcpprobe.ProbeAll(probeCtx, mcpServers(), mcpprobe.DefaultTimeout, log)
		cancel()
	}

	platformAdapter, err := buildPlatform(cfg, log)
	if err != nil {
		return err
	}

	oneShot, oneShotCloser := buildOneShotRunner(cfg, log)
	if oneShotCloser != nil {
		defer oneShotCloser()
	}

	orch := clawless.NewOrchestrator(clawless.OrchestratorConfig{
		Profile:  profile,
		Options:  agentOptionsFrom(cfg.Agent),
		Cwd:      cfg.Agent.Cwd,
		Platform: platformAdapter,

		RuntimeConfig: clawless.RuntimeConfig{
			AcpTimeout:         cfg.AcpTimeout(),
			NoOutputTimeout:    cfg.NoOutputTimeout(),
			PrewarmRetryDelay:  cfg.PrewarmRetryDelay(),
			PrewarmMaxRetries:  cfg.Prewarm.MaxRetries,
			PermissionStrategy: cfg.Agent.PermissionStrategy,
			StreamToStdout:     cfg.Stream.StdoutMirror,
		},

		Whitelist: cfg.Platform.AllowedUserIDs,

		StreamUpdateInterval: cfg.StreamUpdateInterval(),
		MaxResponseLength:    cfg.Stream.MaxResponseLength,
		MaxMessageLength:     cfg.Stream.MaxMessageLength,
		MessageGapThreshold:  cfg.MessageGapThreshold(),

		SchedulesPath:     clawless.SchedulesPath(),
		CallbackStatePath: clawless.CallbackStatePath(),
		OneShot:           oneShot,
	}, log)

	loc, err := loadLocation(cfg.Paths.Timezone)
	if err != nil {
		log.Warn("invalid timezone, falling back to local", "timezone", cfg.Paths.Timezone, "error", err)
		loc = time.Local
	}

	sched := scheduler.New(loc, clawless.SchedulesPath(), orch.HandleScheduleFire, log)
	if err := sched.Load(); err != nil {
		return fmt.Errorf("clawless: load schedules: %w", err)
	}

	orch.SetScheduleAsyncHandler(scheduleAsyncHandler(sched))

	recall, recallCloser := buildRecall(cfg, log)
	if recallCloser != nil {
		defer recallCloser()
	}

	httpServer := httpapi.New(httpapi.Config{
		Addr:         cfg.HTTP.Addr,
		AuthToken:    cfg.HTTP.AuthToken,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}, orch, sched, recall, log)

	sched.Start()
	defer sched.Stop()

	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- httpServer.Start(ctx) }()

	orchErrCh := make(chan error, 1)
	go func() { orchErrCh <- orch.Start(ctx) }()

	select {
	case <-ctx.Done():
		log.Info("shutting down", "reason", "signal")
	case err := <-orchErrCh:
		if err != nil {
			log.Error("orchestrator exited", "error", err)
		}
	case err := <-httpErrCh:
		if err != nil {
			log.Error("http server exited", "error", err)
		}
	}

	orch.Shutdown("shutdown")
	return nil
}

func buildPlatform(cfg config.Config, log *slog.Logger) (clawless.Platform, error) {
	switch cfg.Platform.Kind {
	case "telegram":
		return telegram.New(cfg.Platform.TelegramToken, log)
	case "slack":
		return slack.New(cfg.Platform.SlackBotToken, cfg.Platform.SlackAppToken, log), nil
	default:
		return nil, fmt.Errorf("clawless: unknown platform kind %q", cfg.Platform.Kind)
	}
}

func buildOneShotRunner(cfg config.Config, log *slog.Logger) (clawless.OneShotRunner, func()) {
	if cfg.Sandbox.Mode != "docker" {
		return clawless.HostOneShotRunner{}, nil
	}
	mgr := sandbox.New(cfg.Sandbox.Image, log)
	runner := sandbox.NewOneShotRunner(mgr, log)
	return runner, func() { _ = mgr.Close() }
}

func buildRecall(cfg config.Config, log *slog.Logger) (httpapi.SemanticRecall, func()) {
	store, err := memory.Open(clawless.SemanticStorePath())
	if err != nil {
		log.Warn("semantic recall store unavailable, endpoint will 404", "error", err)
		return nil, nil
	}
	rec := memory.NewRecallFromEnv(store, "", log)
	if err := rec.IndexNotesFile(context.Background(), clawless.MemoryNotesPath()); err != nil {
		log.Warn("failed to index memory notes file", "error", err)
	}
	return recallAdapter{rec}, func() { _ = store.Close() }
}

// recallAdapter adapts memory.Recall's Entry type to httpapi.RecallEntry,
// keeping the memory package independent of the HTTP surface.
type recallAdapter struct{ rec *memory.Recall }

func (a recallAdapter) Recall(ctx context.Context, input, chatID string, topK int) ([]httpapi.RecallEntry, error) {
	entries, err := a.rec.Recall(ctx, input, chatID, topK)
	if err != nil {
		return nil, err
	}
	out := make([]httpapi.RecallEntry, len(entries))
	for i, e := range entries {
		out[i] = httpapi.RecallEntry{ID: e.ID, ChatID: e.ChatID, Text: e.Text, CreatedAt: e.CreatedAt}
	}
	return out, nil
}

func mcpServersFrom(entries []config.McpServerConfig) func() []clawless.McpServer {
	return func() []clawless.McpServer {
		out := make([]clawless.McpServer, 0, len(entries))
		for _, e := range entries {
			s := clawless.McpServer{
				Name:    e.Name,
				Command: e.Command,
				Args:    e.Args,
				Type:    e.Type,
				URL:     e.URL,
			}
			for name, value := range e.Env {
				s.Env = append(s.Env, clawless.McpServerEnv{Name: name, Value: value})
			}
			for name, value := range e.Headers {
				s.Headers = append(s.Headers, clawless.McpServerHeader{Name: name, Value: value})
			}
			out = append(out, s)
		}
		return out
	}
}

func agentOptionsFrom(a config.AgentConfig) clawless.AgentOptions {
	return clawless.AgentOptions{
		IncludeDirectories: a.IncludeDirectories,
		ApprovalMode:       a.ApprovalMode,
		Model:              a.Model,
	}
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

func timePtr(t time.Time) *time.Time { return &t }

// scheduleAsyncHandler builds the ASYNC-mode hook (§4.6) that turns a
// detected background task into a one-shot schedule. RunAt must be
// strictly after the time Scheduler.Create evaluates "now" against
// (scheduler.Scheduler.Create), so this arms for one second out rather
// than the instant this closure was built.
func scheduleAsyncHandler(sched *scheduler.Scheduler) func(ctx context.Context, task, chatID, jobRef string) error {
	return func(ctx context.Context, task, chatID, jobRef string) error {
		_, err := sched.Create(scheduler.CreateRequest{
			Message:  task,
			OneTime:  true,
			RunAt:    timePtr(time.Now().Add(time.Second)),
			Type:     scheduler.TypeAsyncConversation,
			Metadata: scheduler.Metadata{ChatID: chatID},
		})
		return err
	}
}
