package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/nudge/internal/api"
	"github.com/btouchard/nudge/internal/auth"
	"github.com/btouchard/nudge/internal/config"
	nudgemcp "github.com/btouchard/nudge/internal/mcp"
	"github.com/btouchard/nudge/internal/mcp/handlers"
	"github.com/btouchard/nudge/internal/notify"
	"github.com/btouchard/nudge/internal/poller"
	"github.com/btouchard/nudge/internal/source"
	"github.com/btouchard/nudge/internal/store"
	"github.com/btouchard/nudge/internal/task"
	"github.com/btouchard/nudge/internal/tracker"
)

var version = "dev"

const configDir = "~/.config/nudge"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "poll":
		cmdPoll(os.Args[2:])
	case "check":
		cmdCheck(os.Args[2:])
	case "hash-token":
		cmdHashToken(os.Args[2:])
	case "token":
		cmdToken(os.Args[2:])
	case "version":
		fmt.Printf("nudge %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: nudge <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve        Poll on schedule and serve the API\n")
	fmt.Fprintf(os.Stderr, "  poll         Run a single pass and print the result\n")
	fmt.Fprintf(os.Stderr, "  check        Validate configuration\n")
	fmt.Fprintf(os.Stderr, "  hash-token   Print the SHA-256 hash of an API token\n")
	fmt.Fprintf(os.Stderr, "  token        Show or rotate the bootstrap API token\n")
	fmt.Fprintf(os.Stderr, "  version      Print version\n")
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	slog.Info("starting nudge",
		"version", version,
		"source", cfg.Source.Type,
		"window", cfg.Schedule.Window,
		"server", cfg.Server.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg, *configPath); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func cmdPoll(args []string) {
	fs := flag.NewFlagSet("poll", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dryRun := fs.Bool("dry-run", false, "log notifications instead of sending them")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	res, err := pollOnce(ctx, cfg, *dryRun)
	printPass(res)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pass failed: %v\n", err)
		os.Exit(1)
	}
}

func pollOnce(ctx context.Context, cfg *config.Config, dryRun bool) (poller.PassResult, error) {
	loc, err := cfg.Schedule.Location()
	if err != nil {
		return poller.PassResult{}, err
	}
	src, err := source.New(ctx, cfg.Source, loc)
	if err != nil {
		return poller.PassResult{}, fmt.Errorf("creating source: %w", err)
	}

	var notifier notify.Notifier = notify.NewLogNotifier(nil)
	if !dryRun {
		notifier, err = notify.FromConfig(cfg.Notifications, nil)
		if err != nil {
			return poller.PassResult{}, fmt.Errorf("creating notifiers: %w", err)
		}
	}

	deps := poller.Deps{
		Source:        src,
		Tracker:       tracker.New(),
		Notifier:      notifier,
		Window:        cfg.Schedule.Window,
		NotifyTimeout: cfg.Notifications.Timeout,
		Location:      loc,
	}
	if !dryRun && cfg.Database.Path != "" {
		db, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return poller.PassResult{}, fmt.Errorf("opening database: %w", err)
		}
		defer func() { _ = db.Close() }()
		deps.Recorder = db
	}

	return poller.New(deps).RunPass(ctx)
}

func printPass(res poller.PassResult) {
	if res.ID == "" {
		return
	}
	fmt.Printf("pass %s: %s\n", res.ID, res.Status())
	if res.Skipped {
		return
	}
	r := res.Report
	fmt.Printf("  fetched %d, notified %d, re-armed %d, pruned %d\n",
		res.Fetched, len(r.Notified), len(r.Rearmed), len(r.Pruned))
	for _, id := range r.Notified {
		fmt.Printf("  notified  %s\n", id)
	}
	for _, f := range r.Failed {
		fmt.Printf("  failed    %s: %v\n", f.TaskID, f.Err)
	}
	for _, f := range r.Malformed {
		fmt.Printf("  malformed %v\n", f.Err)
	}
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err == nil {
		err = poller.ValidateSchedule(scheduleOf(cfg.Schedule))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	file := *configPath
	if file == "" {
		file = config.ActivePath()
	}
	if file == "" {
		file = "(defaults)"
	}

	fmt.Println("configuration is valid")
	fmt.Printf("  file:     %s\n", file)
	fmt.Printf("  source:   %s\n", cfg.Source.Type)
	fmt.Printf("  schedule: %s\n", scheduleOf(cfg.Schedule))
	fmt.Printf("  window:   %s\n", task.FormatRemaining(cfg.Schedule.Window))
}

func cmdHashToken(args []string) {
	fs := flag.NewFlagSet("hash-token", flag.ExitOnError)
	generate := fs.Bool("generate", false, "generate a new random token")
	_ = fs.Parse(args) // ExitOnError handles errors

	var token string
	switch {
	case *generate:
		t, err := auth.GenerateToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		token = t
		fmt.Printf("token: %s\n", token)
	case fs.NArg() > 0:
		token = fs.Arg(0)
	default:
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(os.Stderr, "usage: nudge hash-token [-generate] [token]")
			os.Exit(1)
		}
		token = strings.TrimSpace(line)
	}

	fmt.Printf("token_hash: %s\n", auth.HashToken(token))
}

func cmdToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	rotate := fs.Bool("rotate", false, "replace the bootstrap token")
	_ = fs.Parse(args) // ExitOnError handles errors

	dir := config.ExpandHome(configDir)
	var (
		token string
		err   error
	)
	if *rotate {
		token, err = auth.RotateToken(dir)
	} else {
		token, _, err = auth.LoadOrCreateToken(dir)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func scheduleOf(s config.ScheduleConfig) poller.Schedule {
	return poller.Schedule{Interval: s.Interval, Cron: s.Cron, RunOnStart: s.RunOnStart}
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.Server.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlers := []slog.Handler{
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
	}

	if cfg.Server.LogFile != "" {
		f, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			slog.Warn("failed to open log file, using stdout only", "path", cfg.Server.LogFile, "error", err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}

	logger := slog.New(slog.NewMultiHandler(handlers...))
	slog.SetDefault(logger)
}

func sdNotify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		slog.Warn("systemd notify failed", "state", state, "error", err)
		return
	}
	if sent {
		slog.Debug("systemd notified", "state", state)
	}
}

// run serves until ctx is done. configPath is the -config flag; when empty
// hot reload rebuilds the layered configuration from every search path.
func run(ctx context.Context, cfg *config.Config, configPath string) error {
	loc, err := cfg.Schedule.Location()
	if err != nil {
		return err
	}

	// --- SQLite Store ---
	var (
		recorder poller.Recorder
		history  handlers.HistoryReader
	)
	if cfg.Database.Path != "" {
		db, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() { _ = db.Close() }()

		recorder, history = db, db
		retention := time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour
		db.StartCleanupLoop(retention, time.Hour, ctx.Done())
		slog.Info("database opened", "path", cfg.Database.Path)
	}

	// --- Task Source ---
	src, err := source.New(ctx, cfg.Source, loc)
	if err != nil {
		return fmt.Errorf("creating source: %w", err)
	}

	// --- Notifiers ---
	mcpServer := nudgemcp.NewServer(version)
	var sender notify.MCPSender
	if cfg.Server.Enabled {
		sender = mcpServer
	}
	notifier, err := notify.FromConfig(cfg.Notifications, sender)
	if err != nil {
		return fmt.Errorf("creating notifiers: %w", err)
	}

	// --- Poller ---
	p := poller.New(poller.Deps{
		Source:        src,
		Tracker:       tracker.New(),
		Notifier:      notifier,
		Recorder:      recorder,
		Window:        cfg.Schedule.Window,
		NotifyTimeout: cfg.Notifications.Timeout,
		Schedule:      scheduleOf(cfg.Schedule),
		Location:      loc,
	})
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("starting poller: %w", err)
	}
	defer p.Stop()

	// --- Config Hot Reload ---
	apply := func(c *config.Config) {
		if err := p.Apply(c.Schedule.Window, scheduleOf(c.Schedule)); err != nil {
			slog.Warn("reloaded schedule rejected", "error", err)
		}
	}
	go func() {
		var err error
		if configPath != "" {
			err = config.Watch(ctx, configPath, apply)
		} else {
			err = config.WatchLayers(ctx, apply)
		}
		if err != nil {
			slog.Warn("config hot reload disabled", "error", err)
		}
	}()

	if !cfg.Server.Enabled {
		sdNotify(daemon.SdNotifyReady)
		slog.Info("nudge is ready", "server", false)
		<-ctx.Done()
		sdNotify(daemon.SdNotifyStopping)
		slog.Info("shutting down")
		return nil
	}

	// --- API Tokens ---
	tokens, err := apiTokens(cfg.Server.APITokens)
	if err != nil {
		return err
	}

	// --- MCP Server ---
	nudgemcp.RegisterTools(mcpServer, &nudgemcp.Deps{
		Status:  p,
		Runner:  p,
		History: history,
	})
	mcpHTTP := server.NewStreamableHTTPServer(mcpServer)

	// --- HTTP Server ---
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewRouter(api.Deps{
			Poller:    p,
			MCP:       mcpHTTP,
			Tokens:    tokens,
			RateLimit: cfg.RateLimit,
			Version:   version,
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("nudge is ready", "addr", addr)
		sdNotify(daemon.SdNotifyReady)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	sdNotify(daemon.SdNotifyStopping)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// apiTokens builds the verifier from configured hashes, falling back to a
// generated bootstrap token stored under the config directory.
func apiTokens(entries []config.APITokenEntry) (*auth.Verifier, error) {
	hashes := make(map[string]string, len(entries))
	for i, e := range entries {
		name := e.Name
		if name == "" {
			name = fmt.Sprintf("token-%d", i)
		}
		hashes[name] = e.TokenHash
	}
	v, err := auth.NewVerifier(hashes)
	if err != nil {
		return nil, err
	}
	if v.Len() > 0 {
		return v, nil
	}

	dir := config.ExpandHome(configDir)
	token, created, err := auth.LoadOrCreateToken(dir)
	if err != nil {
		return nil, fmt.Errorf("bootstrap api token: %w", err)
	}
	v.Add("bootstrap", token)
	if created {
		slog.Info("generated bootstrap api token, read it with `nudge token`", "path", auth.TokenPath(dir))
	}
	return v, nil
}
