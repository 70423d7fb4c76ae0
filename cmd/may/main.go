package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/mayapp/may/internal/ai/provider"
	"github.com/mayapp/may/internal/chat"
	"github.com/mayapp/may/internal/chat/session"
	"github.com/mayapp/may/internal/chat/store"
	"github.com/mayapp/may/internal/chat/stream"
	"github.com/mayapp/may/internal/config"
	"github.com/mayapp/may/internal/localui"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	// Commit is set via -ldflags at build time.
	Commit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		runCmd(os.Args[2:])
	case "apikey":
		apikeyCmd(os.Args[2:])
	case "reset":
		resetCmd(os.Args[2:])
	case "version":
		fmt.Printf("may %s (%s)\n", Version, Commit)
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `may

Usage:
  may run [flags]
  may apikey [flags]
  may reset [flags]
  may version

Commands:
  run       Serve the chat UI API on the loopback interface.
  apikey    Store the model provider API key (prompted without echo).
  reset     Clear all conversations and app config from the database.
  version   Print build information.

`)
}

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	port := fs.Int("port", 0, "Local UI port (overrides config)")
	dbPath := fs.String("db", "", "SQLite database path (overrides config)")
	logFormat := fs.String("log-format", "", "Log format: json|text (overrides config)")
	logLevel := fs.String("log-level", "", "Log level: debug|info|warn|error (overrides config)")
	_ = fs.Parse(args)

	cfg, err := config.Load(filepath.Clean(*cfgPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.ListenPort = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger, err := newLogger(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logging: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown on SIGINT/SIGTERM.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "may exited with error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	cache := config.NewCache(st, logger)
	cache.Refresh(ctx)
	go cache.Run(ctx, 0)

	catalog := provider.DefaultCatalog()
	if p := strings.TrimSpace(cfg.ModelCatalogPath); p != "" {
		catalog, err = provider.LoadCatalog(p)
		if err != nil {
			return fmt.Errorf("loading model catalog: %w", err)
		}
	}

	sess := session.New(st, logger)
	if err := sess.Init(ctx); err != nil {
		return fmt.Errorf("restoring session: %w", err)
	}
	if sess.ActiveID() == "" {
		if _, err := sess.Create(ctx, false); err != nil {
			return fmt.Errorf("creating initial conversation: %w", err)
		}
	}

	reducer := stream.New(sess, provider.New(catalog), cache, logger)

	srv, err := localui.New(localui.Options{
		Logger:  logger,
		Port:    cfg.ListenPort,
		Session: sess,
		Reducer: reducer,
		Config:  cache,
		Catalog: catalog,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Close()

	logger.Info("may running", "version", Version, "port", srv.Port())
	<-ctx.Done()
	return nil
}

func apikeyCmd(args []string) {
	fs := flag.NewFlagSet("apikey", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	dbPath := fs.String("db", "", "SQLite database path (overrides config)")
	_ = fs.Parse(args)

	cfg, err := config.Load(filepath.Clean(*cfgPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	key, err := readSecret("API key: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read key: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(key) == "" {
		fmt.Fprintln(os.Stderr, "empty key, nothing stored")
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	st, err := openStore(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := st.SetConfig(ctx, chat.ConfigKeyAPIKey, chat.Obfuscate(key)); err != nil {
		fmt.Fprintf(os.Stderr, "failed to store key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("API key stored.")
}

func resetCmd(args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	dbPath := fs.String("db", "", "SQLite database path (overrides config)")
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	_ = fs.Parse(args)

	cfg, err := config.Load(filepath.Clean(*cfgPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	if !*yes {
		fmt.Fprint(os.Stderr, "This deletes all conversations and settings. Type 'yes' to continue: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.TrimSpace(line) != "yes" {
			fmt.Fprintln(os.Stderr, "aborted")
			os.Exit(1)
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	st, err := openStore(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := st.Reset(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "reset failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Database reset.")
}

func openStore(cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	path := strings.TrimSpace(cfg.DBPath)
	if path == "" {
		path = config.DefaultDBPath()
	}
	st, err := store.Open(path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	return st, nil
}

// readSecret prompts on stderr and reads without echo when stdin is a
// terminal. Piped input falls back to a plain line read.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func newLogger(format string, level string) (*slog.Logger, error) {
	var h slog.Handler

	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %s", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		h = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}

	return slog.New(h), nil
}
