// Chat widget terminal client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/ashureev/chatwidget/internal/chat"
	"github.com/ashureev/chatwidget/internal/config"
	"github.com/ashureev/chatwidget/internal/store"
	"github.com/ashureev/chatwidget/internal/submission"
	"github.com/ashureev/chatwidget/internal/transport"
	"github.com/ashureev/chatwidget/internal/tui"
	"github.com/ashureev/chatwidget/internal/upload"
)

func main() {
	history := flag.Bool("history", false, "list recent sessions from the transcript database and exit")
	sessionID := flag.String("session", "", "print the transcript of one session and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	// The terminal belongs to the widget, so logs go to a file.
	logFile, err := openLogFile(cfg.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to open log file:", err)
		os.Exit(1)
	}
	defer logFile.Close()

	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *history || *sessionID != "" {
		if err := runHistory(ctx, cfg, os.Stdout, *sessionID); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("Widget exited with error", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting chat widget", "bot_url", cfg.BotURL, "transcript", cfg.Transcript.Backend)

	transcript, closeTranscript, err := openTranscript(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeTranscript()

	dialer, err := transport.NewWebSocketDialer(cfg.BotURL)
	if err != nil {
		return fmt.Errorf("configure bot transport: %w", err)
	}
	adapter := submission.NewAdapter(upload.NewClient(cfg.UploadURL, cfg.UploadTimeout, logger))

	bridge := tui.NewBridge()
	topts := transport.DefaultOptions()
	topts.DialTimeout = cfg.DialTimeout
	topts.Logger = logger
	orch := chat.New(dialer, adapter, bridge, chat.Options{
		IdleTimeout: cfg.IdleTimeout,
		Transport:   topts,
		Transcript:  transcript,
		Logger:      logger,
	})

	loopCtx, cancelLoop := context.WithCancel(ctx)
	loopDone := make(chan error, 1)
	go func() { loopDone <- orch.Run(loopCtx) }()

	program := tea.NewProgram(tui.New(ctx, orch, bridge, tui.Options{}), tea.WithAltScreen(), tea.WithContext(ctx))
	_, runErr := program.Run()

	cancelLoop()
	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Orchestrator stopped with error", "error", err)
	}
	slog.Info("Chat widget stopped")

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("run widget: %w", runErr)
	}
	return nil
}

// openTranscript builds the configured transcript backend behind an async
// recorder. The returned cleanup drains pending entries.
func openTranscript(ctx context.Context, cfg *config.Config, logger *slog.Logger) (chat.Transcript, func(), error) {
	var sink store.Sink
	stopRetention := func() {}
	switch cfg.Transcript.Backend {
	case config.BackendNone:
		return nil, func() {}, nil

	case config.BackendRedis:
		rs, err := store.NewRedisStream(ctx, cfg.Transcript.RedisAddr, cfg.Transcript.RedisStream, store.DefaultStreamMaxLen)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize transcript stream: %w", err)
		}
		slog.Info("Transcript stream connected", "addr", cfg.Transcript.RedisAddr, "stream", cfg.Transcript.RedisStream)
		sink = rs

	default:
		repo, err := store.NewSQLite(cfg.Transcript.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize transcript database: %w", err)
		}
		if err := repo.Ping(ctx); err != nil {
			repo.Close()
			return nil, nil, fmt.Errorf("transcript database health check: %w", err)
		}
		slog.Info("Transcript database connected", "path", cfg.Transcript.DBPath)
		if cfg.Transcript.Retention > 0 {
			stopRetention = store.StartRetentionWorker(ctx, repo, cfg.Transcript.Retention, store.DefaultRetentionInterval)
		}
		sink = repo
	}

	rec := store.NewAsyncRecorder(sink, cfg.Transcript.QueueSize, logger)
	cleanup := func() {
		stopRetention()
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rec.Close(closeCtx); err != nil {
			slog.Error("Failed to close transcript", "error", err)
		}
		if n := rec.Dropped(); n > 0 {
			slog.Warn("Transcript entries dropped", "count", n)
		}
	}
	return rec, cleanup, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
