package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cameroncuttingedge/tictactoe_arena/api"
	"github.com/cameroncuttingedge/tictactoe_arena/broker"
	"github.com/cameroncuttingedge/tictactoe_arena/config"
	"github.com/cameroncuttingedge/tictactoe_arena/events"
	"github.com/cameroncuttingedge/tictactoe_arena/manager"
	"github.com/cameroncuttingedge/tictactoe_arena/websocket"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Error loading .env file")
	}

	defaults := config.Default()
	cmd := &cli.Command{
		Name:  "tictactoe",
		Usage: "Match players into tic-tac-toe games and broadcast their state",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: defaults.Addr, Usage: "HTTP listen address", Sources: cli.EnvVars("ADDR")},
			&cli.BoolFlag{Name: "logging", Usage: "also write logs to --log-file", Sources: cli.EnvVars("LOGGING")},
			&cli.StringFlag{Name: "log-file", Value: defaults.LogFile, Usage: "log file path", Sources: cli.EnvVars("LOG_FILE")},
			&cli.StringFlag{Name: "log-level", Value: defaults.LogLevel, Usage: "log level", Sources: cli.EnvVars("LOG_LEVEL")},
			&cli.StringFlag{Name: "nats-url", Usage: "mirror broadcasts to this NATS server", Sources: cli.EnvVars("NATS_URL")},
			&cli.IntFlag{Name: "max-sessions", Usage: "maximum live games, 0 for unlimited", Sources: cli.EnvVars("MAX_SESSIONS")},
			&cli.IntFlag{Name: "event-buffer", Value: config.DefaultEventBuffer, Usage: "queued broadcasts before publishers block", Sources: cli.EnvVars("EVENT_BUFFER")},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := config.Config{
				Addr:        c.String("addr"),
				Logging:     c.Bool("logging"),
				LogFile:     c.String("log-file"),
				LogLevel:    c.String("log-level"),
				NATSURL:     c.String("nats-url"),
				MaxSessions: int(c.Int("max-sessions")),
				EventBuffer: int(c.Int("event-buffer")),
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			closeLog := InitializeLogger(cfg)
			defer closeLog()
			return run(ctx, cfg)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	log.Info().Msg("Starting App")

	registry := manager.NewRegistry(cfg.MaxSessions)
	defer registry.Close()

	bus := events.NewBus(cfg.EventBuffer)
	publishers := events.Multi{bus}

	if cfg.NATSURL != "" {
		natsPub, err := broker.Connect(cfg.NATSURL)
		if err != nil {
			return err
		}
		defer func() {
			if err := natsPub.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to drain NATS connection")
			}
		}()
		publishers = append(publishers, natsPub)
	}

	dispatcher := api.NewDispatcher(registry, publishers)
	hub := websocket.NewHub(dispatcher)
	bus.Listen(hub.Broadcast)
	defer bus.Close()
	defer hub.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(dispatcher, registry, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("Server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// InitializeLogger configures the global logger. The returned func closes
// the log file, if one was opened.
func InitializeLogger(cfg config.Config) func() {
	level, _ := cfg.Level()
	zerolog.SetGlobalLevel(level)

	if !cfg.Logging {
		log.Logger = log.Output(os.Stdout)
		return func() {}
	}

	runLogFile, err := os.OpenFile(
		cfg.LogFile,
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		0664,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open log file")
	}
	multi := zerolog.MultiLevelWriter(runLogFile, os.Stdout)
	log.Logger = zerolog.New(multi).With().Timestamp().Logger()
	return func() { runLogFile.Close() }
}
