// Command server runs the Yunj Archive chat relay.
package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yunjin-lab/archive-chat/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var (
		port string
		host string
	)

	rootCmd := &cobra.Command{
		Use:   "server",
		Short: "Room-scoped chat relay with in-memory history and archive export",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			// A .env file is optional; real environment variables win.
			_ = godotenv.Load()

			cfg, err := server.LoadConfig()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			if host != "" {
				cfg.Host = host
			}

			logger := newLogger(cfg.LogLevel)
			return run(cfg, logger)
		},
	}

	rootCmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	rootCmd.Flags().StringVar(&host, "host", "", "listen hostname (overrides HOSTNAME)")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *server.Config, logger zerolog.Logger) error {
	srv := server.New(cfg, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received signal, shutting down gracefully")
		if err := srv.Shutdown(shutdownTimeout); err != nil {
			logger.Warn().Err(err).Msg("shutdown finished with error")
			return err
		}
		logger.Info().Msg("shutdown complete")
		return nil
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}
