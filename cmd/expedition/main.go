package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/glimte/expedition-bus/config"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// app carries what every subcommand needs once flags are parsed
type app struct {
	configPath string
	healthAddr string

	cfg    *config.Config
	logger *slog.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "expedition",
		Short: "Coordinate expedition teams, equipment suppliers and the administrator over RabbitMQ",
		Long: `expedition runs one participant of the expedition bus.

Teams order equipment, suppliers confirm orders for the equipment types they
serve, and the administrator broadcasts messages and monitors all traffic.
Every participant keeps working through broker outages and reconnects on its own.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath, config.WithFlags(cmd.Flags()))
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log, a.stderr)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			slog.SetDefault(logger)
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Configuration file (yaml, toml or json)")
	flags.StringP("url", "u", "", "RabbitMQ connection URL")
	flags.String("exchange", "", "Topic exchange name")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: text or json")
	flags.StringVar(&a.healthAddr, "health-addr", "", "Serve /health, /ready and /live on this address")

	rootCmd.AddCommand(
		newAdminCmd(a),
		newTeamCmd(a),
		newSupplierCmd(a),
		newHealthCmd(a),
	)
	return rootCmd
}

// newLogger builds the slog handler selected by the configuration
func newLogger(cfg config.Log, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}
}
