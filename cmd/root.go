package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jimeng-relay/storyvideo/internal/config"
	"github.com/jimeng-relay/storyvideo/internal/logging"
	"github.com/jimeng-relay/storyvideo/internal/output"
)

type rootFlagValues struct {
	format       string
	configFile   string
	textProvider string
	pollInterval string
	maxWait      string
	registry     string
	dbType       string
	dbURL        string
	debug        bool
}

var rootFlags rootFlagValues

var rootCmd = &cobra.Command{
	Use:   "storyvideo",
	Short: "Story-to-video generation CLI",
	Long: `Generate short video cuts from story prompts. Failed generations walk
down the model ladder and end in a storyboard when no video can be produced.`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

func RootCmd() *cobra.Command {
	return rootCmd
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the running job.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.format, "format", string(output.FormatText), "Output format: text|json")
	rootCmd.PersistentFlags().StringVar(&rootFlags.configFile, "config", ".env", "Path to an env file")
	rootCmd.PersistentFlags().StringVar(&rootFlags.textProvider, "text-provider", "", fmt.Sprintf("Text provider gemini|openai (overrides %s)", config.EnvTextProvider))
	rootCmd.PersistentFlags().StringVar(&rootFlags.pollInterval, "poll-interval", "", fmt.Sprintf("Operation poll interval, e.g. 5s (overrides %s)", config.EnvPollInterval))
	rootCmd.PersistentFlags().StringVar(&rootFlags.maxWait, "max-wait", "", fmt.Sprintf("Per-attempt wait budget, e.g. 6m (overrides %s)", config.EnvMaxWait))
	rootCmd.PersistentFlags().StringVar(&rootFlags.registry, "registry", "", fmt.Sprintf("Model registry YAML file (overrides %s)", config.EnvModelRegistry))
	rootCmd.PersistentFlags().StringVar(&rootFlags.dbType, "db-type", "", fmt.Sprintf("Usage store memory|sqlite|postgres (overrides %s)", config.EnvDatabaseType))
	rootCmd.PersistentFlags().StringVar(&rootFlags.dbURL, "db-url", "", fmt.Sprintf("Usage store DSN (overrides %s)", config.EnvDatabaseURL))
	rootCmd.PersistentFlags().BoolVar(&rootFlags.debug, "debug", false, "Enable debug logging")
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil {
		return false
	}
	if f := cmd.Flags().Lookup(name); f != nil {
		return f.Changed
	}
	if f := cmd.InheritedFlags().Lookup(name); f != nil {
		return f.Changed
	}
	if f := cmd.PersistentFlags().Lookup(name); f != nil {
		return f.Changed
	}
	return false
}

func newFormatterFromRootFlags() (*output.Formatter, error) {
	f := strings.TrimSpace(rootFlags.format)
	if f == "" {
		f = string(output.FormatText)
	}
	switch f {
	case string(output.FormatJSON), string(output.FormatText):
		return output.NewFormatter(output.Format(f)), nil
	default:
		return nil, fmt.Errorf("invalid --format: %q (supported: text|json)", f)
	}
}

func parseDurationFlag(name, raw string) (*time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("--%s must not be empty", name)
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", name, err)
	}
	if d <= 0 {
		return nil, fmt.Errorf("--%s must be positive", name)
	}
	return &d, nil
}

func loadConfigFromRootFlags(cmd *cobra.Command) (config.Config, error) {
	var opts config.Options

	if flagChanged(cmd, "config") {
		opts.ConfigFile = &rootFlags.configFile
	}
	if flagChanged(cmd, "text-provider") {
		opts.TextProvider = &rootFlags.textProvider
	}
	if flagChanged(cmd, "registry") {
		opts.RegistryFile = &rootFlags.registry
	}
	if flagChanged(cmd, "db-type") {
		opts.DatabaseType = &rootFlags.dbType
	}
	if flagChanged(cmd, "db-url") {
		opts.DatabaseURL = &rootFlags.dbURL
	}
	if flagChanged(cmd, "poll-interval") {
		d, err := parseDurationFlag("poll-interval", rootFlags.pollInterval)
		if err != nil {
			return config.Config{}, err
		}
		opts.PollInterval = d
	}
	if flagChanged(cmd, "max-wait") {
		d, err := parseDurationFlag("max-wait", rootFlags.maxWait)
		if err != nil {
			return config.Config{}, err
		}
		opts.MaxWait = d
	}

	opts.Debug = rootFlags.debug

	return config.Load(opts)
}

// newLogger writes to stderr so stdout stays clean for --format json.
func newLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return logging.NewLoggerWithWriter(cmd.ErrOrStderr(), level)
}
