package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jimeng-relay/storyvideo/internal/audit"
	"github.com/jimeng-relay/storyvideo/internal/config"
	"github.com/jimeng-relay/storyvideo/internal/download"
	"github.com/jimeng-relay/storyvideo/internal/orchestrator"
	"github.com/jimeng-relay/storyvideo/internal/registry"
	"github.com/jimeng-relay/storyvideo/internal/repository"
	"github.com/jimeng-relay/storyvideo/internal/repository/postgres"
	"github.com/jimeng-relay/storyvideo/internal/repository/sqlite"
	"github.com/jimeng-relay/storyvideo/internal/textgen"
	"github.com/jimeng-relay/storyvideo/internal/usage"
	"github.com/jimeng-relay/storyvideo/internal/video"
	"github.com/jimeng-relay/storyvideo/internal/video/jimeng"
	"github.com/jimeng-relay/storyvideo/internal/video/veo"
)

const flushTimeout = 10 * time.Second

// Constructors are package variables so command tests can swap in fakes.
var (
	newVideoRouter   = buildVideoRouter
	newTextGenerator = textgen.New
	openStore        = openRepositories
	// nil selects the tiktoken-backed counter.
	tokenCounter func(text, model string) int
)

type appOptions struct {
	DecisionMaker orchestrator.DecisionMaker
	DownloadDir   string
	Overwrite     bool
}

type app struct {
	cfg        config.Config
	logger     *slog.Logger
	registry   *registry.Registry
	store      repository.Store
	accountant *usage.Accountant
	saver      *download.Saver
	orch       *orchestrator.Orchestrator
}

func loadRegistry(cfg config.Config) (*registry.Registry, error) {
	if strings.TrimSpace(cfg.RegistryFile) == "" {
		return registry.Default(), nil
	}
	reg, err := registry.LoadFile(cfg.RegistryFile)
	if err != nil {
		return nil, fmt.Errorf("load model registry: %w", err)
	}
	return reg, nil
}

func buildVideoRouter(ctx context.Context, cfg config.Config) (video.Router, error) {
	if err := cfg.RequireVideoBackend(); err != nil {
		return nil, err
	}
	router := video.Router{}
	if cfg.GeminiAPIKey != "" {
		b, err := veo.New(ctx, cfg.GeminiAPIKey, cfg.GeminiBaseURL)
		if err != nil {
			return nil, fmt.Errorf("init veo backend: %w", err)
		}
		router[registry.ProviderGoogle] = b
	}
	if cfg.Volc.Enabled() {
		b, err := jimeng.New(cfg.Volc)
		if err != nil {
			return nil, fmt.Errorf("init jimeng backend: %w", err)
		}
		router[registry.ProviderVolcengine] = b
	}
	return router, nil
}

// openRepositories returns a nil store for the in-memory mode.
func openRepositories(ctx context.Context, cfg config.Config) (repository.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DatabaseType)) {
	case "", config.DatabaseTypeMemory:
		return nil, nil
	case config.DatabaseTypeSQLite:
		repos, err := sqlite.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open sqlite repository: %w", err)
		}
		return repos, nil
	case config.DatabaseTypePostgres, "postgresql":
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres repository: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database_type: %s", cfg.DatabaseType)
	}
}

func newApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, err := loadConfigFromRootFlags(cmd)
	if err != nil {
		return nil, err
	}
	ctx := commandContext(cmd)
	logger := newLogger(cmd, cfg)
	logger.DebugContext(ctx, "configuration loaded", "config", cfg)

	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}
	router, err := newVideoRouter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	text, err := newTextGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if text == nil {
		logger.WarnContext(ctx, "no text provider configured; prompts are templated and storyboards carry no text", "text_provider", cfg.TextProvider)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, registry: reg, store: store}

	var sink usage.Sink
	var observers []orchestrator.Observer
	if store != nil {
		sink = usage.NewRepositorySink(store.UsageRecords())
		observers = append(observers, audit.NewRecorder(store.JobAttempts(), audit.Config{Logger: logger}))
	}
	a.accountant = usage.NewAccountant(usage.Config{Sink: sink, Logger: logger})

	dir := strings.TrimSpace(opts.DownloadDir)
	if dir == "" {
		dir = cfg.DownloadDir
	}
	if dir != "" {
		var header http.Header
		if cfg.GeminiAPIKey != "" {
			// Gemini file URIs are only served to the key that created them.
			header = http.Header{"X-Goog-Api-Key": []string{cfg.GeminiAPIKey}}
		}
		a.saver = download.NewSaver(download.Options{Dir: dir, Overwrite: opts.Overwrite, Header: header, Logger: logger})
		observers = append(observers, a.saver)
	}

	defaultModel := cfg.DefaultModel
	if _, err := reg.Get(defaultModel); err != nil && cfg.RegistryFile != "" {
		logger.WarnContext(ctx, "default model not in registry file; using the first servable model", "model", defaultModel, "registry", cfg.RegistryFile)
		defaultModel = ""
	}

	a.orch, err = orchestrator.New(orchestrator.Config{
		Registry:      reg,
		Router:        router,
		Text:          text,
		TextProvider:  string(cfg.TextProvider),
		TextModel:     cfg.TextModel,
		DecisionMaker: opts.DecisionMaker,
		Accountant:    a.accountant,
		Observers:     observers,
		DefaultModel:  defaultModel,
		PollInterval:  cfg.PollInterval,
		MaxWait:       cfg.MaxWait,
		TokenCounter:  tokenCounter,
		Logger:        logger,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// close waits for pending usage writes before releasing the store.
func (a *app) close() {
	if a.accountant != nil {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := a.accountant.Flush(ctx); err != nil {
			a.logger.Warn("usage records still pending at shutdown", "error", err.Error())
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close repository failed", "error", err.Error())
		}
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// openStoreOnly serves the read-only listing commands, which need no video
// backend.
func openStoreOnly(cmd *cobra.Command) (repository.Store, error) {
	cfg, err := loadConfigFromRootFlags(cmd)
	if err != nil {
		return nil, err
	}
	store, err := openStore(commandContext(cmd), cfg)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("no usage store configured: set %s to sqlite or postgres", config.EnvDatabaseType)
	}
	return store, nil
}
