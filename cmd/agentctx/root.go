package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/youssefsiam38/agentctx/compaction"
	"github.com/youssefsiam38/agentctx/config"
	"github.com/youssefsiam38/agentctx/hooks"
	"github.com/youssefsiam38/agentctx/storage"
)

type globalFlags struct {
	configFile string
	backend    string
	logLevel   string
}

// app is the state shared by every subcommand once config is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  storage.Store
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "agentctx",
		Short:         "Inspect and maintain compacted agent conversations",
		Long:          "agentctx reads conversation snapshots persisted by the compaction engine and lets operators inspect, reload, compress and report on them.",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "config file path")
	root.PersistentFlags().StringVar(&flags.backend, "storage", "", "override the storage backend (memory, file, postgres, sql, redis)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override the log level")

	root.AddCommand(
		newInspectCmd(flags),
		newReloadCmd(flags),
		newClearCmd(flags),
		newCompressCmd(flags),
		newReportCmd(flags),
		newMigrateCmd(flags),
		newServeCmd(flags),
	)
	return root
}

// withApp loads the configuration, opens the store and runs fn.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return err
	}
	if flags.backend != "" {
		cfg.Storage.Backend = flags.backend
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, closeFn, err := cfg.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	a := &app{
		cfg:    cfg,
		logger: cfg.NewLogger(cmd.ErrOrStderr()),
		store:  store,
	}
	return fn(ctx, a)
}

// engine restores the engine of a stored session.
func (a *app) engine(ctx context.Context, sessionID string, opts ...compaction.Option) (*compaction.Engine, error) {
	snap, err := a.store.LoadSnapshot(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	engineCfg := a.cfg.Engine
	return compaction.Restore(snap, &engineCfg, append(a.cfg.EngineOptions(a.logger), opts...)...)
}

// registerLogging attaches hooks that log compaction passes and tool calls
// through the app logger at debug level.
func (a *app) registerLogging(ctx context.Context, h *hooks.Registry) {
	lh := hooks.NewLoggingHooks(slog.NewLogLogger(a.logger.Handler(), slog.LevelDebug))
	if a.logger.Enabled(ctx, slog.LevelDebug) {
		lh.Verbose()
	}
	lh.Register(h)
}
