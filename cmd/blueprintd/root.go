package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"blueprintcore/internal/config"
	"blueprintcore/internal/core"
	"blueprintcore/pkg/domain"
)

// app carries state shared by every subcommand once the root command has
// loaded configuration.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "blueprintd",
		Short: "Idle-game blueprint editor service",
		Long: `blueprintd hosts the blueprint editor API: resources, generators,
upgrades and tiers with referential integrity enforced on every write.`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(a.serveCmd(), a.exportCmd(), a.checkNumberCmd(), a.versionCmd())
	return root
}

func (a *app) setup(*cobra.Command, []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	level := cfg.Logging.Level
	if a.verbose {
		level = "debug"
	}
	logger, err := core.NewProductionLogger(level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

// openService opens the configured store and wraps it in a service. The
// returned func closes the store.
func (a *app) openService(ctx context.Context, opts ...core.ServiceOption) (*core.Service, func(), error) {
	store, err := core.OpenPersistentStore(ctx, a.cfg.Storage, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	policy, ok := domain.ParseDeletePolicy(a.cfg.DeletePolicy)
	if !ok {
		policy = domain.DeletePolicyRefuse
	}
	base := []core.ServiceOption{
		core.WithLogger(core.NewZapLogger(a.logger)),
		core.WithDeletePolicy(policy),
	}
	svc := core.NewService(store, append(base, opts...)...)
	closeStore := func() {
		closer, ok := store.(io.Closer)
		if !ok {
			return
		}
		if err := closer.Close(); err != nil {
			a.logger.Warn("close store", zap.Error(err))
		}
	}
	return svc, closeStore, nil
}
