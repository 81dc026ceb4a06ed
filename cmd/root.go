// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/serp-harvester/internal/browser"
	"github.com/xkilldash9x/serp-harvester/internal/config"
	"github.com/xkilldash9x/serp-harvester/internal/observability"
	"github.com/xkilldash9x/serp-harvester/internal/orchestrator"
)

// LauncherFactory builds the session launcher for a command, along with a
// shutdown hook that reclaims whatever it started.
type LauncherFactory func(cfg *config.Config, logger *zap.Logger) (orchestrator.Launcher, func(context.Context) error)

// app is the state shared by the subcommands of one root command.
type app struct {
	cfgFile     string
	cfg         *config.Config
	logger      *zap.Logger
	newLauncher LauncherFactory
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"log-level": "logger.level",
	"headless":  "browser.headless",
	"listen":    "server.listen_addr",
}

// NewRootCommand builds a fresh command tree that launches real Chrome.
func NewRootCommand() *cobra.Command {
	return newRootCommand(chromeLauncher)
}

func newRootCommand(factory LauncherFactory) *cobra.Command {
	a := &app{newLauncher: factory}

	rootCmd := &cobra.Command{
		Use:           "serp-harvester",
		Short:         "Scrapes search result pages through headless Chrome.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("headless", true, "run Chrome without a window")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newServeCmd(a), newScrapeCmd(a))
	return rootCmd
}

// Execute runs the root command and logs any failure.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	observability.Sync()
	return err
}

// initialize loads configuration and installs the logger. It runs before
// every subcommand.
func (a *app) initialize(cmd *cobra.Command) error {
	v := viper.New()
	config.SetDefaults(v)
	config.Bind(v)

	if a.cfgFile != "" {
		path, err := homedir.Expand(a.cfgFile)
		if err != nil {
			return fmt.Errorf("resolving config path: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No file; defaults and env vars apply.
	}

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return err
	}

	observability.InitializeLogger(cfg.Logger)
	a.cfg, a.logger = cfg, observability.GetLogger()
	a.logger.Info("Starting serp-harvester", zap.String("version", Version), zap.String("command", cmd.Name()))
	return nil
}

// newOrchestrator builds an orchestrator and returns the hook that tears its
// browser resources down.
func (a *app) newOrchestrator() (*orchestrator.Orchestrator, func(context.Context) error, error) {
	launcher, shutdown := a.newLauncher(a.cfg, a.logger)
	orch, err := orchestrator.New(a.cfg, launcher, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return orch, shutdown, nil
}

// shutdown runs hook on a budget that survives ctx cancellation.
func (a *app) shutdown(ctx context.Context, hook func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Browser.ShutdownTimeout)
	defer cancel()
	if err := hook(ctx); err != nil {
		a.logger.Warn("Browser shutdown incomplete.", zap.Error(err))
	}
}

func chromeLauncher(cfg *config.Config, logger *zap.Logger) (orchestrator.Launcher, func(context.Context) error) {
	m := browser.NewManager(cfg.Browser, logger)
	return orchestrator.BrowserLauncher{Manager: m}, m.Shutdown
}
