// Package cmd defines the readlater-migrate command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/readlater-migrate/internal/app"
	appconfig "github.com/JakeFAU/readlater-migrate/internal/config"
	"github.com/JakeFAU/readlater-migrate/internal/migrate"
	"github.com/JakeFAU/readlater-migrate/internal/pipeline"
	"github.com/JakeFAU/readlater-migrate/pkg/config"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the part of the service container the commands use, so tests can
// inject a fake.
type App interface {
	Logger() *zap.Logger
	Migrate(ctx context.Context) (pipeline.Summary, error)
	ImportOne(ctx context.Context, id string) (migrate.Outcome, string, error)
	Close(ctx context.Context) error
}

// newApp is the application factory; tests replace it.
var newApp = func(ctx context.Context, cfg appconfig.Config) (App, error) {
	return app.Build(ctx, cfg)
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "readlater-migrate",
		Short: "Copy saved articles from Pocket to Omnivore.",
		Long: `readlater-migrate pages through a Pocket account (or a Pocket HTML
export), reshapes every saved item and saves it to Omnivore under a
shared rate limit. Items that cannot be saved are listed in a dated
CSV report.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			used, err := config.InitConfig(cfgFile)
			if err != nil {
				return err
			}
			cfg, err := appconfig.FromViper(viper.GetViper())
			if err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			if used != "" {
				appInstance.Logger().Debug("config file loaded", zap.String("path", used))
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $HOME/.readlater-migrate/config.yaml)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newOneCmd())
	return cmd
}

// withApp runs fn with the App built by the root command and closes the App
// afterwards, also when fn fails, so progress and reports are flushed.
func withApp(cmd *cobra.Command, fn func(App) error) (err error) {
	appInstance, ok := cmd.Context().Value(appKey).(App)
	if !ok || appInstance == nil {
		return errors.New("application services not initialized")
	}
	defer func() {
		if cerr := appInstance.Close(context.WithoutCancel(cmd.Context())); cerr != nil && err == nil {
			err = fmt.Errorf("close application: %w", cerr)
		}
	}()
	return fn(appInstance)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
