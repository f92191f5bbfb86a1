package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AzPepoze/gdrive-bisync/internal/client"
	"github.com/AzPepoze/gdrive-bisync/internal/client/config"
	"github.com/AzPepoze/gdrive-bisync/internal/client/status"
	"github.com/AzPepoze/gdrive-bisync/internal/version"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "bisync",
		Short:   "Two-way sync between a local folder and a remote drive",
		Version: version.Detailed(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadDotEnv()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			cmd.SilenceUsage = true

			noTUI, _ := cmd.Flags().GetBool("no-tui")
			useTUI := !noTUI && isatty.IsTerminal(os.Stdout.Fd())

			closeLogs, err := setupLogging(cfg.LogDir, !useTUI, verbose(cmd))
			if err != nil {
				return err
			}
			defer closeLogs()

			return runDaemon(cmd.Context(), cfg, useTUI)
		},
	}

	rootCmd.Flags().SortFlags = false
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "config file (json or yaml)")
	rootCmd.PersistentFlags().StringP("root", "r", "", "local folder to sync")
	rootCmd.PersistentFlags().StringP("backend", "b", "", "remote backend: drive, s3 or local")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	rootCmd.Flags().Bool("http", false, "enable the control plane")
	rootCmd.Flags().String("http-addr", "", "control plane listen address")
	rootCmd.Flags().Bool("no-tui", false, "plain log output even on a terminal")

	rootCmd.AddCommand(
		newAuthCmd(),
		newSyncCmd(),
		newConfigCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func main() {
	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runDaemon(ctx context.Context, cfg *config.Config, useTUI bool) error {
	var reporter status.Reporter = status.NewLogReporter(slog.Default())
	var tui *status.TUIReporter
	if useTUI {
		tui = status.NewTUIReporter(version.ShortWithApp(), slog.Default())
		reporter = tui
	}

	c, err := client.New(ctx, cfg, reporter)
	if err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	if tui != nil {
		// a user quit in the TUI cancels egCtx
		eg.Go(func() error {
			return tui.Run(egCtx)
		})
	}
	eg.Go(func() error {
		return c.Start(egCtx)
	})

	defer slog.Info("Bye!")
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadDotEnv loads ./.env into the environment. Existing variables win.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// loadConfig layers defaults, the config file, flags and BISYNC_* env vars
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	path, _ := cmd.Flags().GetString("config")
	config.ReadFile(v, path)

	bindFlag(v, cmd, "local_root", "root")
	bindFlag(v, cmd, "backend", "backend")
	bindFlag(v, cmd, "http.enabled", "http")
	bindFlag(v, cmd, "http.addr", "http-addr")

	config.BindEnv(v)

	cfg := config.FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindFlag only binds flags the user set, so an empty default never hides
// the file value
func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	f := cmd.Flags().Lookup(flag)
	if f == nil || !f.Changed {
		return
	}
	v.Set(key, f.Value.String())
}

func verbose(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("verbose")
	return v
}
