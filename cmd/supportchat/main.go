package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"SupportChat/internal/app"
	"SupportChat/internal/config"
)

type flags struct {
	configPath  string
	backendURL  string
	storage     string
	storagePath string
	lang        string
	debug       bool
	telemetry   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:           "supportchat",
		Short:         "Terminal client for the support chat backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, &f, func(ctx context.Context, a *app.App) error {
				return a.Chat(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "Path to a YAML config file")
	pf.StringVar(&f.backendURL, "backend-url", "", "Base URL of the chat backend")
	pf.StringVar(&f.storage, "storage", "", "Storage driver (sqlite|file|redis|memory)")
	pf.StringVar(&f.storagePath, "storage-path", "", "SQLite database file, or the directory for the file driver")
	pf.StringVar(&f.lang, "lang", "", "Interface language (en|es)")
	pf.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&f.telemetry, "telemetry", false, "Write traces and metrics to the log directory")

	root.AddCommand(
		&cobra.Command{
			Use:   "history",
			Short: "Print the stored conversation and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, &f, func(_ context.Context, a *app.App) error {
					return a.History(cmd.OutOrStdout())
				})
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Clear the conversation locally and on the backend",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, &f, func(ctx context.Context, a *app.App) error {
					return a.Reset(ctx, cmd.OutOrStdout())
				})
			},
		},
	)
	return root
}

func withApp(cmd *cobra.Command, f *flags, run func(context.Context, *app.App) error) error {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return run(ctx, a)
}

// loadConfig applies explicitly set flags on top of file and environment values
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("backend-url") {
		cfg.BackendURL = f.backendURL
	}
	if changed("storage") {
		cfg.Storage.Driver = f.storage
	}
	if changed("storage-path") {
		if cfg.Storage.Driver == config.StorageFile {
			cfg.Storage.Dir = f.storagePath
		} else {
			cfg.Storage.Path = f.storagePath
		}
	}
	if changed("lang") {
		cfg.Language = f.lang
	}
	if changed("debug") {
		cfg.Log.Debug = f.debug
	}
	if changed("telemetry") {
		cfg.Telemetry = f.telemetry
	}
	return cfg, cfg.Validate()
}
