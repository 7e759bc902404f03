package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/instance-gateway/config"
	"github.com/angeloszaimis/instance-gateway/internal/version"
	"github.com/angeloszaimis/instance-gateway/pkg/logger"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "instance-gateway",
		Short:         "Edge gateway for a single managed instance.",
		Long:          "Proxies HTTP and WebSocket traffic into the backend instance registered under a fixed name.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := newServeCommand()
	root.AddCommand(serve, newVersionCommand())

	// running the bare binary serves
	root.Flags().AddFlagSet(serve.Flags())
	root.RunE = serve.RunE

	return root
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := viper.New()
			bindFlags(v, cmd.Flags())

			configFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.LoadWith(v, configFile)
			if err != nil {
				slog.Error("failed to load config", slog.Any("err", err))
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return serve(ctx, cfg)
		},
	}

	cmd.Flags().String("config", "", "config file (default: config.yaml in ./config or .)")
	cmd.Flags().String("address", "", "proxy listen address, overrides server.address")
	cmd.Flags().String("log-level", "", "log level, overrides logging.level")

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gateway version.",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "instance-gateway %s\n", version.String())
		},
	}
}

// bindFlags lets explicitly set flags override file and environment values.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	keys := map[string]string{
		"address":   "server.address",
		"log-level": "logging.level",
	}
	for name, key := range keys {
		if f := flags.Lookup(name); f != nil && f.Changed {
			_ = v.BindPFlag(key, f)
		}
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment, os.Stdout)
	log.Info("Starting instance gateway",
		slog.String("version", version.String()),
		slog.String("instance", cfg.Instance.Name))

	gw, err := newGateway(cfg, log)
	if err != nil {
		log.Error("Failed to build gateway", slog.Any("err", err))
		return err
	}

	if err := gw.run(ctx); err != nil {
		log.Error("Gateway stopped with error", slog.Any("err", err))
		return err
	}
	return nil
}
