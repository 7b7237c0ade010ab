package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"openrouter-gateway/pkg/config"
	"openrouter-gateway/pkg/logstore"
	"openrouter-gateway/pkg/logutil"
	"openrouter-gateway/pkg/proxy"
	"openrouter-gateway/pkg/usagelog"
)

var (
	serveConfigPath   string
	servePortOverride int
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(serveConfigPath)
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = config.NewDefault()
				if err := config.Save(serveConfigPath, cfg); err != nil {
					return fmt.Errorf("write default config: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", serveConfigPath)
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = servePortOverride
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := logutil.Configure(cfg.LogLevel); err != nil {
				return err
			}
			logs := logstore.NewStore(0)
			logutil.SetOutputTee(logs.Writer())

			usage, err := usagelog.NewStore(config.DefaultUsageLogDir())
			if err != nil {
				return fmt.Errorf("init usage log: %w", err)
			}
			defer usage.Close()

			gw := proxy.NewGateway(cfg, proxy.Options{Logs: logs, Usage: usage})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := gw.Start(ctx)
			if err != nil {
				return fmt.Errorf("start gateway: %w", err)
			}
			if !st.Configured {
				log.Warn("no API key configured; inference requests will be rejected",
					"env", config.EnvAPIKey)
			}

			<-ctx.Done()
			return gw.Stop(context.Background())
		},
	}
	serveCmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "Gateway config TOML path")
	serveCmd.Flags().IntVar(&servePortOverride, "port", 0, "Override configured port (0 = auto-select from range)")
	rootCmd.AddCommand(serveCmd)
}
