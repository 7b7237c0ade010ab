package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"openrouter-gateway/pkg/config"
)

var statusConfigPath string

func init() {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Probe a running gateway's health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(statusConfigPath)
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = config.NewDefault()
			}

			ports := []int{cfg.Port}
			if cfg.Port == 0 {
				ports = ports[:0]
				for p := cfg.PortRangeMin; p <= cfg.PortRangeMax; p++ {
					ports = append(ports, p)
				}
			}

			client := &http.Client{Timeout: 2 * time.Second}
			for _, port := range ports {
				url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
				health, ok := probeHealth(client, url)
				if !ok {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "gateway running at http://127.0.0.1:%d\n", port)
				fmt.Fprintf(cmd.OutOrStdout(), "  version:    %s\n", health.Version)
				fmt.Fprintf(cmd.OutOrStdout(), "  uptime:     %ds\n", health.UptimeS)
				fmt.Fprintf(cmd.OutOrStdout(), "  requests:   %d (%d duplicates)\n", health.Requests, health.Duplicates)
				fmt.Fprintf(cmd.OutOrStdout(), "  configured: %v\n", health.Configured)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "gateway is not running")
			return nil
		},
	}
	statusCmd.Flags().StringVar(&statusConfigPath, "config", config.DefaultConfigPath(), "Gateway config TOML path")
	rootCmd.AddCommand(statusCmd)
}

type healthPayload struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	UptimeS    int64  `json:"uptime_s"`
	Requests   int64  `json:"requests"`
	Duplicates int64  `json:"duplicates"`
	Configured bool   `json:"configured"`
}

func probeHealth(client *http.Client, url string) (healthPayload, bool) {
	var out healthPayload
	resp, err := client.Get(url)
	if err != nil {
		return out, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, false
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, false
	}
	return out, out.Status == "ok"
}
