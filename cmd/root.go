package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"openrouter-gateway/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "openrouter-gateway",
	Short: "Local OpenAI-compatible gateway for the OpenRouter API",
	Long:  "Embeddable local HTTP gateway exposing an OpenAI-compatible surface and forwarding to an LLM aggregation API with capability validation and error classification.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	})
}
