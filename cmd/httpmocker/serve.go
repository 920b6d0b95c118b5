package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sophialabs/httpmocker/internal/app"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy",
		Long: `Starts the proxy on the configured port.

Unmatched requests are forwarded to --upstream in the disabled, mixed and
record modes. The admin API lives under /__admin/ (health, mode, trace,
cache/reset).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(loadConfig(v))
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			return a.Run(cmd.Context())
		},
	}
}

func newConfigCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(v)
			if _, err := cfg.MockerConfig(); err != nil {
				return err
			}
			if _, err := cfg.UpstreamURL(); err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(toEffective(cfg))
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "httpmocker", version)
		},
	}
}
