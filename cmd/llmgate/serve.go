package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/llmgate/llmgate/bootstrap"
	"github.com/llmgate/llmgate/config"
)

func serveCmd() *cobra.Command {
	var hotReload bool
	var validateOnly bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if validateOnly {
				cfg, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("configuration invalid: %w", err)
				}
				fmt.Println("Configuration valid")
				fmt.Printf("  Upstream: %s\n", cfg.Upstream.URL)
				fmt.Printf("  Plans:    %d\n", len(cfg.Plans))
				return nil
			}

			var a *bootstrap.App
			var err error
			if hotReload {
				a, err = bootstrap.NewWithHotReload(configPath)
			} else {
				cfg, loadErr := config.LoadWithFallback(configPath)
				if loadErr != nil {
					return loadErr
				}
				a, err = bootstrap.New(cfg)
			}
			if err != nil {
				return err
			}

			return a.Run()
		},
	}

	cmd.Flags().BoolVar(&hotReload, "hot-reload", true, "Enable configuration hot reload (file watch + SIGHUP)")
	cmd.Flags().BoolVar(&validateOnly, "validate", false, "Validate configuration and exit")

	return cmd
}
