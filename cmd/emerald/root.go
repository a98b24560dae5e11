package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vladcalin/emerald/internal/app"
	"github.com/vladcalin/emerald/internal/config"
	"github.com/vladcalin/emerald/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "emerald",
		Short: "A lightweight service discovery registry",
		Long: `emerald keeps track of service instances that announce themselves with
periodic heartbeats and answers glob queries for the ones still alive.

Configuration comes from EMERALD_* environment variables, then an optional
YAML file (--config or EMERALD_CONFIG_FILE), then defaults.`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var (
		cfgFile string
		listen  string
		store   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the registry HTTP server and liveness sweeper",
		Example: `  emerald serve
  emerald serve --store memory --listen :9000
  emerald serve --config /etc/emerald.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := serveConfig(cmd.Flags().Changed, cfgFile, listen, store)
			if err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			return a.Run()
		},
	}

	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "YAML config file (default: $"+config.FileEnv+")")
	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on, e.g. :8000")
	cmd.Flags().StringVar(&store, "store", "", "storage backend: memory, redis or sqlite")
	return cmd
}

// serveConfig loads the configuration and applies the flags that were set
// explicitly. Validation runs on the merged result.
func serveConfig(changed func(name string) bool, cfgFile, listen, store string) (*config.Config, error) {
	load := config.Load
	if cfgFile != "" {
		load = func() (*config.Config, error) { return config.LoadFile(cfgFile) }
	}
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	// Flags beat every other source.
	if changed("listen") {
		cfg.ListenAddr = listen
	}
	if changed("store") {
		cfg.Store = strings.ToLower(store)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version.Get())
		},
	}
}
