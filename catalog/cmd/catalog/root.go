package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/storefront-systems/storefront-stack/catalog/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Storefront catalog reliability core",
	Long: `catalog runs the order/catalog backend reliability core: the
transactional outbox relay, the change-envelope consumer with idempotent
dispatch, the coupon slot pool and the versioned inventory counter.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	rootCmd.AddCommand(configInitCmd)
}

var configInitCmd = &cobra.Command{
	Use:   "config-init [path]",
	Short: "Write the default configuration to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) > 0 {
			path = args[0]
		}

		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}

		if err := config.WriteDefault(path); err != nil {
			return err
		}

		fmt.Printf("Wrote default configuration to %s\n", path)
		return nil
	},
}
