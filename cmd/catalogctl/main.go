// Package main provides catalogctl, the admin CLI for the course catalog.
package main

import (
	"fmt"
	"log"
	"os"

	"coursecatalog/internal/app"
	"coursecatalog/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// envFile is set by the --env-file flag.
	envFile string

	// catalog is built by PersistentPreRunE and closed after the command.
	catalog *app.App
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "catalogctl",
	Short: "Administer the course catalog",
	Long: `catalogctl runs maintenance tasks against the course catalog stores
configured through the environment (and an optional .env file).`,
	SilenceUsage:      true,
	PersistentPreRunE: initCatalog,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if catalog != nil {
			catalog.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "environment file to load before reading configuration")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(processDraftCmd)
	rootCmd.AddCommand(workerCmd)
}

// initCatalog loads configuration and connects the stores.
func initCatalog(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	a, err := app.New(config.Load())
	if err != nil {
		return fmt.Errorf("initialize catalog: %w", err)
	}
	catalog = a
	log.SetOutput(cmd.ErrOrStderr())
	return nil
}
