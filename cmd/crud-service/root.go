package main

import (
	"github.com/spf13/cobra"

	"github.com/R3E-Network/crud_service/internal/config"
)

// configFile is the --config flag shared by every command.
var configFile string

var rootCmd = &cobra.Command{
	Use:   "crud-service",
	Short: "JSON-over-HTTP CRUD service backed by PostgreSQL",
	Long: `crud-service serves create, read, update and delete operations for
widgets, users, categories and products over a JSON HTTP API, persisting them
in PostgreSQL.

Configuration comes from built-in defaults, an optional YAML file (--config or
CONFIG_FILE), a .env file and the environment, later sources winning.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML configuration file")
}

func loadConfig() (*config.Config, error) {
	return config.Load(configFile)
}
