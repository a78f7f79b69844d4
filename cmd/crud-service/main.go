package main

import (
	"os"

	"github.com/R3E-Network/crud_service/pkg/logger"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.NewDefault("crud-service").WithError(err).Error("command failed")
		os.Exit(1)
	}
}
