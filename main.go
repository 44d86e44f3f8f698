package main

import (
	"fmt"
	"os"

	"modelctl/internal/cli"
	"modelctl/internal/config"
	"modelctl/internal/logging"
)

func main() {
	configDir := ""
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			configDir = os.Args[i+1]
		}
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "modelctl: %v\n", err)
		os.Exit(1)
	}

	logger, ring := logging.NewLogger()

	rootCmd := cli.NewRootCmd(cfg, logger, ring)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "modelctl: %v\n", err)
		os.Exit(1)
	}
}
