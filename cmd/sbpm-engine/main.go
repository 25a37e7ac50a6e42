package main

import (
	"context"
	"os"

	"github.com/dukex/sbpm/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("sbpm-engine")

	cmd := &cli.Command{
		Name:                  "sbpm-engine",
		Usage:                 "Run subject-oriented business processes",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			RunCommand(),
			ImportModelCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
