// Command sbpm-eventlog collects process-mining event-log records from the
// event bus into the store and exports them as CSV.
package main

import (
	"context"
	"os"

	"github.com/dukex/sbpm/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("sbpm-eventlog")

	cmd := &cli.Command{
		Name:                  "sbpm-eventlog",
		Usage:                 "Collect and export the process-mining event log",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"), command.String("log-format"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			CollectCommand(),
			ExportCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
