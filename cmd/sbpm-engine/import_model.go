package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/sbpm/pkg/cmd"
	"github.com/dukex/sbpm/pkg/log"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
	cli "github.com/urfave/cli/v3"
)

func ImportModelCommand() *cli.Command {
	return &cli.Command{
		Name:      "import-model",
		Usage:     "Validate a process model JSON document and store it",
		ArgsUsage: "<model.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres://... or file://path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Only validate the document",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), "text")

			logger := log.WithModule("import-model")

			path := command.Args().First()
			if path == "" {
				return errors.New("missing process model document path")
			}

			pm, err := readProcessModel(path)
			if err != nil {
				return err
			}

			if command.Bool("dry-run") {
				logger.InfoContext(ctx, "Process model is valid", "name", pm.Name, "subject_models", len(pm.SubjectModels))

				return nil
			}

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			id, err := importProcessModel(ctx, store, pm)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Process model imported", "process_model_id", id, "state", pm.State)
			_, err = fmt.Fprintln(command.Root().Writer, id)

			return err
		},
	}
}

func readProcessModel(path string) (*models.ProcessModel, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return models.ParseProcessModelDocument(data)
}

func importProcessModel(ctx context.Context, store persistence.Persistence, pm *models.ProcessModel) (int64, error) {
	err := persistence.WithTx(ctx, store, func(tx persistence.Tx) error {
		return tx.SaveProcessModel(ctx, pm)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to save process model: %w", err)
	}

	return pm.ID, nil
}
