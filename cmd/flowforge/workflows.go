package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/services"
	cli "github.com/urfave/cli/v3"
)

func WorkflowsCommand() *cli.Command {
	return &cli.Command{
		Name:    "workflows",
		Aliases: []string{"wf"},
		Usage:   "Import and manage workflows",
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Import a workflow definition from a JSON file (- for stdin)",
				ArgsUsage: "<file>",
				Flags: append(adminFlags(),
					&cli.StringFlag{Name: "user", Usage: "Owner, overrides the file's user_id"},
					&cli.BoolFlag{Name: "activate", Usage: "Store the workflow as active"},
				),
				Action: withSession(func(ctx context.Context, command *cli.Command, s *session) error {
					path := command.Args().First()
					if path == "" {
						return failures.New(failures.KindValidation, "import_workflow", "a workflow file is required")
					}

					var r io.Reader = os.Stdin

					if path != "-" {
						file, err := os.Open(path)
						if err != nil {
							return err
						}

						defer func() {
							_ = file.Close()
						}()

						r = file
					}

					wf, err := importWorkflow(ctx, services.NewWorkflow(s.persistence, s.registry), r,
						command.String("user"), command.Bool("activate"))
					if err != nil {
						return err
					}

					_, err = fmt.Fprintf(s.out, "imported workflow %s (%s)\n", wf.ID, wf.Status)

					return err
				}),
			},
			{
				Name:      "activate",
				Usage:     "Validate and activate a workflow",
				ArgsUsage: "<workflow-id>",
				Flags:     adminFlags(),
				Action: withSession(func(ctx context.Context, command *cli.Command, s *session) error {
					wf, err := services.NewWorkflow(s.persistence, s.registry).Activate(ctx, command.Args().First())
					if err != nil {
						return err
					}

					_, err = fmt.Fprintf(s.out, "workflow %s is %s\n", wf.ID, wf.Status)

					return err
				}),
			},
			{
				Name:      "pause",
				Usage:     "Stop a workflow from accepting new executions",
				ArgsUsage: "<workflow-id>",
				Flags:     adminFlags(),
				Action: withSession(func(ctx context.Context, command *cli.Command, s *session) error {
					wf, err := services.NewWorkflow(s.persistence, s.registry).Pause(ctx, command.Args().First())
					if err != nil {
						return err
					}

					_, err = fmt.Fprintf(s.out, "workflow %s is %s\n", wf.ID, wf.Status)

					return err
				}),
			},
		},
	}
}

func importWorkflow(ctx context.Context, workflows *services.Workflow, r io.Reader, userID string, activate bool) (*models.Workflow, error) {
	var wf models.Workflow

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&wf); err != nil {
		return nil, failures.Wrap(failures.KindValidation, "import_workflow", err)
	}

	if userID != "" {
		wf.UserID = userID
	}

	if activate {
		wf.Status = models.WorkflowStatusActive
	}

	return workflows.Save(ctx, &wf)
}
