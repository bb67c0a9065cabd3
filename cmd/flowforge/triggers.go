package main

import (
	"context"
	"fmt"
	"time"

	"github.com/flowforge/flowforge/pkg/auth"
	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"
)

func TriggersCommand() *cli.Command {
	return &cli.Command{
		Name:  "triggers",
		Usage: "Attach webhook and schedule triggers to workflow trigger nodes",
		Commands: []*cli.Command{
			{
				Name:  "webhook",
				Usage: "Create a webhook trigger and print its token",
				Flags: append(adminFlags(),
					&cli.StringFlag{Name: "workflow", Usage: "Workflow id", Required: true},
					&cli.StringFlag{Name: "node", Usage: "Trigger node id", Required: true},
					&cli.StringFlag{Name: "auth-method", Usage: "url_token, bearer or hmac", Value: string(models.WebhookAuthURLToken)},
					&cli.StringFlag{Name: "bearer-token", Usage: "Expected bearer token for --auth-method=bearer"},
					&cli.StringFlag{Name: "hmac-secret", Usage: "Signing secret for --auth-method=hmac"},
				),
				Action: withSession(func(ctx context.Context, command *cli.Command, s *session) error {
					trigger, err := createWebhookTrigger(ctx, s.persistence, webhookOptions{
						WorkflowID:  command.String("workflow"),
						NodeID:      command.String("node"),
						AuthMethod:  models.WebhookAuthMethod(command.String("auth-method")),
						BearerToken: command.String("bearer-token"),
						HMACSecret:  command.String("hmac-secret"),
					})
					if err != nil {
						return err
					}

					_, err = fmt.Fprintf(s.out, "webhook trigger %s\npath: /webhooks/%s\n", trigger.ID, trigger.WebhookToken)

					return err
				}),
			},
			{
				Name:  "schedule",
				Usage: "Create a schedule trigger",
				Flags: append(adminFlags(),
					&cli.StringFlag{Name: "workflow", Usage: "Workflow id", Required: true},
					&cli.StringFlag{Name: "node", Usage: "Trigger node id", Required: true},
					&cli.StringFlag{Name: "cron", Usage: "Cron expression, five fields or a descriptor like @hourly", Required: true},
				),
				Action: withSession(func(ctx context.Context, command *cli.Command, s *session) error {
					trigger, err := createScheduleTrigger(ctx, s.persistence,
						command.String("workflow"), command.String("node"), command.String("cron"))
					if err != nil {
						return err
					}

					_, err = fmt.Fprintf(s.out, "schedule trigger %s (%s)\n", trigger.ID, trigger.CronExpr)

					return err
				}),
			},
		},
	}
}

type webhookOptions struct {
	WorkflowID  string
	NodeID      string
	AuthMethod  models.WebhookAuthMethod
	BearerToken string
	HMACSecret  string
}

func createWebhookTrigger(ctx context.Context, store persistence.Persistence, opts webhookOptions) (*models.WebhookTrigger, error) {
	const op = "create_webhook_trigger"

	if err := checkTriggerNode(ctx, store, opts.WorkflowID, opts.NodeID); err != nil {
		return nil, err
	}

	switch opts.AuthMethod {
	case models.WebhookAuthURLToken:
	case models.WebhookAuthBearer:
		if opts.BearerToken == "" {
			return nil, failures.New(failures.KindValidation, op, "bearer auth requires --bearer-token")
		}
	case models.WebhookAuthHMAC:
		if opts.HMACSecret == "" {
			return nil, failures.New(failures.KindValidation, op, "hmac auth requires --hmac-secret")
		}
	default:
		return nil, failures.Newf(failures.KindValidation, op, "unknown auth method %q", opts.AuthMethod)
	}

	token, err := auth.NewWebhookToken()
	if err != nil {
		return nil, err
	}

	trigger := &models.WebhookTrigger{
		ID:           uuid.New().String(),
		WorkflowID:   opts.WorkflowID,
		NodeID:       opts.NodeID,
		TriggerType:  models.NodeTypeWebhook,
		WebhookURL:   "/webhooks/" + token,
		WebhookToken: token,
		BearerToken:  opts.BearerToken,
		HMACSecret:   opts.HMACSecret,
		AuthMethod:   opts.AuthMethod,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}

	if err := store.SaveWebhookTrigger(ctx, trigger); err != nil {
		return nil, failures.Wrap(failures.KindTransient, op, err)
	}

	return trigger, nil
}

func createScheduleTrigger(ctx context.Context, store persistence.Persistence, workflowID, nodeID, expr string) (*models.ScheduleTrigger, error) {
	const op = "create_schedule_trigger"

	if err := checkTriggerNode(ctx, store, workflowID, nodeID); err != nil {
		return nil, err
	}

	if _, err := cron.ParseStandard(expr); err != nil {
		return nil, failures.Wrap(failures.KindValidation, op, err)
	}

	trigger := &models.ScheduleTrigger{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		NodeID:     nodeID,
		CronExpr:   expr,
		Enabled:    true,
		CreatedAt:  time.Now().UTC(),
	}

	if err := store.SaveScheduleTrigger(ctx, trigger); err != nil {
		return nil, failures.Wrap(failures.KindTransient, op, err)
	}

	return trigger, nil
}

func checkTriggerNode(ctx context.Context, store persistence.WorkflowRepository, workflowID, nodeID string) error {
	wf, err := store.WorkflowByID(ctx, workflowID)
	if err != nil {
		return err
	}

	node := wf.Node(nodeID)
	if node == nil || node.Kind != models.NodeKindTrigger {
		return failures.Newf(failures.KindValidation, "check_trigger_node", "workflow %s has no trigger node %q", workflowID, nodeID)
	}

	return nil
}
