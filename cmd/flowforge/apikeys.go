package main

import (
	"context"
	"fmt"
	"time"

	"github.com/flowforge/flowforge/pkg/auth"
	cli "github.com/urfave/cli/v3"
)

func APIKeysCommand() *cli.Command {
	return &cli.Command{
		Name:    "api-keys",
		Aliases: []string{"ak"},
		Usage:   "Manage platform API keys",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create an API key and print it once",
				Flags: append(adminFlags(),
					&cli.StringFlag{Name: "user", Usage: "Owner of the key", Required: true},
					&cli.StringFlag{Name: "name", Usage: "Label shown in listings", Value: "cli"},
					&cli.StringSliceFlag{
						Name:  "scope",
						Usage: "Granted scope, repeatable (defaults to workflow:trigger and execution:read)",
					},
					&cli.DurationFlag{Name: "expires-in", Usage: "Lifetime of the key; zero never expires"},
				),
				Action: withSession(func(ctx context.Context, command *cli.Command, s *session) error {
					var expiresAt *time.Time

					if ttl := command.Duration("expires-in"); ttl > 0 {
						at := time.Now().Add(ttl).UTC()
						expiresAt = &at
					}

					key, record, err := auth.NewAPIKeys(s.persistence, s.logger).Create(ctx,
						command.String("user"), command.String("name"), command.StringSlice("scope"), expiresAt)
					if err != nil {
						return err
					}

					_, err = fmt.Fprintf(s.out, "%s\nid: %s\nscopes: %v\n", key, record.ID, record.Scopes)

					return err
				}),
			},
		},
	}
}
