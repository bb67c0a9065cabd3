package main

import (
	"context"
	"fmt"

	"github.com/flowforge/flowforge/pkg/vault"
	cli "github.com/urfave/cli/v3"
)

func KeysCommand() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "Manage credential encryption keys",
		Commands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "Print a new random encryption key",
				Action: func(_ context.Context, command *cli.Command) error {
					key, err := vault.GenerateKey()
					if err != nil {
						return err
					}

					_, err = fmt.Fprintln(command.Root().Writer, key)

					return err
				},
			},
		},
	}
}
