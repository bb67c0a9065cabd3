// Package main is the FlowForge admin CLI: key generation, API keys, workflow import and
// activation, triggers and integrations.
package main

import (
	"context"
	"os"

	"github.com/flowforge/flowforge/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "flowforge",
		Usage:                 "Administer a FlowForge installation",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			KeysCommand(),
			APIKeysCommand(),
			WorkflowsCommand(),
			TriggersCommand(),
			IntegrationsCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("flowforge").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
