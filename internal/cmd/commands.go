package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/lordrhodos/apicurio-studio/internal/cmd/base"
	"github.com/lordrhodos/apicurio-studio/internal/cmd/commands/migrate"
	"github.com/lordrhodos/apicurio-studio/internal/cmd/commands/relay"
	"github.com/lordrhodos/apicurio-studio/internal/cmd/commands/serve"
	"github.com/lordrhodos/apicurio-studio/internal/cmd/commands/version"
)

// Commands is the mapping of all of the available commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	b := base.NewCommand(log, ui)

	Commands = map[string]cli.CommandFactory{
		"migrate": func() (cli.Command, error) {
			return &migrate.Command{Command: b}, nil
		},
		"relay": func() (cli.Command, error) {
			return &relay.Command{Command: b}, nil
		},
		"serve": func() (cli.Command, error) {
			return &serve.Command{Command: b}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
	}
}
