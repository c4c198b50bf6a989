// Package cmd is the designhub command line.
package cmd

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/lordrhodos/apicurio-studio/internal/version"
)

const defaultCommand = "serve"

// Main runs the designhub CLI and returns the process exit code. Running the
// binary without a subcommand starts the server.
func Main(args []string) int {
	name := filepath.Base(args[0])

	log := hclog.New(&hclog.LoggerOptions{
		Name:  name,
		Level: hclog.Info,
	})

	switch {
	case len(args) == 1:
		args = append(args, defaultCommand)
	case len(args) == 2 && (args[1] == "-version" || args[1] == "-v" || args[1] == "--version"):
		args = []string{args[0], "version"}
	}

	ui := &cli.BasicUi{
		Reader:      bufio.NewReader(os.Stdin),
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	initCommands(log, ui)

	c := &cli.CLI{
		Name:         name,
		Args:         args[1:],
		Version:      version.Full(),
		Commands:     Commands,
		HelpFunc:     cli.BasicHelpFunc(name),
		Autocomplete: false,
	}

	exitCode, err := c.Run()
	if err != nil {
		ui.Error("designhub: " + err.Error())
		return 1
	}
	return exitCode
}
