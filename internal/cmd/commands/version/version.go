package version

import (
	"github.com/lordrhodos/apicurio-studio/internal/cmd/base"
	"github.com/lordrhodos/apicurio-studio/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the version"
}

func (c *Command) Help() string {
	return `Usage: designhub version

  Print the designhub version.`
}

func (c *Command) Run(args []string) int {
	c.UI.Output(version.Full())
	return 0
}
