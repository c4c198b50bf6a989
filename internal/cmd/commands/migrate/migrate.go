package migrate

import (
	"flag"
	"fmt"

	"github.com/lordrhodos/apicurio-studio/internal/cmd/base"
	"github.com/lordrhodos/apicurio-studio/internal/migrate"
)

type Command struct {
	*base.Command

	flagConfig  string
	flagVersion bool
}

func (c *Command) Synopsis() string {
	return "Apply database schema migrations"
}

func (c *Command) Help() string {
	return `Usage: designhub migrate [options]

  Apply every pending schema migration to the configured database. Both
  PostgreSQL and SQLite are supported.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("migrate", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"Path to the designhub config file. Settings may also come from\nDESIGNHUB_* environment variables.",
	)
	f.BoolVar(
		&c.flagVersion, "version", false,
		"Print the current schema version and exit.",
	)

	return f
}

func (c *Command) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := c.Bootstrap(c.flagConfig)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error parsing config: %v", err))
		return 1
	}
	db, err := c.ConnectDB(cfg)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	sqlDB, err := db.DB()
	if err != nil {
		c.UI.Error(fmt.Sprintf("error getting database handle: %v", err))
		return 1
	}
	defer sqlDB.Close()

	driver := cfg.Database.Driver
	if !c.flagVersion {
		c.Log.Info("running migrations", "driver", driver)
		if err := migrate.RunMigrations(sqlDB, driver); err != nil {
			c.UI.Error(fmt.Sprintf("error running migrations: %v", err))
			return 1
		}
	}

	v, dirty, err := migrate.GetMigrationVersion(sqlDB, driver)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error reading schema version: %v", err))
		return 1
	}
	c.UI.Output(fmt.Sprintf("schema version %d (dirty=%t)", v, dirty))
	return 0
}
