package base

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/lordrhodos/apicurio-studio/internal/config"
	"github.com/lordrhodos/apicurio-studio/pkg/database"
)

// Bootstrap loads the configuration at path and reconfigures c.Log from it.
func (c *Command) Bootstrap(path string) (*config.Config, error) {
	cfg, err := config.NewConfig(path)
	if err != nil {
		return nil, err
	}

	c.Log = hclog.New(&hclog.LoggerOptions{
		Name:       c.Log.Name(),
		Level:      hclog.LevelFromString(cfg.LogLevel),
		JSONFormat: cfg.LogFormat == "json",
		Output:     os.Stderr,
	})
	return cfg, nil
}

// ConnectDB opens the database described by cfg.
func (c *Command) ConnectDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Connect(cfg.DatabaseConfig(), c.Log)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return db, nil
}
