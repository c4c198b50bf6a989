package server

import (
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/lordrhodos/apicurio-studio/internal/config"
	"github.com/lordrhodos/apicurio-studio/pkg/designs"
	"github.com/lordrhodos/apicurio-studio/pkg/session"
)

// Server contains the server configuration.
type Server struct {
	// Config is the config for the server.
	Config *config.Config

	// DB is the database for the server.
	DB *gorm.DB

	// Designs implements every design operation the API exposes.
	Designs *designs.Service

	// Hub fans live editing messages out to the clients of each design.
	Hub *session.Hub

	// Logger is the logger for the server.
	Logger hclog.Logger
}
