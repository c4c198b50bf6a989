// Command designhub-migrate applies the designhub schema from a DSN without
// loading the server configuration. Deployment pipelines run it ahead of the
// server when serve -migrate=false is used.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	_ "github.com/lib/pq" // PostgreSQL driver; the sqlite driver comes with internal/migrate

	"github.com/lordrhodos/apicurio-studio/internal/migrate"
)

func main() {
	driver := flag.String("driver", "postgres", "Database driver (postgres|sqlite)")
	dsn := flag.String("dsn", "", "Database connection string")
	status := flag.Bool("status", false, "Print the current schema version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Apply the designhub database schema.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n\n")
		fmt.Fprintf(os.Stderr, "  %s -driver=postgres -dsn=\"host=localhost user=postgres password=postgres dbname=designhub port=5432 sslmode=disable\"\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -driver=sqlite -dsn=\"designhub.db\"\n", os.Args[0])
	}
	flag.Parse()

	log := hclog.New(&hclog.LoggerOptions{Name: "designhub-migrate"})

	if *dsn == "" {
		log.Error("-dsn is required")
		flag.Usage()
		os.Exit(2)
	}
	if *driver != "postgres" && *driver != "sqlite" {
		log.Error("unsupported driver", "driver", *driver)
		os.Exit(2)
	}

	sqlDB, err := sql.Open(*driver, *dsn)
	if err != nil {
		log.Error("error opening database", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Error("error connecting to database", "error", err)
		os.Exit(1)
	}

	if !*status {
		log.Info("running migrations", "driver", *driver)
		if err := migrate.RunMigrations(sqlDB, *driver); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
	}

	version, dirty, err := migrate.GetMigrationVersion(sqlDB, *driver)
	if err != nil {
		log.Error("error reading schema version", "error", err)
		os.Exit(1)
	}
	log.Info("schema version", "version", version, "dirty", dirty)
}
