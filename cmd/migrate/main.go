package main

import (
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/promptlab/backend/internal/infrastructure/config"
	"github.com/promptlab/backend/internal/infrastructure/logger"
	"github.com/promptlab/backend/internal/infrastructure/persistence"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	var (
		logLevel string
		force    bool
	)
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&force, "force", false, "Required by drop")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(&logger.Config{Level: logLevel, Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := persistence.Open(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() { _ = persistence.Close(db) }()

	switch command {
	case "up":
		if err := persistence.AutoMigrate(db); err != nil {
			log.Fatal("Migration failed", zap.Error(err))
		}
		log.Info("Schema is up to date", zap.Int("tables", len(persistence.Models())))

	case "status":
		for _, name := range tableNames(db) {
			state := "missing"
			if db.Migrator().HasTable(name) {
				state = "present"
			}
			fmt.Printf("  %-24s %s\n", name, state)
		}

	case "drop":
		if !force {
			log.Fatal("drop removes every table; rerun with -force")
		}
		if cfg.IsProduction() {
			log.Fatal("drop is disabled in production")
		}
		// reverse order so dependents go first
		models := slices.Clone(persistence.Models())
		slices.Reverse(models)
		if err := db.Migrator().DropTable(models...); err != nil {
			log.Fatal("Drop failed", zap.Error(err))
		}
		log.Warn("All tables dropped")

	default:
		log.Error("Unknown command", zap.String("command", command))
		printUsage()
		os.Exit(1)
	}
}

func tableNames(db *gorm.DB) []string {
	var names []string
	for _, m := range persistence.Models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			continue
		}
		names = append(names, stmt.Schema.Table)
	}
	return names
}

func printUsage() {
	fmt.Println(`Database migration tool

Usage:
  migrate [flags] <command>

Commands:
  up        Create or update all tables
  status    Show which tables exist
  drop      Drop all tables (requires -force, refused in production)

Flags:
  -log-level  Log level (debug, info, warn, error)
  -force      Confirm destructive commands

Environment:
  PROMPTLAB_DATABASE_DRIVER, PROMPTLAB_DATABASE_HOST, PROMPTLAB_DATABASE_NAME ...`)
}
