package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"parlomo-ticketing/internal/database/migrations"
	"parlomo-ticketing/internal/logger"
)

func main() {
	log := logger.NewLogger()
	defer log.Close()

	var (
		dir     = flag.String("dir", "./migrations", "directory containing migration files")
		down    = flag.Bool("down", false, "roll back all migrations")
		version = flag.Uint("to", 0, "migrate to a specific version (0 means latest)")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
	}

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	runner := migrations.NewRunner(bunDB, migrations.Options{MigrationsDir: *dir}, log)
	defer runner.Close()

	switch {
	case *down:
		err = runner.MigrateDown()
	case *version > 0:
		err = runner.MigrateTo(*version)
	default:
		err = runner.MigrateUp()
	}
	if err != nil {
		log.Fatal("DB", fmt.Sprintf("Migration failed: %v", err))
	}

	log.Info("DB", "Migrations applied successfully")
}
