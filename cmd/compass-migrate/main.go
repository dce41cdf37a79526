// compass-migrate applies the Compass database schema. It is the only
// binary that should change schema in production; the server's gorm
// automigrate is for development databases.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	// The PostgreSQL driver registers itself as "postgres". The "sqlite"
	// driver comes in through golang-migrate's sqlite database package,
	// which blank-imports modernc.org/sqlite.
	_ "github.com/lib/pq"

	"github.com/niranworks/compass/internal/migrate"
)

func main() {
	driver := flag.String("driver", "postgres", "Database driver (postgres|sqlite)")
	dsn := flag.String("dsn", "", "Database connection string")
	status := flag.Bool("status", false, "Report the current schema version without migrating")

	flag.Usage = usage
	flag.Parse()

	if *dsn == "" {
		log.Fatal("Error: -dsn flag is required\n\nRun with -help for usage information.")
	}
	if *driver != "postgres" && *driver != "sqlite" {
		log.Fatalf("Error: unsupported driver '%s' (must be 'postgres' or 'sqlite')\n", *driver)
	}

	log.Printf("Connecting to %s database...\n", *driver)
	sqlDB, err := sql.Open(*driver, *dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v\n", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v\n", err)
	}
	log.Printf("✓ Connected to database\n")

	if *status {
		reportStatus(sqlDB, *driver)
		return
	}

	log.Printf("Running migrations...\n")
	if err := migrate.RunMigrations(sqlDB, *driver); err != nil {
		log.Fatalf("Migration failed: %v\n", err)
	}

	version, dirty, err := migrate.GetMigrationVersion(sqlDB, *driver)
	if err != nil {
		log.Fatalf("Migrations applied but version could not be read: %v\n", err)
	}
	if dirty {
		log.Fatalf("Schema is dirty at version %d, a migration did not complete\n", version)
	}

	log.Printf("✅ All migrations completed successfully (schema version %d)\n", version)
}

// reportStatus prints the schema version the database sits at. A dirty
// schema means a previous migration run died partway and needs manual
// attention before migrating again.
func reportStatus(db *sql.DB, driver string) {
	version, dirty, err := migrate.GetMigrationVersion(db, driver)
	if err != nil {
		log.Fatalf("Failed to read schema version: %v\n", err)
	}
	if dirty {
		log.Printf("Schema version: %d (DIRTY)\n", version)
		os.Exit(1)
	}
	log.Printf("Schema version: %d\n", version)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Compass Database Migration Tool\n\n")
	fmt.Fprintf(os.Stderr, "Applies the document, outbox, execution and token schema to a\n")
	fmt.Fprintf(os.Stderr, "PostgreSQL or SQLite database, then the driver-specific\n")
	fmt.Fprintf(os.Stderr, "enhancements for that backend.\n\n")
	fmt.Fprintf(os.Stderr, "OPTIONS:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n\n")
	fmt.Fprintf(os.Stderr, "  PostgreSQL:\n")
	fmt.Fprintf(os.Stderr, "    %s -driver=postgres -dsn=\"host=localhost user=postgres password=postgres dbname=compass port=5432 sslmode=disable\"\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  SQLite:\n")
	fmt.Fprintf(os.Stderr, "    %s -driver=sqlite -dsn=\".compass/compass.db\"\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  Check the schema version without migrating:\n")
	fmt.Fprintf(os.Stderr, "    %s -status -driver=sqlite -dsn=\".compass/compass.db\"\n\n", os.Args[0])
}
