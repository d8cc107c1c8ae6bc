// Command migrate applies or inspects the catalogue schema (providers,
// models, upload_directories, sync_jobs) independently of the server
// process, following the teacher's standalone migrate CLI
// (apps/rest-api/cmd/migrate/main.go) with its flag set narrowed to what
// golang-migrate's Manager actually exposes.
package main

import (
	"flag"
	"fmt"
	"log"

	sqlite3 "github.com/mattn/go-sqlite3"

	"database/sql"

	"github.com/joho/godotenv"

	"github.com/eeslabs/embedding-core/internal/config"
	"github.com/eeslabs/embedding-core/internal/storage/migrations"
)

var (
	up      = flag.Bool("up", false, "Apply all pending migrations")
	down    = flag.Bool("down", false, "Roll back all applied migrations")
	steps   = flag.Int("steps", 0, "Apply n migrations forward, or roll back -n")
	version = flag.Bool("version", false, "Show the current migration version")
	dsn     = flag.String("dsn", "", "Database path (defaults to EES_DATABASE_URL)")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	databaseURL := *dsn
	if databaseURL == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("failed to load configuration: %v", err)
		}
		databaseURL = cfg.DatabaseURL
	}

	db, err := sql.Open("sqlite3_ees_migrate", databaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	mgr, err := migrations.NewManager(db)
	if err != nil {
		log.Fatalf("failed to construct migration manager: %v", err)
	}

	switch {
	case *up:
		if err := mgr.Up(); err != nil {
			log.Fatalf("migrate up failed: %v", err)
		}
		fmt.Println("migrations applied")
	case *down:
		if err := mgr.Down(); err != nil {
			log.Fatalf("migrate down failed: %v", err)
		}
		fmt.Println("migrations rolled back")
	case *steps != 0:
		if err := mgr.Steps(*steps); err != nil {
			log.Fatalf("migrate steps failed: %v", err)
		}
		fmt.Printf("applied %d step(s)\n", *steps)
	case *version:
		v, dirty, err := mgr.Version()
		if err != nil {
			log.Fatalf("failed to read migration version: %v", err)
		}
		fmt.Printf("version=%d dirty=%v\n", v, dirty)
	default:
		flag.Usage()
	}
}

func init() {
	// migrate runs against a plain sqlite3 driver since it never touches
	// the embeddings table's cosine_distance function; registered under
	// its own name so it never collides with storage.Engine's driver
	// registration when both run in the same process (e.g. tests).
	sql.Register("sqlite3_ees_migrate", &sqlite3.SQLiteDriver{})
}
