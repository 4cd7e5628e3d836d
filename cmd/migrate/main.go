// migrate applies the embedded SQL migrations; run with go run ./cmd/migrate.
// -direction=version prints the applied schema version instead.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"auditflow/backend/internal/config"
	"auditflow/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", migrate.DirectionUp, "Migration direction: up, down or version")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
		os.Exit(1)
	}

	if *direction == "version" {
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		fmt.Printf("schema version %d (dirty=%v)\n", v, dirty)
		if dirty {
			os.Exit(2)
		}
		return
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return
		}
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	v, _, err := migrate.Version(cfg.DatabaseURL)
	if err == nil {
		fmt.Printf("migrated %s, schema version %d\n", *direction, v)
	}
}
