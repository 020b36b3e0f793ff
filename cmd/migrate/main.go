// migrate runs Postgres migrations from embedded SQL; run with go run ./cmd/migrate.
package main

import (
	"flag"
	"fmt"
	"os"

	"naija-nutri-hub/backend/internal/config"
	"naija-nutri-hub/backend/internal/db/migrate"
)

func main() {
	command := flag.String("command", "up", `Migration command: "up", "down", "version", or a step count such as "+1" or "-1"`)
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

	if *command == "version" {
		st, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		fmt.Printf("version %d (dirty: %t)\n", st.Version, st.Dirty)
		return
	}
	if err := migrate.Run(cfg.DatabaseURL, *command); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
