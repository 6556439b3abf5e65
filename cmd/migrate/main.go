// Command migrate applies the embedded schema migrations.
//
//	migrate            # up to latest
//	migrate -steps -1  # roll back one
package main

import (
	"flag"
	"log/slog"
	"os"

	"recruit/internal/config"
	"recruit/internal/logging"
	"recruit/internal/store/pg"
)

func main() {
	steps := flag.Int("steps", 0, "number of migrations to apply; negative rolls back, 0 migrates fully up")
	flag.Parse()

	cfg := config.LoadMigrate()
	logging.Init("migrate", cfg.LogFormat)

	if err := pg.Migrate(cfg.DBDSN, *steps); err != nil {
		slog.Error("migrate failed", "err", err, "steps", *steps)
		os.Exit(1)
	}
	slog.Info("migrate complete", "steps", *steps)
}
