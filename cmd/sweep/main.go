// Command sweep removes stale entries from the temp area. Run it
// against the TEMP_DIR of a service instance that is stopped or
// crashed; a running instance sweeps on its own.
package main

import (
	"os"
	"time"

	"helvetia/internal/config"
	"helvetia/internal/pkg/logger"
	"helvetia/internal/tempfiles"
)

func main() {
	log := logger.New(logger.Config{
		Level:       config.Env("LOG_LEVEL", "info"),
		Format:      config.Env("LOG_FORMAT", "text"),
		ServiceName: "helvetia-sweep",
	})

	root := config.Env("TEMP_DIR", "./data/tmp")
	maxAge := config.DurationEnv("SWEEP_MAX_AGE", time.Hour)

	mgr, err := tempfiles.NewManager(root, log)
	if err != nil {
		log.Error("cannot open temp root", "root", root, "error", err.Error())
		os.Exit(1)
	}

	removed, err := mgr.Sweep(maxAge)
	if err != nil {
		log.Error("sweep failed", "root", root, "error", err.Error())
		os.Exit(1)
	}

	log.Info("sweep complete", "root", root, "max_age", maxAge.String(), "removed", removed)
}
