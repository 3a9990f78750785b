package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ultrashots/pkg/config"
	"ultrashots/pkg/database"
	"ultrashots/pkg/logger"
	"ultrashots/pkg/media"
	"ultrashots/process/logoimport"
)

// Scans a directory of logo images, moves them into the upload store with thumbnails and
// creates Logo rows. With --watch it keeps importing new files until interrupted.
func main() {
	dir := flag.String("dir", "public/logos", "directory to scan for logo images")
	customerID := flag.Uint("customer-id", 0, "customer to assign imported logos to")
	dryRun := flag.Bool("dry-run", false, "list candidate files without touching the database")
	watch := flag.Bool("watch", false, "watch directory for new files")
	workers := flag.Int("workers", 0, "worker pool size (default NumCPU)")
	cfgPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	if *dryRun {
		files, err := logoimport.ListImages(*dir)
		if err != nil {
			log.Fatalf("scan failed: %v", err)
		}
		fmt.Printf("Dry-run: %d candidate files in %s\n", len(files), *dir)
		for _, f := range files {
			fmt.Printf("  %s -> %s\n", f, logoimport.DisplayName(f))
		}
		return
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	db, err := database.Open(cfg.DB)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer database.Close(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	im := logoimport.New(db, media.NewStore(cfg.Uploads.Base, cfg.Uploads.MaxSize), lg, logoimport.Options{
		Dir:        *dir,
		Workers:    *workers,
		CustomerID: *customerID,
	})
	if err := im.Preload(ctx); err != nil {
		log.Fatalf("preload: %v", err)
	}
	lg.Info("preloaded logos", "count", im.Known())

	stats, err := im.Scan(ctx)
	if err != nil {
		log.Fatalf("scan: %v", err)
	}
	fmt.Printf("Imported %d, skipped %d, failed %d\n", stats.Imported, stats.Skipped, stats.Failed)

	if *watch {
		if err := im.Watch(ctx); err != nil {
			log.Fatalf("watch failed: %v", err)
		}
	}
}
