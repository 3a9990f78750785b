package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ultrashots/pkg/config"
	"ultrashots/pkg/database"
	"ultrashots/process/report"
)

func main() {
	month := flag.String("month", time.Now().UTC().Format("2006-01"), "month to report (YYYY-MM)")
	customerID := flag.Uint("customer-id", 0, "limit to one customer")
	list := flag.Bool("list", false, "list matching projects")
	cfgPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	db, err := database.Open(cfg.DB)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer database.Close(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rep, err := report.Build(ctx, db, *month, *customerID, *list)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := rep.Print(os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
}
