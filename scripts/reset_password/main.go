package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"ultrashots/pkg/accounts"
	"ultrashots/pkg/config"
	"ultrashots/pkg/database"
)

func main() {
	email := flag.String("email", "", "email of the user to reset")
	password := flag.String("password", "", fmt.Sprintf("new plaintext password (min %d chars)", accounts.MinPasswordLength))
	cfgPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()
	if *email == "" || *password == "" {
		log.Fatal("--email and --password are required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db, err := database.Open(cfg.DB)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer database.Close(db)

	if err := accounts.NewService(db).ResetPassword(context.Background(), *email, *password); err != nil {
		log.Fatalf("reset failed: %v", err)
	}
	fmt.Printf("Password reset for user %s\n", *email)
}
