package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"ultrashots/pkg/accounts"
	"ultrashots/pkg/config"
	"ultrashots/pkg/database"
)

func main() {
	role := flag.String("role", "viewer", "role name to assign")
	cfgPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()
	if flag.NArg() < 3 {
		fmt.Println("usage: go run ./cmd/create_user [--role viewer] <name> <email> <password>")
		os.Exit(2)
	}
	name, email, password := flag.Arg(0), flag.Arg(1), flag.Arg(2)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db, err := database.Open(cfg.DB)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer database.Close(db)

	user, err := accounts.NewService(db).Register(context.Background(), name, email, password, *role)
	if errors.Is(err, accounts.ErrUserExists) {
		fmt.Printf("user %s already exists\n", email)
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	fmt.Printf("created user %s id=%d role=%s\n", user.Email, user.ID, *role)
}
