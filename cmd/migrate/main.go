package main

import (
	"log"

	"webpush-service/internal/config"
	"webpush-service/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := db.Migrate(cfg.DB.DSN); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migrations applied")
}
