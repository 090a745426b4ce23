package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"todo-system/config"
	"todo-system/internal/repository"
	"todo-system/internal/services"
	"todo-system/pkg/database"
	"todo-system/pkg/logger"
)

const usage = `
Todo System - Database CLI Tool

Usage:
  migrate [flags] [command]

Commands:
  up          Apply all pending migrations
  down        Roll back applied migrations (all unless -steps is set)
  status      Show every migration and whether it is applied
  seed        Create or promote the admin user

Flags:
  -steps int           Number of migrations to roll back with down (default all)
  -admin-email string  Admin email for seeding (default "admin@todo.local")
  -admin-pass string   Admin password for seeding (default "Admin@123!")

Examples:
  go run ./cmd/migrate up
  go run ./cmd/migrate -steps 1 down
  go run ./cmd/migrate -admin-email me@example.com seed
`

func main() {
	steps := flag.Int("steps", 0, "Number of migrations to roll back")
	adminEmail := flag.String("admin-email", "admin@todo.local", "Admin email for seeding")
	adminPass := flag.String("admin-pass", "Admin@123!", "Admin password for seeding")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer database.Close()

	switch command {
	case "up":
		runMigrationsUp(ctx)
	case "down":
		runMigrationsDown(ctx, *steps)
	case "status":
		showStatus(ctx)
	case "seed":
		runSeed(ctx, cfg, repository.NewStore(db), *adminEmail, *adminPass)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp(ctx context.Context) {
	log.Println("🚀 Running migrations UP...")

	applied, err := database.Migrate(ctx, database.DB, database.Migrations())
	if err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	for _, v := range applied {
		log.Printf("   applied %s", v)
	}

	log.Printf("✅ Migrations completed successfully! (%d applied)", len(applied))
}

func runMigrationsDown(ctx context.Context, steps int) {
	log.Println("⬇️  Rolling back migrations...")

	reverted, err := database.Rollback(ctx, database.DB, database.Migrations(), steps)
	if err != nil {
		log.Fatalf("❌ Rollback failed: %v", err)
	}
	for _, v := range reverted {
		log.Printf("   reverted %s", v)
	}

	log.Println("✅ Rollback completed successfully!")
}

func showStatus(ctx context.Context) {
	log.Println("🔍 Checking database status...")

	if err := database.HealthCheck(ctx); err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	log.Println("✅ Database connection: OK")

	statuses, err := database.Status(ctx, database.DB, database.Migrations())
	if err != nil {
		log.Fatalf("❌ Could not read migration status: %v", err)
	}
	for _, s := range statuses {
		if s.Applied {
			log.Printf("✅ %-30s applied %s", s.Version, s.AppliedAt.Format(time.RFC3339))
		} else {
			log.Printf("❌ %-30s pending", s.Version)
		}
	}
}

func runSeed(ctx context.Context, cfg *config.Config, store *repository.Store, adminEmail, adminPass string) {
	log.Println("🌱 Seeding database...")

	auth := services.NewAuthService(store.Users, services.NewBcryptHasher(cfg.BcryptCost), services.NewAuthConfig(cfg), logger.New(cfg.AppMode))
	info, created, err := auth.EnsureAdmin(ctx, services.RegisterInput{
		Email:       adminEmail,
		Password:    adminPass,
		DisplayName: "Administrator",
	})
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	if created {
		log.Printf("✅ Admin user created: %s (ID: %s)", info.Email, info.ID)
	} else {
		log.Printf("✅ Admin user verified: %s (ID: %s)", info.Email, info.ID)
	}
}
