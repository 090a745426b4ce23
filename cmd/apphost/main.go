package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"todo-system/internal/apphost"
	"todo-system/pkg/logger"
)

func main() {
	dashboardAddr := flag.String("dashboard", "localhost:18888", "Dashboard listen address")
	flag.Parse()

	l := logger.New(os.Getenv("APP_MODE"))
	logger.SetGlobalLogger(l)
	defer l.Sync()

	b := apphost.NewBuilder()

	postgres := b.AddContainer("postgres", "postgres:16").
		WithEnvironment("POSTGRES_PASSWORD", getEnv("POSTGRES_PASSWORD", "postgres")).
		WithPort(5432, 5432)

	b.AddProject("api", "go", "run", "./cmd/api").
		WithReference(postgres).
		WithEnvironment("APP_PORT", getEnv("APP_PORT", "8080")).
		WithEnvironment("AUTH_TRUSTED_ORIGINS", "http://localhost:3001")

	b.AddDashboard(*dashboardAddr)

	app, err := b.Build(apphost.NewExecRunner(l), l)
	if err != nil {
		l.Errorf("Invalid application model: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		l.Errorf("Shutdown finished with errors: %v", err)
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
