package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	todo_errors "todo-system/pkg/errors"
	"todo-system/pkg/todoclient"
)

const usage = `
Todo System - Command Line Client

Usage:
  todoctl [flags] [command] [args]

Commands:
  list                 List every todo
  add <title>          Create a todo
  rename <id> <title>  Change the title of a todo
  rm <id>              Delete a todo

Flags:
  -api string       API base URL (default $TODO_API_URL or "http://localhost:8080")
  -email string     Login email (default $TODO_EMAIL)
  -password string  Login password (default $TODO_PASSWORD)
  -token string     Access token, skips login (default $TODO_TOKEN)

Examples:
  go run ./cmd/todoctl -email me@example.com -password 'Secret1!' list
  go run ./cmd/todoctl add "Buy milk"
`

func main() {
	api := flag.String("api", envOr("TODO_API_URL", "http://localhost:8080"), "API base URL")
	email := flag.String("email", os.Getenv("TODO_EMAIL"), "Login email")
	password := flag.String("password", os.Getenv("TODO_PASSWORD"), "Login password")
	token := flag.String("token", os.Getenv("TODO_TOKEN"), "Access token")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := todoclient.New(*api, todoclient.WithToken(*token))
	if *token == "" {
		if *email == "" || *password == "" {
			log.Fatal("❌ Either -token or -email and -password are required")
		}
		if err := client.Login(ctx, *email, *password); err != nil {
			log.Fatalf("❌ Login failed: %v", err)
		}
	}

	args := flag.Args()[1:]
	var err error
	switch flag.Arg(0) {
	case "list":
		err = list(ctx, client)
	case "add":
		err = add(ctx, client, args)
	case "rename":
		err = rename(ctx, client, args)
	case "rm":
		err = remove(ctx, client, args)
	default:
		fmt.Printf("Unknown command: %s\n", flag.Arg(0))
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fail(err)
	}
}

func list(ctx context.Context, client *todoclient.Client) error {
	todos, err := client.GetAll(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDONE\tTITLE")
	for _, t := range todos {
		done := " "
		if t.Completed {
			done = "x"
		}
		fmt.Fprintf(w, "%s\t[%s]\t%s\n", t.ID, done, t.Title)
	}
	return w.Flush()
}

func add(ctx context.Context, client *todoclient.Client, args []string) error {
	if len(args) == 0 {
		return errors.New("add needs a title")
	}
	t, err := client.Create(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	log.Printf("✅ Created %s: %s", t.ID, t.Title)
	return nil
}

func rename(ctx context.Context, client *todoclient.Client, args []string) error {
	if len(args) < 2 {
		return errors.New("rename needs an id and a title")
	}
	t, err := client.Update(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	log.Printf("✅ Renamed %s: %s", t.ID, t.Title)
	return nil
}

func remove(ctx context.Context, client *todoclient.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("rm needs exactly one id")
	}
	if err := client.Delete(ctx, args[0]); err != nil {
		return err
	}
	log.Printf("✅ Deleted %s", args[0])
	return nil
}

func fail(err error) {
	var apiErr *todoclient.APIError
	if errors.As(err, &apiErr) {
		for field, msgs := range apiErr.Fields {
			for _, m := range msgs {
				log.Printf("   %s: %s", field, m)
			}
		}
	}
	if errors.Is(err, todo_errors.ErrNotFound) {
		log.Fatal("❌ No such todo")
	}
	log.Fatalf("❌ %v", err)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
