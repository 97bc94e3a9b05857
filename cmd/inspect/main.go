// Command inspect reads and seeds the badger store of a stopped server.
//
//	inspect messages [-user alice]
//	inspect add-user <id> <display name>
//	inspect token <id>
package main

import (
	"context"
	"flag"
	"fmt"
	"helpdesk-chat/auth"
	"helpdesk-chat/domain"
	"helpdesk-chat/infrastructure/storage"
	"helpdesk-chat/internal"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: inspect messages|add-user|token")
	}

	switch args[0] {
	case "messages":
		flags := flag.NewFlagSet("messages", flag.ExitOnError)
		dbPath := flags.String("db", config.BadgerFilepath, "Path to badger DB")
		user := flags.String("user", "", "Only the conversation of this user")
		_ = flags.Parse(args[1:])
		return listMessages(*dbPath, *user)
	case "add-user":
		if len(args) < 3 {
			return fmt.Errorf("usage: inspect add-user <id> <display name>")
		}
		return addUser(config.BadgerFilepath, args[1], strings.Join(args[2:], " "))
	case "token":
		if len(args) < 2 {
			return fmt.Errorf("usage: inspect token <id>")
		}
		if config.AuthSecret == "" {
			return fmt.Errorf("AUTH_SECRET is empty")
		}
		token, err := auth.NewAuthenticator(config.AuthSecret).GenerateToken(args[1], []string{"agent"}, 24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func listMessages(dbPath, user string) error {
	// Bypassing the lock guard allows reading while the server holds it
	db, err := badger.Open(badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	log := logs.GetLoggerFromLevel(slog.LevelWarn)
	users := storage.NewUserRepository(db)
	repository := storage.NewMessageRepository(db, log, users, 0)

	var messages []domain.Message
	if user != "" {
		messages, err = repository.FindConversation(context.Background(), user)
	} else {
		messages, err = repository.All()
	}
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Created", "Sender", "Receiver", "Status", "Message"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, m := range messages {
		table.Append([]string{
			m.ID[:8],
			m.CreatedAt.Local().Format(time.DateTime),
			m.Sender,
			m.Receiver,
			renderStatus(m.Status),
			truncate(m.Content, 60),
		})
	}
	table.Render()
	fmt.Printf("\n%d message(s)\n", len(messages))
	return nil
}

func addUser(dbPath, id, name string) error {
	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("failed to open database (is the server running?): %w", err)
	}
	defer db.Close()

	if err = storage.NewUserRepository(db).CreateUser(context.Background(), id, name); err != nil {
		return err
	}
	fmt.Println(color.New(color.FgGreen).Render("created"), id, name)
	return nil
}

func renderStatus(status domain.Status) string {
	switch status {
	case domain.StatusSent:
		return color.New(color.FgYellow).Render(string(status))
	case domain.StatusDelivered:
		return color.New(color.FgCyan).Render(string(status))
	case domain.StatusSeen:
		return color.New(color.FgGreen).Render(string(status))
	default:
		return string(status)
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
