// vaultadmin is the operator tool for the vault engine: schema migrations,
// profile registration, administrative unlock, audit inspection and session
// cleanup.
//
// Usage:
//
//	vaultadmin migrate            [-d dsn]
//	vaultadmin register           [-d dsn] -user <name> [-question q -answer a]
//	vaultadmin unlock             [-d dsn] -id <profile id>
//	vaultadmin events             [-d dsn] -id <profile id> [-type t] [-category c]
//	vaultadmin purge-sessions     [-d dsn]
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/dmitrijs2005/passvault/internal/flagx"
	"github.com/dmitrijs2005/passvault/internal/logging"
	"github.com/dmitrijs2005/passvault/internal/vault"
	"github.com/dmitrijs2005/passvault/internal/vault/config"
	eventsrepo "github.com/dmitrijs2005/passvault/internal/vault/repositories/events"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	engine, err := vault.NewEngine(cfg, logger)
	if err != nil {
		log.Fatalf("engine init: %v", err)
	}
	defer engine.Close()

	switch os.Args[1] {
	case "migrate":
		err = engine.Migrate(ctx)
	case "register":
		err = runRegister(ctx, engine)
	case "unlock":
		err = runUnlock(ctx, engine)
	case "events":
		err = runEvents(ctx, engine)
	case "purge-sessions":
		err = runPurgeSessions(ctx, engine)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: vaultadmin <migrate|register|unlock|events|purge-sessions> [flags]")
}

func runRegister(ctx context.Context, engine *vault.Engine) error {
	args := flagx.FilterArgs(os.Args[2:], []string{"-user", "-question", "-answer"})
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	user := fs.String("user", "", "username")
	question := fs.String("question", "", "secret question")
	answer := fs.String("answer", "", "secret answer")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return errors.New("missing -user")
	}

	password, err := readPassword("Master password: ")
	if err != nil {
		return err
	}
	confirm, err := readPassword("Repeat password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}

	profile, err := engine.Accounts().Register(ctx, *user, password, *question, *answer)
	if err != nil {
		return err
	}
	fmt.Printf("profile %d (%s) registered\n", profile.ID, profile.Username)
	return nil
}

func runUnlock(ctx context.Context, engine *vault.Engine) error {
	id, err := profileIDFlag("unlock")
	if err != nil {
		return err
	}
	if err := engine.Accounts().Unlock(ctx, id); err != nil {
		return err
	}
	fmt.Printf("profile %d unlocked\n", id)
	return nil
}

func runEvents(ctx context.Context, engine *vault.Engine) error {
	args := flagx.FilterArgs(os.Args[2:], []string{"-id", "-type", "-category", "-limit"})
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	id := fs.Int64("id", 0, "profile id")
	eventType := fs.String("type", "", "event type filter")
	category := fs.String("category", "", "category filter")
	limit := fs.Int("limit", 0, "max events")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return errors.New("missing -id")
	}

	events, err := engine.Audit().ListEvents(ctx, *id, eventsrepo.Filter{
		EventType: *eventType,
		Category:  *category,
		Limit:     *limit,
	})
	if err != nil {
		return err
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.EventTime.Format("2006-01-02 15:04:05"), e.Category, e.EventType, e.Details)
	}
	return nil
}

func runPurgeSessions(ctx context.Context, engine *vault.Engine) error {
	n, err := engine.Sessions().PurgeExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d expired sessions removed\n", n)
	return nil
}

func profileIDFlag(name string) (int64, error) {
	args := flagx.FilterArgs(os.Args[2:], []string{"-id"})
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	id := fs.Int64("id", 0, "profile id")
	if err := fs.Parse(args); err != nil {
		return 0, err
	}
	if *id == 0 {
		return 0, errors.New("missing -id")
	}
	return *id, nil
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
