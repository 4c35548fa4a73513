// Operator commands for the office backend: token maintenance, stats and schema migrations.
// Maintenance is meant to be run periodically by an external scheduler (cron, k8s CronJob).
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/nkiryanov/bufete/internal/db"
	"github.com/nkiryanov/bufete/internal/logger"
	"github.com/nkiryanov/bufete/internal/repository/postgres"
	"github.com/nkiryanov/bufete/internal/service/session"
)

const secretKeyBytesLen = 32

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		slog.Error("command failed", "error", err.Error())
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	dsnFlag := &cli.StringFlag{
		Name:     "database",
		Aliases:  []string{"d"},
		Usage:    "Database connection string",
		EnvVars:  []string{"DATABASE_URI"},
		Required: true,
	}

	return &cli.App{
		Name:   "bufetectl",
		Usage:  "office backend operator tool",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Logging level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   logger.LevelInfo,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "maintenance",
				Usage:  "purge expired blacklist entries and refresh tokens",
				Flags:  []cli.Flag{dsnFlag},
				Action: withSessions(runMaintenance),
			},
			{
				Name:   "stats",
				Usage:  "print token blacklist counters",
				Flags:  []cli.Flag{dsnFlag},
				Action: withSessions(runStats),
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations",
				Flags:  []cli.Flag{dsnFlag},
				Action: runMigrate,
			},
			{
				Name:   "gensecret",
				Usage:  "generate random secret key to sign tokens",
				Action: runGenSecret,
			},
		},
	}
}

type sessionAction func(c *cli.Context, sessions *session.Service) error

// Connect to the database and build session service for the action
func withSessions(action sessionAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		l, err := logger.NewTextLogger(c.String("log-level"))
		if err != nil {
			return fmt.Errorf("error while initializing logger: %w", err)
		}

		pool, err := db.Connect(c.Context, c.String("database"))
		if err != nil {
			return err
		}
		defer pool.Close()

		sessions, err := session.NewService(postgres.NewStorage(pool), l)
		if err != nil {
			return err
		}

		return action(c, sessions)
	}
}

func runMaintenance(c *cli.Context, sessions *session.Service) error {
	report, err := sessions.PerformMaintenance(c.Context)
	if err != nil {
		return err
	}

	return printJSON(c.App.Writer, report)
}

func runStats(c *cli.Context, sessions *session.Service) error {
	stats, err := sessions.Stats(c.Context)
	if err != nil {
		return err
	}

	return printJSON(c.App.Writer, stats)
}

func runMigrate(c *cli.Context) error {
	version, err := db.Migrate(c.String("database"))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(c.App.Writer, "schema version %d\n", version)
	return err
}

func runGenSecret(c *cli.Context) error {
	b := make([]byte, secretKeyBytesLen)

	if _, err := rand.Read(b); err != nil {
		return fmt.Errorf("error while generating secret key: %w", err)
	}

	_, err := fmt.Fprintln(c.App.Writer, hex.EncodeToString(b))
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
