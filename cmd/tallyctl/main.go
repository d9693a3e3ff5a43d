// Command tallyctl administers a tallyup database: families, members,
// activities, access tokens and offline stats rebuilds. It reads the same
// TALLYUP_* configuration as the server.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/tallyup/internal/auth"
	"github.com/dukerupert/tallyup/internal/config"
	"github.com/dukerupert/tallyup/internal/database"
	"github.com/dukerupert/tallyup/internal/gamification"
	"github.com/dukerupert/tallyup/internal/model"
	"github.com/dukerupert/tallyup/internal/store"
)

const usage = `usage: tallyctl <command> [flags]

commands:
  family create  -name NAME
  member add     -family ID -user ID -name NAME -role parent|child
  activity add   -family ID -name NAME -unit UNIT -rate AMOUNT -by USER
  token          -family ID -user ID [-ttl 720h]
  set-pin        -family ID -user ID -pin 1234
  replay         [-user ID]
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "tallyctl:", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid usage")

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errUsage
	}

	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	c := &cli{cfg: cfg, db: db, out: out}
	switch args[0] {
	case "family":
		return c.sub(ctx, args[1:], map[string]command{"create": c.familyCreate})
	case "member":
		return c.sub(ctx, args[1:], map[string]command{"add": c.memberAdd})
	case "activity":
		return c.sub(ctx, args[1:], map[string]command{"add": c.activityAdd})
	case "token":
		return c.token(ctx, args[1:])
	case "set-pin":
		return c.setPIN(ctx, args[1:])
	case "replay":
		return c.replay(ctx, args[1:])
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

type command func(ctx context.Context, args []string) error

type cli struct {
	cfg *config.Config
	db  *sql.DB
	out io.Writer
}

func (c *cli) sub(ctx context.Context, args []string, cmds map[string]command) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := cmds[args[0]]
	if !ok {
		return fmt.Errorf("unknown subcommand %q: %w", args[0], errUsage)
	}
	return cmd(ctx, args[1:])
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func required(fs *flag.FlagSet, names ...string) error {
	for _, n := range names {
		if fs.Lookup(n).Value.String() == "" {
			return fmt.Errorf("-%s is required: %w", n, errUsage)
		}
	}
	return nil
}

func (c *cli) familyCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("family create", flag.ContinueOnError)
	name := fs.String("name", "", "family name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "name"); err != nil {
		return err
	}

	fam, err := store.NewFamilyStore(c.db).Create(ctx, *name)
	if err != nil {
		return err
	}
	return c.print(fam)
}

func (c *cli) memberAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("member add", flag.ContinueOnError)
	familyID := fs.String("family", "", "family id")
	userID := fs.String("user", "", "user id")
	name := fs.String("name", "", "display name")
	role := fs.String("role", model.RoleChild, "parent or child")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "family", "user", "name"); err != nil {
		return err
	}

	member, err := store.NewFamilyStore(c.db).AddMember(ctx, *familyID, *userID, *name, *role)
	if err != nil {
		return err
	}
	return c.print(member)
}

func (c *cli) activityAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("activity add", flag.ContinueOnError)
	familyID := fs.String("family", "", "family id")
	name := fs.String("name", "", "activity name")
	unit := fs.String("unit", "", "unit of work, e.g. load")
	rate := fs.String("rate", "", "amount earned per unit")
	createdBy := fs.String("by", "", "creating parent's user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "family", "name", "unit", "rate", "by"); err != nil {
		return err
	}

	r, err := decimal.NewFromString(*rate)
	if err != nil {
		return fmt.Errorf("invalid rate %q: %w", *rate, err)
	}
	activity, err := store.NewActivityStore(c.db).Create(ctx, *familyID, *name, *unit, r, *createdBy)
	if err != nil {
		return err
	}
	return c.print(activity)
}

func (c *cli) token(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	familyID := fs.String("family", "", "family id")
	userID := fs.String("user", "", "user id")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "family", "user"); err != nil {
		return err
	}

	member, err := store.NewFamilyStore(c.db).GetMember(ctx, *familyID, *userID)
	if err != nil {
		return err
	}
	if member == nil {
		return fmt.Errorf("user %s is not a member of family %s", *userID, *familyID)
	}

	raw, err := auth.NewTokens(c.cfg.JWTSecret, c.cfg.JWTIssuer).Issue(*userID, *familyID, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, raw)
	return err
}

func (c *cli) setPIN(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("set-pin", flag.ContinueOnError)
	familyID := fs.String("family", "", "family id")
	userID := fs.String("user", "", "user id")
	pin := fs.String("pin", "", "4 digit PIN")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "family", "user", "pin"); err != nil {
		return err
	}

	if err := store.NewFamilyStore(c.db).SetPIN(ctx, *familyID, *userID, *pin); err != nil {
		return err
	}
	_, err := fmt.Fprintln(c.out, "pin set")
	return err
}

// replay rebuilds stats from log history. Run it with the server stopped:
// it writes stats directly rather than through the server's pipeline.
func (c *cli) replay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	userID := fs.String("user", "", "rebuild only this user")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logs := store.NewLogStore(c.db)
	stats := store.NewGameStatsStore(c.db)
	acc := gamification.NewAccumulator(c.cfg.Location)

	users := []string{*userID}
	if *userID == "" {
		var err error
		if users, err = logs.ListUserIDs(ctx); err != nil {
			return err
		}
	}

	for _, id := range users {
		st, err := gamification.Rebuild(ctx, acc, logs, stats, id)
		if err != nil {
			return fmt.Errorf("rebuild %s: %w", id, err)
		}
		fmt.Fprintf(c.out, "%s: level %d, %d xp, earned %s, %d badges\n",
			id, st.Level, st.TotalExperience, st.TotalEarnings.StringFixed(2), len(st.BadgesEarned))
	}
	return nil
}
