// Command authctl is the gatekeeper operator tool: schema migrations and
// super_admin bootstrap.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/and161185/gatekeeper/internal/crypto"
	"github.com/and161185/gatekeeper/internal/migrate"
	"github.com/and161185/gatekeeper/internal/repository/postgres"
)

const dsnEnv = "GATEKEEPER_DSN"

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func usage() {
	fmt.Fprintf(os.Stderr, `authctl
Usage:
  authctl [-d DSN] <cmd> [args]     (DSN defaults to $%s)

Commands:
  migrate [up|version]
  bootstrap-superadmin -u <username> -e <email>   (password is prompted)
`, dsnEnv)
	os.Exit(2)
}

// promptNewPassword asks twice and requires both entries to match.
func promptNewPassword(w io.Writer) (string, error) {
	read := func(label string) (string, error) {
		fmt.Fprint(w, label)
		pw, err := readPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(w)
		return string(pw), err
	}
	first, err := read("New password: ")
	if err != nil {
		return "", err
	}
	second, err := read("Repeat password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}

func main() {
	dsn := flag.String("d", os.Getenv(dsnEnv), "PostgreSQL DSN")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 || *dsn == "" {
		usage()
	}

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch flag.Arg(0) {
	case "migrate":
		sub := "up"
		if flag.NArg() > 1 {
			sub = flag.Arg(1)
		}
		switch sub {
		case "up":
			if err := migrate.Up(ctx, *dsn); err != nil {
				logger.Fatal("migrate up", zap.Error(err))
			}
			logger.Info("migrations applied")
		case "version":
			v, err := migrate.Version(ctx, *dsn)
			if err != nil {
				logger.Fatal("migrate version", zap.Error(err))
			}
			fmt.Println(v)
		default:
			usage()
		}

	case "bootstrap-superadmin":
		fs := flag.NewFlagSet("bootstrap-superadmin", flag.ExitOnError)
		u := fs.String("u", "", "username")
		e := fs.String("e", "", "email")
		_ = fs.Parse(flag.Args()[1:])
		if *u == "" || *e == "" {
			usage()
		}
		pw, err := promptNewPassword(os.Stderr)
		if err != nil {
			logger.Fatal("read password", zap.Error(err))
		}

		if err := migrate.Up(ctx, *dsn); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		db, err := postgres.New(ctx, *dsn)
		if err != nil {
			logger.Fatal("connect", zap.Error(err))
		}
		defer db.Close()

		a, err := bootstrapSuperAdmin(ctx, postgres.NewAccountRepo(db), crypto.Argon2id{}, *u, *e, pw)
		if err != nil {
			db.Close()
			logger.Fatal("bootstrap super_admin", zap.Error(err))
		}
		logger.Info("super_admin created", zap.String("account_id", a.ID.String()), zap.String("username", a.Username))

	default:
		usage()
	}
}
