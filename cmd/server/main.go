package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dmitrijs2005/microblog/internal/common"
	"github.com/dmitrijs2005/microblog/internal/flagx"
	"github.com/dmitrijs2005/microblog/internal/prompt"
	"github.com/dmitrijs2005/microblog/internal/server"
	"github.com/dmitrijs2005/microblog/internal/server/config"
)

const (
	cmdServe       = "serve"
	cmdMigrate     = "migrate"
	cmdCreateAdmin = "create-admin"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	cmd := flagx.Subcommand(args, config.ValuedFlags, cmdServe)
	switch cmd {
	case cmdServe, cmdMigrate, cmdCreateAdmin:
	default:
		return fmt.Errorf("unknown command %q (want %s, %s or %s)", cmd, cmdServe, cmdMigrate, cmdCreateAdmin)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	app, err := server.NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	switch cmd {
	case cmdMigrate:
		if err := app.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "migrations applied")
		return nil
	case cmdCreateAdmin:
		return createAdmin(ctx, app, args, in, out)
	default:
		return app.Run(ctx)
	}
}

// createAdmin takes name and email from -name/-email or asks for them, and
// always reads the password from the terminal.
func createAdmin(ctx context.Context, app *server.App, args []string, in io.Reader, out io.Writer) error {
	var name, email string
	fs := flag.NewFlagSet(cmdCreateAdmin, flag.ContinueOnError)
	fs.StringVar(&name, "name", "", "admin display name")
	fs.StringVar(&email, "email", "", "admin email")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-name", "-email"})); err != nil {
		return err
	}

	reader := bufio.NewReader(in)
	var err error
	if name == "" {
		if name, err = prompt.Line(reader, "Name", out); err != nil {
			return err
		}
	}
	if email == "" {
		if email, err = prompt.Line(reader, "Email", out); err != nil {
			return err
		}
	}

	password, err := prompt.NewPassword(out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	u, err := app.CreateAdmin(ctx, name, email, password)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	fmt.Fprintf(out, "admin %s created (id=%s)\n", u.Email, u.ID)
	return nil
}
