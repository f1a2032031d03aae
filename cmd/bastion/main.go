// bastion is the operator tool for a Bastion deployment. It validates role
// matrix files before they are rolled out, prints the effective matrix and
// verifies the audit hash chain of a postgres store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store/postgres"
)

// exitError carries a process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stderr)
		return nil
	}
	switch args[0] {
	case "validate":
		return runValidate(args[1:], stdout)
	case "roles":
		return runRoles(args[1:], stdout)
	case "verify-audit":
		return runVerifyAudit(ctx, args[1:], stdout, stderr)
	default:
		printUsage(stderr)
		return &exitError{code: 2, err: fmt.Errorf("unknown command %q", args[0])}
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `bastion: operator tool for the Bastion authorization core.

Usage:
  bastion validate --matrix FILE      Check a role matrix against the catalog
  bastion roles [--matrix FILE]       Print the effective role matrix
  bastion verify-audit --dsn DSN      Verify the audit hash chain (postgres)
`)
}

func runValidate(args []string, stdout io.Writer) error {
	flagSet := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	matrix := flagSet.String("matrix", "", "path to the YAML role matrix")
	if err := flagSet.Parse(args); err != nil {
		return &exitError{code: 2, err: err}
	}
	if *matrix == "" {
		return &exitError{code: 2, err: errors.New("--matrix is required")}
	}

	reg, err := role.LoadFile(*matrix, permission.DefaultCatalog())
	if err != nil {
		return &exitError{code: 1, err: err}
	}
	fmt.Fprintf(stdout, "%s: %d roles, %d catalog permissions, ok\n",
		*matrix, len(reg.Roles()), reg.Catalog().Len())
	return nil
}

func runRoles(args []string, stdout io.Writer) error {
	flagSet := pflag.NewFlagSet("roles", pflag.ContinueOnError)
	matrix := flagSet.String("matrix", "", "path to the YAML role matrix (default: builtin)")
	asYAML := flagSet.Bool("yaml", false, "print the matrix as YAML")
	if err := flagSet.Parse(args); err != nil {
		return &exitError{code: 2, err: err}
	}

	reg := role.DefaultRegistry()
	if *matrix != "" {
		var err error
		reg, err = role.LoadFile(*matrix, permission.DefaultCatalog())
		if err != nil {
			return &exitError{code: 1, err: err}
		}
	}

	if *asYAML {
		return role.Encode(stdout, reg)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tRANK\tPERMISSIONS")
	for _, d := range reg.Roles() {
		perms := make([]string, len(d.Permissions))
		for i, p := range d.Permissions {
			perms[i] = string(p)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", d.Name, d.Rank, strings.Join(perms, ","))
	}
	return tw.Flush()
}

func runVerifyAudit(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flagSet := pflag.NewFlagSet("verify-audit", pflag.ContinueOnError)
	dsn := flagSet.String("dsn", os.Getenv("BASTION_DSN"), "postgres connection string (default: $BASTION_DSN)")
	timeout := flagSet.Duration("timeout", 5*time.Minute, "give up after this long")
	if err := flagSet.Parse(args); err != nil {
		return &exitError{code: 2, err: err}
	}
	if *dsn == "" {
		return &exitError{code: 2, err: errors.New("--dsn is required")}
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s, err := postgres.Open(ctx, *dsn, postgres.WithLogger(logger))
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := audit.Verify(s.QueryAudit(ctx, nil))
	if err != nil {
		fmt.Fprintf(stdout, "verified %d entries before the chain broke\n", n)
		return &exitError{code: 1, err: err}
	}
	fmt.Fprintf(stdout, "audit chain intact: %d entries\n", n)
	return nil
}
