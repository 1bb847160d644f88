// cmd/web/main.go
//
// Meetgate – command-line entry point.
//
// Commands
// --------
//
//	meetgate serve    run the auth gate web server
//	meetgate config   print the effective configuration, secrets masked
//	meetgate probe    sign in against the identity provider from a shell
//
// Until `serve` installs the file logger, a console development logger is
// the process-wide zap default, so config loading can report problems.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "github.com/yanizio/meetgate/components/account"
	_ "github.com/yanizio/meetgate/components/auth"
	_ "github.com/yanizio/meetgate/components/home"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if boot, err := zap.NewDevelopment(); err == nil {
		zap.ReplaceGlobals(boot)
	}

	root := &cobra.Command{
		Use:           "meetgate",
		Short:         "Authentication gate for the meeting organizer front-end",
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), configCmd(), probeCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
