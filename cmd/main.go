package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	root := &cobra.Command{
		Use:          "puricare",
		Short:        "PuriCare client session and device registry",
		Version:      fmt.Sprintf("%s (built %s, commit %s)", buildVersion, buildDate, buildCommit),
		SilenceUsage: true,
	}

	root.AddCommand(
		loginCmd(),
		logoutCmd(),
		whoamiCmd(),
		profileCmd(),
		devicesCmd(),
		watchCmd(),
		serveCmd(),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// withApp runs fn against a freshly opened app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
