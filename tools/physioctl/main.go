// Command physioctl is the operator CLI for the clinic API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/physiobook/physiobook/libs/client"
	"github.com/physiobook/physiobook/libs/config"
	"github.com/spf13/cobra"
)

type app struct {
	apiURL  string
	token   string
	json    bool
	timeout time.Duration
	api     *client.Client
}

func main() {
	config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "physioctl",
		Short:         "Operate the PhysioBook clinic API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			a.api = client.New(a.apiURL,
				client.WithToken(func() string { return a.token }),
			)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.apiURL, "api", config.String("PHYSIOCTL_API", "http://localhost:8080"), "gateway base URL")
	flags.StringVar(&a.token, "token", config.String("PHYSIOCTL_TOKEN", ""), "bearer access token")
	flags.BoolVar(&a.json, "json", false, "print JSON instead of tables")
	flags.DurationVar(&a.timeout, "timeout", 15*time.Second, "request timeout")

	root.AddCommand(
		loginCmd(a),
		codesCmd(a),
		slotsCmd(a),
		departmentsCmd(a),
		registrationsCmd(a),
		incidentsCmd(a),
		healthCmd(a),
	)
	return root
}

func (a *app) ctx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout)
}
