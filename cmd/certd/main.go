package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"eventcertificates/internal/cli"
)

// version is set through ldflags at build time.
var version = "dev"

// @title Event Certificates API
// @version 1.0
// @description Generates participation certificates and emails them to event participants.
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := &cobra.Command{
		Use:     "certd",
		Short:   "certd - event certificate generation and delivery",
		Version: version,
		Long: `certd renders a certificate for every participant of an event and emails it.
Generation and sending run automatically on the event date at the configured times;
the subcommands below run them by hand.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.GenerateCmd())
	rootCmd.AddCommand(cli.SendCmd())
	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.TokenCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
