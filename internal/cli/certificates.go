package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"eventcertificates/internal/scheduler"
)

// GenerateCmd runs the generation step for one event.
func GenerateCmd() *cobra.Command {
	var participants []string
	cmd := &cobra.Command{
		Use:   "generate <eventID>",
		Short: "Generate certificates for an event now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Certificates.Generate(cmd.Context(), args[0], participants)
			printStepResult(cmd.OutOrStdout(), "generate", res)
			return err
		},
	}
	cmd.Flags().StringSliceVar(&participants, "participant", nil, "Only generate for these participant IDs (repeatable)")
	return cmd
}

// SendCmd runs the dispatch step for one event.
func SendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <eventID>",
		Short: "Email generated certificates for an event now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Certificates.Dispatch(cmd.Context(), args[0])
			printStepResult(cmd.OutOrStdout(), "send", res)
			return err
		},
	}
}

// RunCmd runs one daily phase over every eligible event, as the recurring trigger would.
func RunCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "run <generation|dispatch>",
		Short:     "Run a daily phase now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(scheduler.PhaseGeneration), string(scheduler.PhaseDispatch)},
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := scheduler.ParsePhase(args[0])
			if err != nil {
				return err
			}
			app, err := NewApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			summary, err := app.Recurring.Run(cmd.Context(), phase, scheduler.SourceManual)
			if err != nil {
				return fmt.Errorf("run %s: %w", phase, err)
			}
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}
