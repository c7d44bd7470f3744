package cmd

import (
	"fmt"

	"github.com/Sternrassler/qatouch-reporter/pkg/qatouch"
	"github.com/spf13/cobra"
)

func newCreateRunCmd(a *app) *cobra.Command {
	var (
		params qatouch.TestRunParams
		cases  []string
	)

	cmd := &cobra.Command{
		Use:   "create-run",
		Short: "Create a test run and print its key",
		Long: `Create a test run containing the given cases. Without --case, the run
contains every automation case of the project.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := a.newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			keys := cases
			if len(keys) == 0 {
				keys, err = client.ListAutomationCaseKeys(ctx)
				if err != nil {
					return err
				}
			}

			runKey, err := client.CreateBulk(ctx, params, keys)
			if err != nil {
				return err
			}

			a.log.Info().
				Str("testrun", runKey).
				Str("name", params.Name).
				Int("cases", len(keys)).
				Msg("Test run created")

			fmt.Fprintln(cmd.OutOrStdout(), runKey)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&params.AssignTo, "assign-to", "", "user key the run is assigned to")
	flags.StringVar(&params.MilestoneKey, "milestone", "", "milestone key")
	flags.StringVar(&params.Name, "name", "", "test run name")
	flags.StringSliceVar(&cases, "case", nil, "case key to include (repeatable)")
	_ = cmd.MarkFlagRequired("assign-to")
	_ = cmd.MarkFlagRequired("milestone")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
