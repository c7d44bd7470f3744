package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/qatouch-reporter/pkg/qatouch"
	"github.com/spf13/cobra"
)

func newCasesCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "cases",
		Short: "List the keys of all automation test cases in the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			keys, err := client.ListAutomationCaseKeys(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(keys)
			}
			for _, key := range keys {
				fmt.Fprintln(out, key)
			}

			a.log.Debug().Int("cases", len(keys)).Msg("Listed automation cases")
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print keys as a JSON array")
	return cmd
}

// newClient builds a QA Touch client from the loaded configuration.
func (a *app) newClient(cmd *cobra.Command) (*qatouch.Client, error) {
	rdb, err := a.openRedis(cmd.Context())
	if err != nil {
		return nil, err
	}
	return qatouch.New(a.cfg.ClientConfig(rdb))
}
