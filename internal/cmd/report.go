package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/Sternrassler/qatouch-reporter/pkg/adapter"
	"github.com/Sternrassler/qatouch-reporter/pkg/reporter"
	"github.com/spf13/cobra"
)

// flushTimeout bounds the final bulk update, which still runs after the
// command context is cancelled.
const flushTimeout = 2 * time.Minute

func newReportCmd(a *app) *cobra.Command {
	var (
		input  string
		tee    bool
		marker string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Read `go test -json` output and report marked tests to a test run",
		Example: `  go test -json ./... | qatouch-reporter report --testrun-key TR42 --tee
  qatouch-reporter report --testrun-key TR42 --input results.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			adapterCfg := adapter.Config{}
			if marker != "" {
				re, err := regexp.Compile(marker)
				if err != nil {
					return fmt.Errorf("invalid --marker: %w", err)
				}
				if re.NumSubexp() < 1 {
					return fmt.Errorf("invalid --marker: needs a capture group for the case id")
				}
				adapterCfg.Marker = re
			}
			if tee {
				adapterCfg.Tee = cmd.OutOrStdout()
			}

			rdb, err := a.openRedis(ctx)
			if err != nil {
				return err
			}

			rep, err := reporter.New(a.cfg.ReporterConfig(rdb))
			if err != nil {
				return err
			}
			defer rep.Close()

			var in io.Reader = a.stdin
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				in = f
			}

			sum, runErr := adapter.NewGoTestAdapter(rep, adapterCfg).Run(ctx, in)

			// Results recorded so far are sent even when reading was cut short.
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			defer cancel()
			flushErr := rep.FlushAll(flushCtx)

			a.log.Info().
				Str("testrun", rep.TestRunKey()).
				Int("recorded", sum.Recorded).
				Int("unmarked", sum.Unmarked).
				Int("failed_tests", sum.Failed).
				Bool("reported", flushErr == nil).
				Msg("Report complete")

			return errors.Join(runErr, flushErr)
		},
	}

	flags := cmd.Flags()
	flags.String("testrun-key", "", "key of the QA Touch test run to update")
	flags.String("comments", "", "comment stored with each status change")
	flags.StringVar(&input, "input", "", "read events from this file instead of stdin")
	flags.BoolVar(&tee, "tee", false, "copy input to stdout")
	flags.StringVar(&marker, "marker", "", "regexp matching the case id in a test name segment (first group is the id)")

	return cmd
}
