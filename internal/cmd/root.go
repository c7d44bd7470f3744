// Package cmd implements the qatouch-reporter command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Sternrassler/qatouch-reporter/internal/config"
	"github.com/Sternrassler/qatouch-reporter/pkg/logging"
	"github.com/Sternrassler/qatouch-reporter/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"subdomain":    "subdomain",
	"api-token":    "api_token",
	"project-key":  "project_key",
	"base-url":     "base_url",
	"log-level":    "logging.level",
	"log-pretty":   "logging.pretty",
	"redis-addr":   "redis.addr",
	"metrics-addr": "metrics.addr",
	"testrun-key":  "report.testrun_key",
	"comments":     "report.comments",
}

// app holds the state shared by all commands of one invocation.
type app struct {
	cfgFile string

	cfg     *config.Config
	log     zerolog.Logger
	metrics *metrics.Server
	redis   *redis.Client

	stdin  io.Reader
	stderr io.Writer
}

// Execute runs the command line against the process arguments and streams.
func Execute(ctx context.Context) error {
	return Run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

// Run executes the command line with explicit arguments and streams.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{stdin: stdin, stderr: stderr}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	return root.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "qatouch-reporter",
		Short: "Report Go test results to QA Touch test runs",
		Long: `qatouch-reporter links Go tests to QA Touch test cases and writes their
outcomes to a test run in a single bulk update.

Settings come from flags, QATOUCH_* environment variables and an optional
config file, in that order of precedence.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("subdomain", "", "QA Touch domain, the <name> of <name>.qatouch.com")
	flags.String("api-token", "", "QA Touch API token")
	flags.String("project-key", "", "QA Touch project key")
	flags.String("base-url", "", "QA Touch API root")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("log-pretty", false, "human-readable log output")
	flags.String("redis-addr", "", "Redis address for a shared rate window and case cache")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while running")

	root.AddCommand(
		newReportCmd(a),
		newCasesCmd(a),
		newCreateRunCmd(a),
		newVersionCmd(),
	)

	return root
}

// setup loads configuration, configures logging and starts the metrics
// endpoint before any command runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper(a.cfgFile)
	if err != nil {
		return err
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok && bindErr == nil {
			bindErr = v.BindPFlag(key, f)
		}
	})
	if bindErr != nil {
		return fmt.Errorf("bind flags: %w", bindErr)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := cfg.LoggerConfig()
	logCfg.Output = a.stderr
	logging.Setup(logCfg)
	a.log = logging.NewLogger(logging.ComponentCLI)

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Serve(cfg.Metrics.Addr)
		if err != nil {
			return err
		}
		a.metrics = srv
		a.log.Info().Str("addr", srv.Addr()).Msg("Serving metrics")
	}

	return nil
}

// openRedis connects to Redis when configured. It returns nil otherwise.
func (a *app) openRedis(ctx context.Context) (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}

	opts := a.cfg.RedisOptions()
	if opts == nil {
		return nil, nil
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}

	a.log.Debug().Str("addr", opts.Addr).Msg("Connected to Redis")
	a.redis = client
	return client, nil
}

// close releases Redis and stops the metrics endpoint.
func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}

	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.log.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}
}
