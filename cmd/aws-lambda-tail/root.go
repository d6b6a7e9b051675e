package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Nao-Mk2/aws-lambda-tail/cmd"
	"github.com/Nao-Mk2/aws-lambda-tail/internal/client"
	"github.com/Nao-Mk2/aws-lambda-tail/internal/dispatch"
	"github.com/Nao-Mk2/aws-lambda-tail/internal/inspector"
	"github.com/Nao-Mk2/aws-lambda-tail/internal/logging"
	"github.com/Nao-Mk2/aws-lambda-tail/internal/tail"
	"github.com/Nao-Mk2/aws-lambda-tail/internal/util"
)

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &cmd.Options{}

	rootCmd := &cobra.Command{
		Use:   "aws-lambda-tail",
		Short: "Tail CloudWatch Logs of a Lambda function and the API Gateway stages invoking it",
		Example: `  aws-lambda-tail -m orders --integrations
  aws-lambda-tail -f orders-api -t 30s --json --query 'requestId'
  aws-lambda-tail -g /aws/lambda/orders-api --raw`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, args []string) error {
			return run(c.Context(), c.Flags(), opts, stdout, stderr)
		},
	}
	rootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return usageError(err)
	})
	opts.Bind(rootCmd.Flags())
	return rootCmd
}

func run(ctx context.Context, fs *pflag.FlagSet, opts *cmd.Options, stdout, stderr io.Writer) error {
	if msg, code := opts.Validate(); code != 0 {
		return &exitError{code: code, err: errors.New(msg)}
	}
	cfg, err := opts.Resolve(fs)
	if err != nil {
		return usageError(err)
	}
	var query *util.Query
	if opts.Query != "" {
		if query, err = util.NewQuery(opts.Query); err != nil {
			return usageError(err)
		}
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Output: stderr})
	if err != nil {
		return usageError(err)
	}
	defer func() { _ = logger.Sync() }()

	clients, err := client.New(ctx, client.AuthOptions{Region: cfg.Region, Profile: cfg.Profile})
	if err != nil {
		return err
	}
	dispatchOpts := cfg.DispatchOptions()
	dispatchOpts.Logger = logger
	dispatchOpts.Middleware = cmd.ProgressMiddleware(logger)
	tailOpts := cfg.TailOptions()
	tailOpts.Logger = logger

	insp := inspector.New(inspector.Clients{
		Functions: clients.Lambda,
		Logs:      clients.Logs,
		Gateway:   clients.Gateway,
	}, dispatch.New(dispatchOpts), tailOpts)

	status := func(format string, args ...any) {
		if !opts.Raw {
			fmt.Fprintf(stderr, format+"\n", args...)
		}
	}

	var feed tail.Feed
	if opts.LogGroup != "" {
		status("Start listening to logs for %s", opts.LogGroup)
		feed = insp.Tail(ctx, opts.LogGroup)
	} else {
		functions, err := insp.ListFunctions(ctx)
		if err != nil {
			return err
		}
		name, err := cmd.SelectFunction(functions, opts.Match, opts.Function)
		var ambiguous *cmd.AmbiguousError
		switch {
		case errors.Is(err, cmd.ErrNoFunctions):
			status("There are no AWS Lambda functions so far...")
			return nil
		case errors.As(err, &ambiguous):
			return usageError(err)
		case err != nil:
			return err
		}
		if opts.Integrations {
			status("Start listening to logs for %s (+integrations)", name)
		} else {
			status("Start listening to logs for %s", name)
		}
		feed = insp.TailFunction(ctx, name, opts.Integrations)
	}

	p := newPrinter(stdout, opts.Raw, opts.JSON, query)
	if err := tail.Subscribe(ctx, feed, p.print, nil, nil); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	if err := p.err(); err != nil {
		return err
	}
	if idle := time.Duration(cfg.IdleTimeout); idle > 0 {
		status("No logs received after %s", idle)
	} else {
		status("There are no log streams available")
	}
	return nil
}
