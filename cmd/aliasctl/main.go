// Package main is a command line client for aliasd. It requests aliases the
// way the page-side helper does, with the same bounded retries.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipico/alias-relay/internal/bridge"
	"github.com/sipico/alias-relay/internal/orchestrator"
	"github.com/sipico/alias-relay/internal/provider"
)

const version = "2026.10.1"

// options are the persistent flags.
type options struct {
	addr       string
	token      string
	attempts   int
	retryDelay time.Duration
	provider   string
	asJSON     bool
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "aliasctl",
		Short:         "Request email aliases from aliasd",
		SilenceUsage:  true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.addr, "addr", envOr("ALIASD_ADDR", "http://127.0.0.1:7431"), "aliasd base URL")
	flags.StringVar(&opts.token, "token", os.Getenv("ALIASD_ACCESS_TOKEN"), "aliasd access token")
	flags.IntVar(&opts.attempts, "attempts", bridge.DefaultAttempts, "total tries for transient failures")
	flags.DurationVar(&opts.retryDelay, "retry-delay", bridge.DefaultRetryDelay, "pause between tries")
	flags.StringVar(&opts.provider, "provider", "", "provider id (default: the active provider)")
	flags.BoolVar(&opts.asJSON, "json", false, "print the full JSON response")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log retries to stderr")

	root.AddCommand(newPreviewCmd(opts), newAliasCmd(opts), newVersionCmd())
	return root
}

func (o *options) client(cmd *cobra.Command) (*bridge.Client, error) {
	if o.token == "" {
		return nil, fmt.Errorf("an access token is required (--token or ALIASD_ACCESS_TOKEN)")
	}
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return bridge.NewClient(o.addr, o.token,
		bridge.WithRetry(o.attempts, o.retryDelay),
		bridge.WithLogger(logger),
	), nil
}

func (o *options) print(cmd *cobra.Command, v any, line string) error {
	if !o.asJSON {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), line)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func pageURL(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func newPreviewCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "preview [page-url]",
		Short: "Show the alias that would be used for a page",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			pv, err := c.PreviewAlias(cmd.Context(), provider.ID(opts.provider), pageURL(args))
			if err != nil {
				return err
			}
			line := pv.Display
			if pv.Decision.Caution {
				line += " (catch-all not confirmed)"
			}
			return opts.print(cmd, pv, line)
		},
	}
}

func newAliasCmd(opts *options) *cobra.Command {
	var localPart, domain string
	cmd := &cobra.Command{
		Use:   "alias [page-url]",
		Short: "Request a final alias address for a page",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			res, err := c.RequestAlias(cmd.Context(), orchestrator.SubmitRequest{
				Provider:   provider.ID(opts.provider),
				CurrentURL: pageURL(args),
				LocalPart:  localPart,
				Domain:     domain,
			})
			if err != nil {
				return err
			}
			return opts.print(cmd, res, res.Address)
		},
	}
	cmd.Flags().StringVar(&localPart, "local-part", "", "use this local part instead of generating one")
	cmd.Flags().StringVar(&domain, "domain", "", "override the provider's default domain")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "aliasctl version %s\n", version)
		},
	}
}
