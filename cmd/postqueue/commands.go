package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/postqueue/pkg/postqueue"
)

var errCommandFailed = errors.New("command failed")

// closeClient closes c and reports a failure only if the command succeeded.
func closeClient(c *postqueue.Client, err *error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if cerr := c.Close(ctx); cerr != nil && *err == nil {
		*err = fmt.Errorf("closing: %w", cerr)
	}
}

func newSendCmd(flags *globalFlags) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "send <url> <body>",
		Short: "Post a request immediately",
		Long: `Post a JSON body to a URL without queueing it.

Examples:
  postqueue send https://stats.example.com/ingest '{"v":1}'
  postqueue send --wait https://stats.example.com/query '{"q":"x"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			client, _, err := openClient(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeClient(client, &err)

			if !wait {
				if client.SendRequest(cmd.Context(), args[0], args[1]) != postqueue.CodeOK {
					return fmt.Errorf("send: %w", errCommandFailed)
				}
				return nil
			}

			reply := client.SendRequestWithResponse(cmd.Context(), args[0], args[1])
			if strings.HasPrefix(reply, "ERROR:") {
				return errors.New(reply)
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the reply and print it")
	return cmd
}

func newEnqueueCmd(flags *globalFlags) *cobra.Command {
	var expectResponse bool

	cmd := &cobra.Command{
		Use:   "enqueue <url> <body>",
		Short: "Store a request for the next drain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			client, _, err := openClient(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeClient(client, &err)

			if client.Enqueue(cmd.Context(), args[0], args[1], expectResponse) != postqueue.CodeOK {
				return fmt.Errorf("enqueue: %w", errCommandFailed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&expectResponse, "expect-response", "r", false, "cache the reply for take")
	return cmd
}

func newProcessCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Drain one batch of queued requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			client, _, err := openClient(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeClient(client, &err)

			res, err := client.ProcessQueue(cmd.Context())
			if err != nil {
				return err
			}

			summary := fmt.Sprintf("%d found, %d delivered, %d failed, %d dropped in %s",
				res.Found, res.Successful, res.Failed, res.Dropped, res.Duration.Round(time.Millisecond))
			if res.Failed > 0 {
				color.New(color.FgYellow).Fprintln(cmd.OutOrStdout(), summary)
			} else {
				color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), summary)
			}
			return nil
		},
	}
}

func newTakeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "take <url> <body>",
		Short: "Print and remove the cached reply for a request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			client, _, err := openClient(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeClient(client, &err)

			reply := client.TakeResponse(cmd.Context(), args[0], args[1])
			if strings.HasPrefix(reply, "ERROR:") {
				return errors.New(reply)
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
}

// ageFlags are shared by purge and count.
type ageFlags struct {
	hours     int
	responses bool
}

func (a *ageFlags) register(cmd *cobra.Command, responsesUsage string) {
	cmd.Flags().IntVar(&a.hours, "hours", -1, "age threshold in hours (default schedule.cleanup_hours)")
	cmd.Flags().BoolVar(&a.responses, "responses", false, responsesUsage)
}

func (a *ageFlags) resolve(defaultHours int) int {
	if a.hours < 0 {
		return defaultHours
	}
	return a.hours
}

func newPurgeCmd(flags *globalFlags) *cobra.Command {
	age := &ageFlags{}

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete queued requests (and cached replies) older than a threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			client, settings, err := openClient(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeClient(client, &err)

			n := client.PurgeOlderThan(cmd.Context(), age.resolve(settings.CleanupHours), age.responses)
			if n < 0 {
				return fmt.Errorf("purge: %w", errCommandFailed)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deleted\n", humanize.Comma(int64(n)))
			return nil
		},
	}
	age.register(cmd, "also delete cached replies")
	return cmd
}

func newCountCmd(flags *globalFlags) *cobra.Command {
	age := &ageFlags{}

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count queued requests or cached replies older than a threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			client, settings, err := openClient(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeClient(client, &err)

			n := client.CountOlderThan(cmd.Context(), age.resolve(settings.CleanupHours), age.responses)
			if n < 0 {
				return fmt.Errorf("count: %w", errCommandFailed)
			}
			fmt.Fprintln(cmd.OutOrStdout(), humanize.Comma(int64(n)))
			return nil
		},
	}
	age.register(cmd, "count cached replies instead of queued requests")
	return cmd
}

func newPendingCmd(flags *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List queued requests eligible for the next drain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			flags.quiet = true
			client, _, err := openClient(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeClient(client, &err)

			total, err := client.PendingCount(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := client.PendingEntries(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s queued, %d eligible shown\n", humanize.Comma(int64(total)), len(entries))
			if len(entries) == 0 {
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tQUEUED\tATTEMPTS\tREPLY\tURL\tBODY")
			for _, e := range entries {
				reply := "-"
				if e.ExpectResponse {
					reply = "yes"
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n",
					e.ID, humanize.Time(e.Timestamp), e.Attempts, reply, e.URL, abbreviate(e.Body, 40))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries to list")
	return cmd
}

func abbreviate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
