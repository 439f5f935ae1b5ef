package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimealert/internal/app"
	"github.com/hamed0406/uptimealert/internal/domain"
	"github.com/hamed0406/uptimealert/internal/repo"
)

// withStore opens only the store; monitor bookkeeping needs no sender.
func withStore(o *options, fn func(ctx context.Context, s repo.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		s, err := app.OpenStore(ctx, o.cfg, o.log)
		if err != nil {
			return errors.Wrapf(err, "failed to open %s store", o.cfg.DB.Driver)
		}
		defer func() {
			if err := s.Close(); err != nil {
				o.log.Warn("store_close_failed", zap.Error(err))
			}
		}()
		return fn(ctx, s)
	}
}

func newMonitorCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Manage monitors and inspect their results and alerts.",
	}
	cmd.AddCommand(
		newMonitorAddCommand(o),
		newMonitorListCommand(o),
		newMonitorRemoveCommand(o),
		newMonitorSetRecipientsCommand(o),
		newMonitorResultsCommand(o),
		newMonitorAlertsCommand(o),
	)
	return cmd
}

func parseRecipients(raw string) (*string, error) {
	rs, err := domain.NormalizeRecipients(strings.Split(raw, ","))
	if err != nil {
		return nil, err
	}
	return domain.JoinRecipients(rs), nil
}

func newMonitorAddCommand(o *options) *cobra.Command {
	var recipients string
	cmd := &cobra.Command{
		Use:   "add <id> <name> <target>",
		Short: "Add or update a monitor.",
		Args:  cobra.ExactArgs(3),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		id, name, target := domain.MonitorID(args[0]), args[1], args[2]
		var rs *string
		if recipients != "" {
			var err error
			if rs, err = parseRecipients(recipients); err != nil {
				return err
			}
		}
		return withStore(o, func(ctx context.Context, s repo.Store) error {
			if err := s.UpsertMonitor(ctx, id, name, target); err != nil {
				return errors.Wrapf(err, "failed to add monitor %s", id)
			}
			if rs != nil {
				if err := s.SetRecipients(ctx, id, rs); err != nil {
					return errors.Wrapf(err, "failed to set recipients for %s", id)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "monitor %s added\n", id)
			return nil
		})(cmd, args)
	}
	cmd.Flags().StringVar(&recipients, "recipients", "", "Comma-separated alert recipients.")
	return cmd
}

func newMonitorListCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List monitors as id, name, target, recipients.",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = withStore(o, func(ctx context.Context, s repo.Store) error {
		ms, err := s.ListMonitors(ctx)
		if err != nil {
			return errors.Wrapf(err, "failed to list monitors")
		}
		out := cmd.OutOrStdout()
		for _, m := range ms {
			rs := "-"
			if list := m.RecipientList(); len(list) > 0 {
				rs = strings.Join(list, ",")
			}
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Target, rs)
		}
		return nil
	})
	return cmd
}

func newMonitorRemoveCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a monitor. Its results and alerts are kept.",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		id := domain.MonitorID(args[0])
		return withStore(o, func(ctx context.Context, s repo.Store) error {
			n, err := s.DeleteMonitor(ctx, id)
			if err != nil {
				return errors.Wrapf(err, "failed to delete monitor %s", id)
			}
			if n == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "monitor %s not found\n", id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted monitor %s\n", id)
			return nil
		})(cmd, args)
	}
	return cmd
}

func newMonitorSetRecipientsCommand(o *options) *cobra.Command {
	var recipients string
	cmd := &cobra.Command{
		Use:   "set-recipients <id>",
		Short: "Replace a monitor's recipients. An empty list clears them.",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		id := domain.MonitorID(args[0])
		rs, err := parseRecipients(recipients)
		if err != nil {
			return err
		}
		return withStore(o, func(ctx context.Context, s repo.Store) error {
			if _, err := s.GetMonitor(ctx, id); errors.Is(err, repo.ErrNotFound) {
				fmt.Fprintf(cmd.OutOrStdout(), "monitor %s not found\n", id)
				return nil
			} else if err != nil {
				return err
			}
			if err := s.SetRecipients(ctx, id, rs); err != nil {
				return errors.Wrapf(err, "failed to set recipients for %s", id)
			}
			if rs == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "cleared recipients for monitor %s\n", id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "monitor %s recipients: %s\n", id, *rs)
			return nil
		})(cmd, args)
	}
	cmd.Flags().StringVar(&recipients, "recipients", "", "Comma-separated alert recipients.")
	_ = cmd.MarkFlagRequired("recipients")
	return cmd
}

func successMark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

func statusText(code *int) string {
	if code == nil {
		return "-"
	}
	return fmt.Sprint(*code)
}

func newMonitorResultsCommand(o *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "results <id>",
		Short: "Show the most recent check results for a monitor.",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		id := domain.MonitorID(args[0])
		return withStore(o, func(ctx context.Context, s repo.Store) error {
			out := cmd.OutOrStdout()
			m, err := s.GetMonitor(ctx, id)
			if errors.Is(err, repo.ErrNotFound) {
				fmt.Fprintf(out, "monitor %s not found\n", id)
				return nil
			}
			if err != nil {
				return err
			}
			res, err := s.RecentResults(ctx, id)
			if err != nil {
				return errors.Wrapf(err, "failed to load results for %s", id)
			}
			if len(res) == 0 {
				fmt.Fprintf(out, "no results found for monitor %s\n", id)
				return nil
			}

			fmt.Fprintf(out, "Recent results for monitor '%s' (%s)\n", m.Name, m.Target)
			fmt.Fprintln(out, "ID\tSuccess\tStatus\tTimestamp")
			more := limit > 0 && len(res) > limit
			if more {
				res = res[:limit]
			}
			for _, r := range res {
				fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", r.ID, successMark(r.Success), statusText(r.StatusCode), r.Timestamp.UTC().Format(time.RFC3339))
			}
			if more {
				fmt.Fprintf(out, "(more results available, showing %d)\n", limit)
			}
			return nil
		})(cmd, args)
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results to show.")
	return cmd
}

func newMonitorAlertsCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts [id]",
		Short: "Show alerts, newest first, optionally for one monitor.",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		var id domain.MonitorID
		if len(args) == 1 {
			id = domain.MonitorID(args[0])
		}
		return withStore(o, func(ctx context.Context, s repo.Store) error {
			alerts, err := s.FetchAlerts(ctx, id)
			if err != nil {
				return errors.Wrapf(err, "failed to fetch alerts")
			}
			out := cmd.OutOrStdout()
			if len(alerts) == 0 {
				fmt.Fprintln(out, "no alerts")
				return nil
			}
			for _, a := range alerts {
				sent := "-"
				if a.SentAt != nil {
					sent = a.SentAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%s\n", a.ID, a.MonitorID, a.CreatedAt.UTC().Format(time.RFC3339), sent, a.Message)
			}
			return nil
		})(cmd, args)
	}
	return cmd
}
