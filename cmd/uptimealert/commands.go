package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimealert/internal/app"
	"github.com/hamed0406/uptimealert/internal/config"
	"github.com/hamed0406/uptimealert/internal/domain"
	"github.com/hamed0406/uptimealert/internal/httpapi"
	"github.com/hamed0406/uptimealert/internal/httpapi/middleware"
	"github.com/hamed0406/uptimealert/internal/repo"
)

func newInitCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example config file.",
		Args:  cobra.NoArgs,
		// init must work before any config exists
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteExample(path); err != nil {
				return errors.Wrapf(err, "failed to write example config")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote example config to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "config.yaml", "Where to write the config.")
	return cmd
}

// withApp builds the full pipeline for one command and closes it afterwards.
func withApp(o *options, fn func(ctx context.Context, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := app.New(ctx, o.cfg, o.log)
		if err != nil {
			return errors.Wrapf(err, "failed to initialize")
		}
		defer func() {
			if err := a.Close(); err != nil {
				o.log.Warn("close_failed", zap.Error(err))
			}
		}()
		return fn(ctx, a)
	}
}

func newCheckCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one check cycle and dispatch pending alerts.",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = withApp(o, func(ctx context.Context, a *app.App) error {
		sent, err := a.Coordinator.Tick(ctx)
		if err != nil {
			return errors.Wrapf(err, "check cycle failed")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "check complete, %d alert(s) dispatched\n", sent)
		return nil
	})
	return cmd
}

func newCheckURLCommand(o *options) *cobra.Command {
	var id, target string
	cmd := &cobra.Command{
		Use:   "check-url <id> <url>",
		Short: "Probe a URL once and record the result under a monitor id.",
		Args:  cobra.ExactArgs(2),
		PreRun: func(_ *cobra.Command, args []string) {
			id, target = args[0], args[1]
		},
	}
	cmd.RunE = withApp(o, func(ctx context.Context, a *app.App) error {
		rid, err := a.Executor.RunOnce(ctx, domain.MonitorID(id), target)
		if err != nil {
			return errors.Wrapf(err, "failed to record check of %s", target)
		}
		res, err := a.Store.RecentResults(ctx, domain.MonitorID(id))
		if err != nil {
			return err
		}
		for _, r := range res {
			if r.ID == rid {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", id, successMark(r.Success), statusText(r.StatusCode))
				return nil
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "result %d recorded for monitor %s\n", rid, id)
		return nil
	})
	return cmd
}

func newRotateCommand(o *options) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Delete check results older than the retention window.",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = withStore(o, func(ctx context.Context, s repo.Store) error {
		if days <= 0 {
			days = o.cfg.DB.RetentionDays
		}
		n, err := s.Rotate(ctx, days)
		if err != nil {
			return errors.Wrapf(err, "failed to rotate results")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d result(s) older than %d day(s)\n", n, days)
		return nil
	})
	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (defaults to db.retention_days).")
	return cmd
}

func newDispatchCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Deliver pending alerts without running checks.",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = withApp(o, func(ctx context.Context, a *app.App) error {
		sent, err := a.Coordinator.Dispatch(ctx)
		if err != nil {
			return errors.Wrapf(err, "dispatch failed")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d alert(s) dispatched\n", sent)
		return nil
	})
	return cmd
}

func newDaemonCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the check loop and the HTTP API until interrupted.",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runDaemon(ctx, o)
	}
	return cmd
}

func runDaemon(ctx context.Context, o *options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := app.New(ctx, o.cfg, o.log)
	if err != nil {
		return errors.Wrapf(err, "failed to initialize")
	}
	defer a.Close()

	d := a.Daemon()

	if _, err := os.Stat(o.configPath); err == nil {
		go func() {
			err := config.Watch(ctx, o.configPath, o.log, func(cfg *config.Config) {
				if err := d.Reload(cfg); err != nil {
					o.log.Warn("config_reload_rejected", zap.Error(err))
				}
			})
			if err != nil {
				o.log.Warn("config_watch_failed", zap.Error(err))
			}
		}()
	}

	var srv *http.Server
	errc := make(chan error, 1)
	if addr := o.cfg.API.Addr; addr != "" {
		api := httpapi.NewServer(o.log, a.Store, a.Executor)
		srv = &http.Server{
			Addr: addr,
			Handler: api.Router(
				middleware.Keys{Public: o.cfg.API.PublicKeys, Admin: o.cfg.API.AdminKeys},
				o.cfg.API.AllowedOrigins,
				httpapi.Limits{
					PublicRPM:   o.cfg.API.PublicRPM,
					PublicBurst: o.cfg.API.PublicBurst,
					AdminRPM:    o.cfg.API.AdminRPM,
					AdminBurst:  o.cfg.API.AdminBurst,
				},
			),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			o.log.Info("api_listen", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	select {
	case err = <-errc:
		err = errors.Wrapf(err, "api server failed")
		cancel()
		<-runErr
	case err = <-runErr:
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			o.log.Warn("api_shutdown_failed", zap.Error(serr))
		}
	}
	o.log.Info("daemon_stopped")
	return err
}
