// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimealert/internal/app"
	"github.com/hamed0406/uptimealert/internal/config"
	"github.com/hamed0406/uptimealert/internal/notify"
)

// report collects ✔/⚠/✖ lines; any ✖ fails the run.
type report struct {
	out    io.Writer
	failed bool
}

func (r *report) ok(msg string)   { fmt.Fprintln(r.out, "✔", msg) }
func (r *report) warn(msg string) { fmt.Fprintln(r.out, "⚠", msg) }
func (r *report) fail(msg string) {
	fmt.Fprintln(r.out, "✖", msg)
	r.failed = true
}

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	r := &report{out: os.Stdout}
	preflight(context.Background(), r, path)
	if r.failed {
		os.Exit(1)
	}
	r.ok("preflight passed")
}

func preflight(ctx context.Context, r *report, path string) {
	if err := config.LoadDotEnv(); err != nil {
		r.fail(err.Error())
		return
	}
	cfg, err := config.Load(path)
	if err != nil {
		// Load reports every validation problem at once
		for _, line := range strings.Split(err.Error(), "; ") {
			r.fail(line)
		}
		return
	}
	r.ok(fmt.Sprintf("config loaded (db=%s, sender=%s)", cfg.DB.Driver, cfg.Alerts.Sender))

	checkStore(ctx, r, cfg)
	checkSender(r, cfg)
	checkAPI(r, cfg)

	if cfg.Alerts.RateLimitSeconds == 0 {
		r.warn("alerts.rate_limit_seconds is 0; every pending alert is sent on every cycle")
	}
}

func checkStore(ctx context.Context, r *report, cfg *config.Config) {
	if cfg.DB.Driver == "memory" {
		r.warn("db.driver=memory; results and alerts are lost on restart")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	s, err := app.OpenStore(ctx, cfg, zap.NewNop())
	if err != nil {
		r.fail("store: " + err.Error())
		return
	}
	defer s.Close()
	if _, err := s.ListMonitors(ctx); err != nil {
		r.fail("store: " + err.Error())
		return
	}
	r.ok(cfg.DB.Driver + " store opened and migrated")
}

func checkSender(r *report, cfg *config.Config) {
	s, err := notify.New(cfg, zap.NewNop())
	if err != nil {
		r.fail("sender: " + err.Error())
		return
	}
	if c, ok := s.(io.Closer); ok {
		_ = c.Close()
	}
	if cfg.Alerts.Sender == config.SenderLog {
		r.warn("alerts.sender=log; alerts only reach the log file")
		return
	}
	r.ok("sender " + cfg.Alerts.Sender + " configured")
}

func checkAPI(r *report, cfg *config.Config) {
	if cfg.API.Addr == "" {
		r.warn("api.addr empty; the daemon will not serve the HTTP API")
		return
	}
	r.ok("api.addr=" + cfg.API.Addr)

	if len(cfg.API.AdminKeys) == 0 {
		r.warn("ADMIN_API_KEYS is empty; admin routes are open.")
	}
	if len(cfg.API.PublicKeys) == 0 {
		r.warn("PUBLIC_API_KEYS is empty; read routes are open.")
	}
	if len(cfg.API.AllowedOrigins) == 0 {
		r.warn("ALLOWED_ORIGINS empty; CORS allows every origin.")
	} else {
		r.ok("ALLOWED_ORIGINS=" + strings.Join(cfg.API.AllowedOrigins, ","))
	}
}
