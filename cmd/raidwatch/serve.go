package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/raidwatch/raidwatch/internal/config"
	"github.com/raidwatch/raidwatch/internal/metrics"
	"github.com/raidwatch/raidwatch/internal/monitor"
	"github.com/raidwatch/raidwatch/internal/notify"
	"github.com/raidwatch/raidwatch/internal/registry"
	"github.com/raidwatch/raidwatch/internal/session"
	"github.com/raidwatch/raidwatch/internal/ws"
)

var serveCommand = &cli.Command{
	Name:    "serve",
	Aliases: []string{"s"},
	Usage:   "Run the control API and the websocket event stream",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "host", Usage: "override server.host"},
		&cli.IntFlag{Name: "port", Usage: "override server.port"},
		&cli.BoolFlag{Name: "no-watch", Usage: "do not reload the config file when it changes"},
	},
	Action: runServe,
}

func runServe(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	fromFile := *cfg
	if h := ctx.String("host"); h != "" {
		cfg.Server.Host = h
	}
	if p := ctx.Int("port"); p > 0 {
		cfg.Server.Port = p
	}

	token := cfg.Server.AuthToken
	if token == config.AutoToken {
		if token, err = config.GenerateToken(); err != nil {
			return err
		}
		log.Infof("Auth token: %s", token)
	}

	prom := metrics.NewPrometheus("")
	notifier := notify.NewClient(
		notify.WithTimeout(cfg.Monitor.NotifyTimeout),
		notify.WithMetrics(prom),
	)

	reg, err := buildRegistry(cfg, notifier, prom)
	if err != nil {
		return err
	}

	store := session.NewStore()
	broadcaster := ws.NewBroadcaster(store, cfg.Monitor.SnapshotInterval, cfg.Server.MaxConnections)
	mon := monitor.NewMonitor(reg, engineConfig(cfg), broadcaster,
		monitor.WithMetrics(prom),
		monitor.WithStore(store),
	)
	mon.SetSessionHook(broadcaster.SessionChanged)

	server := ws.NewServer(mon, broadcaster, cfg.Server.AllowedOrigins, token,
		ws.WithMetricsHandler(prom.Handler()))

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !ctx.Bool("no-watch") {
		r := &reloader{ctx: ctx, current: &fromFile, registry: reg, monitor: mon}
		go func() {
			if err := config.Watch(sigCtx, ctx.String(FlagConfig), config.DefaultReloadDebounce, r.apply); err != nil {
				log.WithError(err).Warn("config hot reload disabled")
			}
		}()
	}

	log.WithField("managers", reg.IDs()).Info("raidwatch ready")
	serveErr := ws.ListenAndServe(sigCtx, cfg.Addr(), server.Handler())

	log.Info("Shutting down...")
	if n := mon.StopAll(); n > 0 {
		log.WithField("sessions", n).Info("stopped running engines")
	}
	broadcaster.Stop()
	notifier.Wait()
	return serveErr
}

// reloader pushes reloaded settings into the running components. It runs on
// the config watcher goroutine only.
type reloader struct {
	ctx      *cli.Context
	current  *config.Config
	registry *registry.Registry
	monitor  *monitor.Monitor
}

func (r *reloader) apply(next *config.Config) {
	changes := config.Diff(r.current, next)
	if len(changes) == 0 {
		return
	}
	for _, c := range changes {
		log.WithField("change", c).Info("config changed")
	}

	for _, id := range r.registry.IDs() {
		if _, err := r.registry.SetWebhook(id, next.Webhook(id)); err != nil {
			log.WithError(err).WithField("manager", id).Warn("webhook update failed")
		}
	}
	r.monitor.SetEngine(engineConfig(next))

	if err := applyLogging(r.ctx, next); err != nil {
		log.WithError(err).Warn("keeping previous logging settings")
	}

	if serverChanged(r.current, next) {
		log.Warn("server settings changed; restart to apply")
	}
	if r.current.Monitor.InvasionDebounce != next.Monitor.InvasionDebounce {
		log.Warn("monitor.invasion_debounce changed; restart to apply")
	}
	r.current = next
}

func serverChanged(a, b *config.Config) bool {
	if a.Server.Host != b.Server.Host || a.Server.Port != b.Server.Port ||
		a.Server.AuthToken != b.Server.AuthToken || a.Server.MaxConnections != b.Server.MaxConnections {
		return true
	}
	if len(a.Server.AllowedOrigins) != len(b.Server.AllowedOrigins) {
		return true
	}
	for i := range a.Server.AllowedOrigins {
		if a.Server.AllowedOrigins[i] != b.Server.AllowedOrigins[i] {
			return true
		}
	}
	return false
}
