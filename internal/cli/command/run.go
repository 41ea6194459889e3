package command

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/slotmesh/internal/client/config"
	"github.com/yndnr/slotmesh/internal/core/domain"
	"github.com/yndnr/slotmesh/internal/core/service"
	"github.com/yndnr/slotmesh/internal/infra/buildinfo"
	"github.com/yndnr/slotmesh/internal/infra/confloader"
	"github.com/yndnr/slotmesh/internal/infra/shutdown"
	"github.com/yndnr/slotmesh/internal/infra/tlsroots"
	"github.com/yndnr/slotmesh/internal/net/transport"
	"github.com/yndnr/slotmesh/internal/server/httpserver"
	"github.com/yndnr/slotmesh/internal/storage/demo"
	"github.com/yndnr/slotmesh/internal/telemetry/logger"
	"github.com/yndnr/slotmesh/internal/telemetry/metric"
)

const defaultShutdownTimeout = 10 * time.Second

// RunCommand runs a session until interrupted.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Connect to a game server and run the session loop",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				EnvVars: []string{"SLOTMESH_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Game server address (host:port)",
			},
			&cli.IntFlag{
				Name:    "dummies",
				Aliases: []string{"d"},
				Usage:   "Requested dummy count",
			},
			&cli.StringFlag{
				Name:  "control",
				Usage: "Control API listen address",
			},
			&cli.BoolFlag{
				Name:  "no-control",
				Usage: "Disable the control API",
			},
			&cli.StringFlag{
				Name:  "demo",
				Usage: "Record a demo to this file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
			},
			&cli.BoolFlag{
				Name:  "stdin-input",
				Usage: "Route each line read from stdin as local input",
			},
			&cli.DurationFlag{
				Name:  "shutdown-timeout",
				Usage: "Time allowed for a graceful stop",
				Value: defaultShutdownTimeout,
			},
		},
		Action: runAction,
	}
}

// runOverrides maps explicitly set flags onto config keys.
func runOverrides(c *cli.Context) map[string]any {
	o := make(map[string]any)
	if c.IsSet("server") {
		o["server.addr"] = c.String("server")
	}
	if c.IsSet("dummies") {
		o["session.requested_dummies"] = c.Int("dummies")
	}
	if c.IsSet("control") {
		o["control.addr"] = c.String("control")
		o["control.enabled"] = true
	}
	if c.Bool("no-control") {
		o["control.enabled"] = false
	}
	if c.IsSet("demo") {
		o["demo.path"] = c.String("demo")
	}
	if c.IsSet("log-level") {
		o["log.level"] = c.String("log-level")
	}
	return o
}

// loadConfig layers defaults, file, environment and overrides, then
// verifies the result.
func loadConfig(path string, overrides map[string]any) (*confloader.Loader, *config.ClientConfig, error) {
	opts := []confloader.Option{confloader.WithOverrides(overrides)}
	if path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	loader := confloader.NewLoader(opts...)

	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return loader, cfg, nil
}

// sessionConfig maps the file configuration onto the session.
func sessionConfig(cfg *config.ClientConfig) service.Config {
	s := cfg.Session
	return service.Config{
		ServerAddress:       cfg.Server.Addr,
		ProtocolVersion:     cfg.Server.ProtocolVersion,
		TickInterval:        s.TickInterval,
		AckTimeout:          s.AckTimeout,
		RequestedDummies:    s.RequestedDummies,
		SnapshotCapacity:    s.SnapshotCapacity,
		InputQueueSize:      s.InputQueueSize,
		MaxPendingSnapshots: s.MaxPendingSnapshots,
		GapTimeout:          s.GapTimeout,
		ResendRate:          rate.Limit(s.ResendRate),
		ResendBurst:         s.ResendBurst,
		ReconnectInterval:   s.ReconnectInterval,
		AutoReconnect:       s.AutoReconnect,
	}
}

func demoConfig(d config.DemoSection) demo.Config {
	cfg := demo.DefaultConfig(d.Path)
	cfg.SyncMode = demo.SyncMode(d.SyncMode)
	if d.SyncInterval > 0 {
		cfg.SyncInterval = d.SyncInterval
	}
	if d.BatchCount > 0 {
		cfg.BatchCount = d.BatchCount
	}
	if d.BatchBytes > 0 {
		cfg.BatchBytes = int64(d.BatchBytes)
	}
	return cfg
}

func runAction(c *cli.Context) error {
	loader, cfg, err := loadConfig(c.String("config"), runOverrides(c))
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: errWriter(c),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	log.Info("starting slotmesh",
		"version", buildinfo.Version,
		"server", cfg.Server.Addr,
		"config", loader.FilePath(),
	)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	metrics := metric.NewRegistry()
	udp := transport.NewUDP(transport.UDPConfig{
		InboundSize: cfg.Session.InboundBuffer,
		ReadBuffer:  cfg.Session.ReadBuffer,
		OnDrop:      func(domain.SlotID) { metrics.TransportDrops.Inc() },
		Logger:      log,
	})

	r, err := newRunner(cfg, loader, log, metrics, udp)
	if err != nil {
		_ = udp.Close()
		return err
	}

	sh := shutdown.NewHandler(c.Duration("shutdown-timeout"))
	if err := r.start(sh); err != nil {
		sh.Trigger("startup failed")
		_ = sh.Wait()
		return err
	}
	if c.Bool("stdin-input") {
		go r.pumpInput(sh.Context(), c.App.Reader)
	}

	log.Info("session started, press Ctrl+C to stop")
	err = sh.Wait()
	log.Info("slotmesh stopped", "reason", sh.Reason())
	return err
}

// runner owns the pieces of one running session.
type runner struct {
	cfg     *config.ClientConfig
	loader  *confloader.Loader
	log     logger.Logger
	metrics *metric.Registry

	transport transport.Transport
	recorder  *demo.Writer
	session   *service.Session
	control   *httpserver.Server
	certs     *tlsroots.CertReloader

	controlAddr string

	reloadMu sync.Mutex
}

func newRunner(cfg *config.ClientConfig, loader *confloader.Loader, log logger.Logger, metrics *metric.Registry, tr transport.Transport) (*runner, error) {
	r := &runner{
		cfg:       cfg,
		loader:    loader,
		log:       log,
		metrics:   metrics,
		transport: tr,
	}

	scfg := sessionConfig(cfg)
	scfg.Logger = log
	scfg.Metrics = metrics
	if cfg.Demo.Path != "" {
		w, err := demo.NewWriter(demoConfig(cfg.Demo))
		if err != nil {
			return nil, fmt.Errorf("open demo: %w", err)
		}
		r.recorder = w
		scfg.Recorder = w
	}

	r.session = service.NewSession(scfg, tr)
	if err := metrics.Register(metric.NewCollector(r.session)); err != nil {
		r.closeRecorder()
		return nil, fmt.Errorf("register slot collector: %w", err)
	}

	if cfg.Control.Enabled {
		var opts []httpserver.Option
		if cfg.Control.TLSCertFile != "" {
			certs, err := tlsroots.NewCertReloader(cfg.Control.TLSCertFile, cfg.Control.TLSKeyFile, log)
			if err != nil {
				r.closeRecorder()
				return nil, fmt.Errorf("load control certificate: %w", err)
			}
			r.certs = certs
			opts = append(opts, httpserver.WithTLSConfig(certs.ServerConfig()))
		}

		routerCfg := httpserver.DefaultRouterConfig()
		routerCfg.Controller = r.session
		routerCfg.Metrics = metrics
		routerCfg.Logger = log
		routerCfg.Token = cfg.Control.Token
		r.control = httpserver.New(cfg.Control.Addr, httpserver.NewRouter(routerCfg), opts...)
	}
	return r, nil
}

func (r *runner) closeRecorder() {
	if r.recorder != nil {
		_ = r.recorder.Close()
	}
}

// start launches the loop, connects the main slot and starts the optional
// control server and config watcher. Hooks are registered as each piece
// starts, so they run in reverse.
func (r *runner) start(sh *shutdown.Handler) error {
	sh.OnShutdown(func(context.Context) error {
		return r.transport.Close()
	})
	if r.recorder != nil {
		sh.OnShutdown(func(context.Context) error {
			r.log.Info("closing demo recorder",
				"path", r.cfg.Demo.Path,
				"frames", r.recorder.Frames(),
			)
			return r.recorder.Close()
		})
	}

	ctx := sh.Context()
	stopped := make(chan error, 1)
	go func() {
		stopped <- r.session.Run(ctx)
		sh.Trigger("session stopped")
	}()
	sh.OnShutdown(func(hookCtx context.Context) error {
		select {
		case err := <-stopped:
			return err
		case <-hookCtx.Done():
			return fmt.Errorf("session loop did not stop: %w", hookCtx.Err())
		}
	})
	go r.logEvents(ctx)

	if err := r.session.Connect(ctx); err != nil {
		if !r.cfg.Session.AutoReconnect {
			return fmt.Errorf("connect: %w", err)
		}
		r.log.Warn("initial connect failed, retrying", "error", err)
	}

	if r.control != nil {
		if err := r.startControl(sh); err != nil {
			return err
		}
	}
	if r.loader.FilePath() != "" {
		if err := r.watchConfig(sh); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) startControl(sh *shutdown.Handler) error {
	ln, err := net.Listen("tcp", r.control.Addr())
	if err != nil {
		return fmt.Errorf("listen control: %w", err)
	}
	r.controlAddr = ln.Addr().String()

	go func() {
		r.log.Info("control API listening",
			"addr", r.controlAddr,
			"tls", r.control.TLSEnabled(),
		)
		if err := r.control.Serve(ln); err != nil {
			r.log.Error("control API stopped", "error", err)
			sh.Trigger("control server failed")
		}
	}()
	sh.OnShutdown(func(ctx context.Context) error {
		r.log.Info("shutting down control API")
		return r.control.Shutdown(ctx)
	})

	if r.certs != nil {
		if err := r.certs.Watch(); err != nil {
			r.log.Warn("certificate hot reload disabled", "error", err)
			return nil
		}
		sh.OnShutdown(func(context.Context) error {
			return r.certs.Close()
		})
	}
	return nil
}

func (r *runner) watchConfig(sh *shutdown.Handler) error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(r.log))
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := w.Watch(r.loader.FilePath()); err != nil {
		_ = w.Stop()
		return fmt.Errorf("watch config: %w", err)
	}

	ctx := sh.Context()
	w.OnChange(func(string) {
		r.reload(ctx)
	})
	w.StartAsync()
	sh.OnShutdown(func(context.Context) error {
		return w.Stop()
	})
	return nil
}

// reload applies the settings that may change at runtime: the requested
// dummy count and the log level. Everything else needs a restart.
func (r *runner) reload(ctx context.Context) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	next := config.Default()
	if err := r.loader.Reload(next); err != nil {
		r.log.Warn("config reload failed", "error", err)
		return
	}
	if err := config.Verify(next); err != nil {
		r.log.Warn("reloaded config rejected", "error", err)
		return
	}

	if next.Log.Level != r.cfg.Log.Level {
		logger.SetLevel(next.Log.Level)
		r.log.Info("log level changed", "level", next.Log.Level)
		r.cfg.Log.Level = next.Log.Level
	}

	if n := next.Session.RequestedDummies; n != r.cfg.Session.RequestedDummies {
		if err := r.session.SetDummyCount(ctx, n); err != nil {
			r.log.Warn("dummy count reload failed", "requested_dummies", n, "error", err)
			return
		}
		r.log.Info("requested dummies changed", "requested_dummies", n)
		r.cfg.Session.RequestedDummies = n
	}
}

func (r *runner) logEvents(ctx context.Context) {
	events := r.session.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			attrs := []any{"slot_id", uint32(e.Slot), "main", e.Main}
			if e.Reason != "" {
				attrs = append(attrs, "reason", e.Reason)
			}
			msg := eventMessage(e)
			switch e.Kind {
			case service.EventReconnectRequired:
				r.log.Warn(msg, attrs...)
			case service.EventBackpressure:
				r.log.Debug(msg, append(attrs, "kind", string(e.Kind))...)
			default:
				r.log.Info(msg, append(attrs, "kind", string(e.Kind))...)
			}
		}
	}
}

func eventMessage(e service.Event) string {
	if e.Kind != service.EventReconnectRequired {
		return "session event"
	}
	if e.Main {
		return "main slot lost"
	}
	return "dummy slot lost"
}

// pumpInput routes each line of in as one local input capture.
func (r *runner) pumpInput(ctx context.Context, in io.Reader) {
	if in == nil {
		return
	}
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		r.session.RouteLocalInput(bytes.Clone(sc.Bytes()))
	}
	if err := sc.Err(); err != nil {
		r.log.Warn("stdin input stopped", "error", err)
	}
}
