// Package app is the workledger composition root. Module wires the configuration,
// logger, metrics, store drivers, backend registry and HTTP server into an fx
// application; Main exposes it as a cobra command tree.
package app

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"

	"github.com/workledger/workledger/internal/config"
	"github.com/workledger/workledger/pkg/backend"
	"github.com/workledger/workledger/pkg/driver"
	"github.com/workledger/workledger/pkg/logger"
	"github.com/workledger/workledger/pkg/metrics"
)

// defaultWatchInterval paces /api/status/watch.
const defaultWatchInterval = time.Second

// LogOutput is where the zerolog logger writes besides the optional log file.
type LogOutput struct {
	io.Writer
}

// Module returns the fx options for a serving workledger process.
func Module(cfg *config.Config, out LogOutput) fx.Option {
	return fx.Options(
		fx.Supply(cfg, out),
		fx.Provide(
			newLogger,
			func() clock.Clock { return clock.New() },
			newReadOnly,
			newPrometheus,
			func(r *prometheus.Registry) prometheus.Registerer { return r },
			func(r *prometheus.Registry) prometheus.Gatherer { return r },
			func(reg prometheus.Registerer) backend.Observer { return metrics.NewObserver(reg) },
			metrics.NewHTTP,
			newDrivers,
			newRegistry,
			newApp,
			newServer,
		),
		fx.Invoke(func(*http.Server) {}),
	)
}

func newLogger(lc fx.Lifecycle, cfg *config.Config, out LogOutput) (logger.Logger, error) {
	l, err := cfg.Logger(out.Writer)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return l.Close() },
	})
	return l, nil
}

func newReadOnly(cfg *config.Config) *atomic.Bool {
	ro := new(atomic.Bool)
	ro.Store(cfg.ReadOnly)
	return ro
}

func newPrometheus() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

type registryParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Drivers   map[string]driver.Driver
	Logger    logger.Logger
	Observer  backend.Observer
	Clock     clock.Clock
	ReadOnly  *atomic.Bool
}

func newRegistry(p registryParams) (*backend.Registry, error) {
	strategy, err := backend.ParseStrategy(p.Config.Strategy)
	if err != nil {
		return nil, err
	}
	reg, err := backend.New(p.Config.Descriptors(), p.Drivers,
		backend.WithLogger(p.Logger),
		backend.WithObserver(p.Observer),
		backend.WithClock(p.Clock),
		backend.WithBackoff(p.Config.Backoff()),
		backend.WithStrategy(strategy),
		backend.WithReadOnly(p.ReadOnly.Load),
	)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStart: reg.Start,
		OnStop:  func(context.Context) error { return reg.Close() },
	})
	return reg, nil
}

// App serves the workledger HTTP API on top of a backend registry.
type App struct {
	reg         *backend.Registry
	log         logger.Logger
	clock       clock.Clock
	readOnly    *atomic.Bool
	httpMetrics *metrics.HTTP
	gatherer    prometheus.Gatherer

	upgrader      websocket.Upgrader
	watchInterval time.Duration

	done     chan struct{}
	doneOnce sync.Once
}

type appParams struct {
	fx.In

	Registry    *backend.Registry
	Logger      logger.Logger
	Clock       clock.Clock
	ReadOnly    *atomic.Bool
	HTTPMetrics *metrics.HTTP
	Gatherer    prometheus.Gatherer
}

func newApp(p appParams) *App {
	return &App{
		reg:           p.Registry,
		log:           p.Logger,
		clock:         p.Clock,
		readOnly:      p.ReadOnly,
		httpMetrics:   p.HTTPMetrics,
		gatherer:      p.Gatherer,
		watchInterval: defaultWatchInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		done: make(chan struct{}),
	}
}

// Registry returns the registry the app serves from.
func (a *App) Registry() *backend.Registry { return a.reg }

// SetReadOnly toggles maintenance mode. Writes are refused while it is on.
func (a *App) SetReadOnly(readOnly bool) {
	if a.readOnly.Swap(readOnly) != readOnly {
		a.log.Info("read-only mode changed", "readOnly", readOnly)
	}
}

func (a *App) IsReadOnly() bool { return a.readOnly.Load() }

// shutdown ends every status watch. http.Server.Shutdown does not wait for
// hijacked connections.
func (a *App) shutdown() {
	a.doneOnce.Do(func() { close(a.done) })
}

func newServer(lc fx.Lifecycle, cfg *config.Config, a *App, log logger.Logger) *http.Server {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", "addr", ln.Addr().String())
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down http server")
			a.shutdown()
			return srv.Shutdown(ctx)
		},
	})
	return srv
}
