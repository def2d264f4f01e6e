// Package api is the HTTP surface of the hub: browser capture and
// heartbeats, file-set diffing, action planning and operational
// endpoints, all routed through router.Dispatcher.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"capturehub/internal/actions"
	"capturehub/internal/browser"
	"capturehub/internal/events"
	"capturehub/internal/fileset"
	"capturehub/internal/gateway"
	"capturehub/internal/metrics"
	"capturehub/internal/router"
	"capturehub/internal/state"
	"capturehub/internal/sysmon"
)

const (
	maxBodyBytes     = 8 << 20
	defaultPageLimit = 100
	maxPageLimit     = 500
	streamBuffer     = 64
	shutdownTimeout  = 5 * time.Second
)

// Options wires a Server. Registry, Cache and Bus default to fresh
// instances; Reaper and Gateway are optional.
type Options struct {
	Registry           *browser.Registry
	Reaper             *browser.Reaper
	Cache              *fileset.Cache
	Bus                *events.Bus
	Gateway            *gateway.Gateway
	Processors         []actions.Processor
	HandlerPrefix      string
	BrowserTimeout     time.Duration
	RateLimitPerMinute int
	JournalEnabled     bool
	Logger             *slog.Logger
}

type Server struct {
	registry   *browser.Registry
	reaper     *browser.Reaper
	cache      *fileset.Cache
	bus        *events.Bus
	gateway    *gateway.Gateway
	processors []actions.Processor
	prefix     string
	timeout    time.Duration
	journal    bool

	metrics    *metrics.Store
	limiter    *rateLimiter
	monitor    *sysmon.Monitor
	logger     *slog.Logger
	dispatcher *router.Dispatcher

	// stopping is closed when shutdown begins so long-lived streams end
	// before the listener waits for idle connections.
	stopping     chan struct{}
	stoppingOnce sync.Once
}

func NewServer(opts Options) (*Server, error) {
	s := &Server{
		registry:   opts.Registry,
		reaper:     opts.Reaper,
		cache:      opts.Cache,
		bus:        opts.Bus,
		gateway:    opts.Gateway,
		processors: opts.Processors,
		prefix:     opts.HandlerPrefix,
		timeout:    opts.BrowserTimeout,
		journal:    opts.JournalEnabled,
		metrics:    metrics.NewStore(),
		limiter:    newRateLimiter(opts.RateLimitPerMinute),
		monitor:    sysmon.NewMonitor(),
		logger:     opts.Logger,
		stopping:   make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "api")
	if s.bus == nil {
		s.bus = events.NewBus()
	}
	if s.registry == nil {
		s.registry = browser.NewRegistry(s.bus)
	}
	if s.cache == nil {
		s.cache = fileset.NewCache()
	}
	if s.timeout <= 0 && s.reaper != nil {
		s.timeout = s.reaper.Timeout()
	}

	table, err := router.Routes(s.routes()...)
	if err != nil {
		return nil, fmt.Errorf("build route table: %w", err)
	}
	var gw router.Gateway
	if s.gateway != nil {
		gw = s.gateway
	}
	s.dispatcher = router.NewDispatcher(table, gw, problemSender{}, s.logger)
	s.dispatcher.OnOutcome = func(_ *http.Request, o router.Outcome) {
		s.metrics.IncOutcome(o.String())
	}
	return s, nil
}

func (s *Server) route(method router.Method, pattern string, h http.HandlerFunc) router.Route {
	return router.Route{
		Matcher:  router.NewRequestMatcher(method, router.WithPrefix(s.prefix, pattern)),
		Provider: router.HandlerFunc(h),
	}
}

func (s *Server) routes() []router.Route {
	return []router.Route{
		s.route(router.POST, "/capture", s.handleCapture),
		s.route(router.POST, "/heartbeat/*", s.handleHeartbeat),
		s.route(router.GET, "/browsers", s.handleListBrowsers),
		s.route(router.GET, "/browsers/*", s.handleGetBrowser),
		s.route(router.PUT, "/browsers/*", s.handleSetBrowserStatus),
		s.route(router.DELETE, "/browsers/*", s.handleReleaseBrowser),
		s.route(router.POST, "/fileset", s.handleFileSet),
		s.route(router.POST, "/files", s.handleStoreFiles),
		s.route(router.GET, "/files", s.handleListFiles),
		s.route(router.DELETE, "/files", s.handleClearFiles),
		s.route(router.POST, "/actions/plan", s.handlePlan),
		s.route(router.GET, "/healthz", s.handleHealth),
		s.route(router.GET, "/readyz", s.handleReady),
		s.route(router.GET, "/metrics", s.handleMetrics),
		s.route(router.GET, "/status", s.handleStatus),
		s.route(router.GET, "/stream", s.handleStream),
		s.route(router.GET, "/events", s.handleEvents),
		s.route(router.GET, "/events/*", s.handleWorkerEvents),
	}
}

// Handler returns the full middleware-wrapped dispatcher.
func (s *Server) Handler() http.Handler {
	return s.withSecurity(s.dispatcher)
}

// Bus exposes the lifecycle bus so other components can subscribe.
func (s *Server) Bus() *events.Bus { return s.bus }

// Start listens on addr, starts the reaper and announces the server. The
// returned stop func shuts everything down once; after it returns no
// sweep runs and ServerStopped has been published.
func (s *Server) Start(ctx context.Context, addr string) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	bound := ln.Addr().String()

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	server.RegisterOnShutdown(s.beginStopping)

	followCtx, cancelFollow := context.WithCancel(context.Background())
	followDone := s.followLifecycle(followCtx)

	state.UpdateServer(state.StatusStarting, bound, os.Getpid(), s.timeout)
	if s.reaper != nil {
		s.reaper.Start(ctx)
	}

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve failed", "addr", bound, "error", err)
		}
	}()

	state.UpdateServer(state.StatusRunning, bound, os.Getpid(), s.timeout)
	s.bus.Publish(events.Event{Kind: events.ServerStarted, Detail: bound, WorkerCount: s.registry.Len(), At: time.Now()})
	s.logger.Info("listening", "addr", bound, "prefix", s.prefix, "browser_timeout", s.timeout)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			state.UpdateServer(state.StatusStopping, bound, os.Getpid(), s.timeout)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				s.logger.Warn("shutdown failed", "error", err)
			}
			if s.reaper != nil {
				s.reaper.Stop()
			}
			s.bus.Publish(events.Event{Kind: events.ServerStopped, Detail: bound, WorkerCount: s.registry.Len(), At: time.Now()})
			cancelFollow()
			<-followDone
			state.UpdateServer(state.StatusStopped, bound, os.Getpid(), s.timeout)
			s.logger.Info("server stopped", "addr", bound)
		})
	}
	return bound, stop, nil
}

func (s *Server) beginStopping() {
	s.stoppingOnce.Do(func() { close(s.stopping) })
}

// followLifecycle keeps the status snapshot and eviction counter in step
// with bus events.
func (s *Server) followLifecycle(ctx context.Context) <-chan struct{} {
	ch, cancel := s.bus.Subscribe(streamBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Kind == events.WorkerEvicted {
					s.metrics.AddEvictions(1)
				}
				state.UpdateCounts(s.registry.Len(), s.cache.Len(), string(ev.Kind))
			}
		}
	}()
	return done
}
