package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sony/gobreaker"
	"golang.org/x/exp/slog"
	"golang.org/x/time/rate"

	"github.com/alovak/cardflow-bridge/internal/correlation"
	"github.com/alovak/cardflow-bridge/internal/iso8583"
	"github.com/alovak/cardflow-bridge/internal/metrics"
	"github.com/alovak/cardflow-bridge/internal/middleware"
	"github.com/alovak/cardflow-bridge/internal/queue"
)

// App is the main application, it contains all the components of the gateway
// service and is responsible for starting and stopping them.
type App struct {
	srv    *http.Server
	wg     *sync.WaitGroup
	Addr   string
	logger *slog.Logger
	config *Config

	queue     queue.Queue
	ownsQueue bool
	pool      *queue.Pool
	cancel    context.CancelFunc
}

func NewApp(logger *slog.Logger, config *Config) *App {
	logger = logger.With(slog.String("app", "gateway"))

	if config == nil {
		config = DefaultConfig()
	}

	return &App{
		wg:     &sync.WaitGroup{},
		logger: logger,
		config: config,
	}
}

func (a *App) Start() error {
	a.logger.Info("starting app...")

	if err := a.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	q, err := a.openQueue()
	if err != nil {
		return err
	}
	a.queue = q

	loc, err := time.LoadLocation(a.config.LocalTimeZone)
	if err != nil {
		a.logger.Info("invalid local time zone; using UTC", slog.String("tz", a.config.LocalTimeZone), slog.Any("err", err))
		loc = time.UTC
	}

	m := metrics.NewGateway()

	var svc *Service
	registry := correlation.NewRegistry(
		correlation.WithTTL(a.config.CorrelationTTL.Duration()),
		correlation.WithEvictHook(func(id string, reason correlation.EvictReason) {
			svc.OnEvict(id, reason)
		}),
	)
	m.TrackPending(registry.Len)

	publisher := queue.NewBreakerPublisher(q, a.logger, queue.BreakerSettings{
		Name:      "gateway-publish",
		Threshold: a.config.BreakerThreshold,
		Timeout:   a.config.BreakerTimeout.Duration(),
		OnStateChange: func(_ string, from, to gobreaker.State) {
			m.BreakerChanges.WithLabelValues(from.String(), to.String()).Inc()
		},
	})

	svc = NewService(a.logger, iso8583.NewCodec(iso8583.WithLocation(loc)), registry, publisher, m)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.pool = queue.NewPool(a.logger, q, queue.ResponseChannel, a.config.ResponseWorkers, svc.HandleResponse)
	a.pool.Start(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		registry.Run(ctx, a.config.SweepInterval.Duration())
	}()

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(middleware.NewStructuredLogger(a.logger))
	router.Use(chimw.Recoverer)

	api := NewAPI(svc, a.config.WaitTimeout.Duration(), a.config.MaxWait.Duration())
	if a.config.RateLimit > 0 {
		limiter := rate.NewLimiter(rate.Limit(a.config.RateLimit), a.config.RateBurst)
		api.UseOnSubmit(middleware.RateLimit(limiter, func(*http.Request) { m.RateLimited.Inc() }))
	}
	api.AppendRoutes(router)

	router.Handle("/metrics", m.Handler())
	router.Get("/-/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Get("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := q.Ping(ctx); err != nil {
			http.Error(w, "queue not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	l, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		cancel()
		return fmt.Errorf("listening tcp port: %w", err)
	}

	a.Addr = l.Addr().String()

	a.srv = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	a.wg.Add(1)
	go func() {
		a.logger.Info("http server started", slog.String("addr", a.Addr))

		if err := a.srv.Serve(l); err != nil {
			if err != http.ErrServerClosed {
				a.logger.Error("starting http server", "err", err)
			}

			a.logger.Info("http server stopped")
		}

		a.wg.Done()
	}()

	return nil
}

func (a *App) openQueue() (queue.Queue, error) {
	if a.config.Queue != nil {
		return a.config.Queue, nil
	}

	switch a.config.QueueBackend {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		q, err := queue.OpenRedis(ctx, queue.RedisOptions{
			Addr:     a.config.Redis.Addr,
			Password: a.config.Redis.Password,
			DB:       a.config.Redis.DB,
			Prefix:   a.config.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		a.ownsQueue = true
		return q, nil
	case "memory":
		return nil, fmt.Errorf("memory queue must be shared with the authorizer; set Config.Queue")
	default:
		return nil, fmt.Errorf("unsupported QUEUE_BACKEND=%s", a.config.QueueBackend)
	}
}

func (a *App) Shutdown() {
	a.logger.Info("shutting down app...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.srv.Shutdown(ctx)

	a.cancel()
	a.pool.Wait()

	if a.ownsQueue {
		if err := a.queue.Close(); err != nil {
			a.logger.Error("closing queue", "err", err)
		}
	}

	a.wg.Wait()

	a.logger.Info("app stopped")
}
