package authorizer

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"golang.org/x/exp/slog"

	"github.com/alovak/cardflow-bridge/internal/iso8583"
	"github.com/alovak/cardflow-bridge/internal/metrics"
	"github.com/alovak/cardflow-bridge/internal/middleware"
	"github.com/alovak/cardflow-bridge/internal/queue"
)

// App is the main application, it contains all the components of the
// authorizer service and is responsible for starting and stopping them.
type App struct {
	srv    *http.Server
	wg     *sync.WaitGroup
	Addr   string
	logger *slog.Logger
	config *Config

	queue     queue.Queue
	ownsQueue bool
	db        *sql.DB
	pool      *queue.Pool
	cancel    context.CancelFunc
}

func NewApp(logger *slog.Logger, config *Config) *App {
	logger = logger.With(slog.String("app", "authorizer"))

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

	limit, err := a.config.limit()
	if err != nil {
		return fmt.Errorf("transaction limit: %w", err)
	}

	repository, err := a.openRepository()
	if err != nil {
		return err
	}

	q, err := a.openQueue()
	if err != nil {
		if a.db != nil {
			a.db.Close()
		}
		return err
	}
	a.queue = q

	m := metrics.NewAuthorizer()
	codec := iso8583.NewCodec(iso8583.WithLocation(a.config.location()))
	rules := NewRules(limit, a.config.TimeoutDelay.Duration())
	svc := NewService(a.logger, codec, rules, repository, q, m)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.pool = queue.NewPool(a.logger, q, queue.RequestChannel, a.config.RequestWorkers, svc.HandleRequest)
	a.pool.Start(ctx)

	if retention := a.config.JournalRetention.Duration(); retention > 0 {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			repository.Run(ctx, a.logger, retention, a.config.JournalSweepInterval.Duration())
		}()
	}

	router := chi.NewRouter()
	router.Use(middleware.NewStructuredLogger(a.logger))
	router.Handle("/metrics", m.Handler())
	router.Get("/-/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Get("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := repository.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
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

func (a *App) openRepository() (*Repository, error) {
	switch a.config.JournalBackend {
	case "pg":
		if a.config.DBDSN == "" {
			return nil, fmt.Errorf("DB_DSN is required for pg backend")
		}
		db, err := sql.Open("postgres", a.config.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxIdleConns(5)
		db.SetMaxOpenConns(10)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}

		repository := NewPGRepository(db)
		if err := repository.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		return repository, nil
	case "mem":
		return NewRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported REPO_BACKEND=%s", a.config.JournalBackend)
	}
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
		return nil, fmt.Errorf("memory queue must be shared with the gateway; set Config.Queue")
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

	if a.db != nil {
		a.db.Close()
	}

	a.logger.Info("app stopped")
}
