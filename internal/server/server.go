package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/victornm/quizrank/internal/api"
	"github.com/victornm/quizrank/internal/auth"
	"github.com/victornm/quizrank/internal/cache"
	"github.com/victornm/quizrank/internal/event"
	"github.com/victornm/quizrank/internal/leaderboard"
	"github.com/victornm/quizrank/internal/notify"
	"github.com/victornm/quizrank/internal/session"
	"github.com/victornm/quizrank/internal/store"
	"github.com/victornm/quizrank/internal/telemetry"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendLocal  = "local"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Cache struct {
			Addrs []string
			Pass  string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Addr    string
		User    string
		Pass    string
		Name    string
		Migrate bool
	}

	Store struct {
		Driver string
	}

	Cache struct {
		Backend        string
		Size           int
		Coalesce       bool
		LeaderboardTTL time.Duration
		PerformanceTTL time.Duration
	}

	Leaderboard struct {
		Workers      int
		PreviewSize  int
		QueryTimeout time.Duration
	}

	Notify struct {
		Backend   string
		RateLimit float64
		RateBurst int
	}

	Auth struct {
		Secret   string
		TokenTTL time.Duration
	}
}

// DefaultConfig runs everything in process. Auth.Secret has no default and must be set.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.Redis.Pubsub.Prefix = "quizrank"
	c.Store.Driver = DriverMemory
	c.Cache.Backend = BackendMemory
	c.Cache.Size = 10000
	c.Cache.LeaderboardTTL = leaderboard.DefaultLeaderboardTTL
	c.Cache.PerformanceTTL = leaderboard.DefaultPerformanceTTL
	c.Leaderboard.Workers = leaderboard.DefaultWorkers
	c.Leaderboard.PreviewSize = leaderboard.DefaultPreviewSize
	c.Leaderboard.QueryTimeout = leaderboard.DefaultQueryTimeout
	c.Notify.Backend = BackendLocal
	c.Notify.RateLimit = 10
	c.Notify.RateBurst = 20
	c.Auth.TokenTTL = auth.DefaultTokenTTL
	return c
}

// records is everything the services need from the record store.
type records interface {
	leaderboard.Records
	session.Records
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			cache  redis.UniversalClient
			pubsub redis.UniversalClient
		}

		postgres *pgxpool.Pool
		records  records
		cache    *cache.Cache
	}

	notify struct {
		hub         *notify.Hub
		broadcaster notify.Broadcaster
		relay       *notify.RedisBroadcaster
		gateway     *notify.Gateway
	}

	service struct {
		auth        *auth.Authenticator
		leaderboard *leaderboard.Service
		session     *session.Service
	}

	http *http.Server

	// ctx lives until Shutdown and bounds background loops.
	ctx    context.Context
	cancel context.CancelFunc
}

func Init(c Config) (*Server, error) {
	if c.Auth.Secret == "" {
		return nil, errors.New("server: auth secret is required")
	}

	s := &Server{c: c}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initRecords(); err != nil {
		return fmt.Errorf("records: %w", err)
	}

	if err := s.initCache(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	s.initNotify()
	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	if s.c.Cache.Backend == BackendRedis {
		s.infra.redis.cache, err = connect(s.c.Redis.Cache.Addrs, s.c.Redis.Cache.Pass)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}

	if s.c.Notify.Backend == BackendRedis {
		s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
		if err != nil {
			return fmt.Errorf("pubsub: %w", err)
		}
	}

	return nil
}

func (s *Server) initRecords() error {
	switch s.c.Store.Driver {
	case DriverMemory:
		slog.Warn("server: using in-memory record store, data is lost on exit")
		s.infra.records = store.NewMemory()
		return nil

	case DriverPostgres:
		db, err := s.connectPostgres()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		s.infra.postgres = db

		pg := store.NewPostgres(db)
		if s.c.Postgres.Migrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := pg.Migrate(ctx); err != nil {
				return fmt.Errorf("postgres: migrate: %w", err)
			}
		}
		s.infra.records = pg
		return nil

	default:
		return fmt.Errorf("unknown store driver %q", s.c.Store.Driver)
	}
}

func (s *Server) connectPostgres() (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := s.c.Postgres
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", p.User, p.Pass, p.Addr, p.Name))
	if err != nil {
		return nil, err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (s *Server) initCache() error {
	var st cache.Store
	switch s.c.Cache.Backend {
	case BackendRedis:
		st = cache.NewRedisStore(s.infra.redis.cache)

	case BackendMemory:
		ms, err := cache.NewMemoryStore(s.c.Cache.Size)
		if err != nil {
			return err
		}
		st = ms

	default:
		return fmt.Errorf("unknown cache backend %q", s.c.Cache.Backend)
	}

	var opts []cache.Option
	if s.c.Cache.Coalesce {
		opts = append(opts, cache.WithCoalescing())
	}

	s.infra.cache = cache.New(st, opts...)
	return nil
}

func (s *Server) initNotify() {
	s.notify.hub = notify.NewHub()

	if s.c.Notify.Backend == BackendRedis {
		s.notify.relay = notify.NewRedisBroadcaster(s.infra.redis.pubsub, s.c.Redis.Pubsub.Prefix, s.notify.hub)
		s.notify.broadcaster = s.notify.relay
		return
	}

	s.notify.broadcaster = notify.NewLocalBroadcaster(s.notify.hub)
}

func (s *Server) initService() {
	s.service.auth = auth.NewAuthenticator(auth.Config{
		Secret:   s.c.Auth.Secret,
		TokenTTL: s.c.Auth.TokenTTL,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		Records:        s.infra.records,
		Cache:          s.infra.cache,
		LeaderboardTTL: s.c.Cache.LeaderboardTTL,
		PerformanceTTL: s.c.Cache.PerformanceTTL,
		Workers:        s.c.Leaderboard.Workers,
		PreviewSize:    s.c.Leaderboard.PreviewSize,
		QueryTimeout:   s.c.Leaderboard.QueryTimeout,
	})

	s.service.session = session.NewService(session.Config{
		Records:     s.infra.records,
		Invalidator: leaderboard.NewInvalidator(s.infra.cache),
		EventBus:    s.eb,
	})

	notify.NewNotifier(s.notify.broadcaster).Register(s.eb)
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.HTTPMiddleware())

	s.notify.gateway = notify.NewGateway(notify.GatewayConfig{
		Hub:       s.notify.hub,
		Tokens:    s.service.auth,
		RateLimit: rate.Limit(s.c.Notify.RateLimit),
		RateBurst: s.c.Notify.RateBurst,
	})

	api.New(api.Config{
		Engine:      e,
		Auth:        s.service.auth,
		Leaderboard: s.service.leaderboard,
		Session:     s.service.session,
		Gateway:     s.notify.gateway,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

// Handler exposes the HTTP routes, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) Start() {
	ctx := s.ctx

	var eg errgroup.Group
	if s.notify.relay != nil {
		eg.Go(func() error {
			return s.notify.relay.Relay(ctx)
		})
	}

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}
	s.notify.gateway.Close()

	s.cancel()

	s.eb.Stop()

	for _, r := range []redis.UniversalClient{s.infra.redis.cache, s.infra.redis.pubsub} {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
