package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/shelf-sh/shelf/internal/config"
	"github.com/shelf-sh/shelf/internal/domain"
	"github.com/shelf-sh/shelf/internal/feed"
	"github.com/shelf-sh/shelf/internal/httpserver"
	"github.com/shelf-sh/shelf/internal/httpserver/deps"
	"github.com/shelf-sh/shelf/internal/logger"
	"github.com/shelf-sh/shelf/internal/reconcile"
	"github.com/shelf-sh/shelf/internal/redis"
	"github.com/shelf-sh/shelf/internal/scheduler"
	"github.com/shelf-sh/shelf/internal/session"
	"github.com/shelf-sh/shelf/internal/sources/seedfile"
	redisstore "github.com/shelf-sh/shelf/internal/store/redis"
	"github.com/shelf-sh/shelf/internal/supabase"
	"github.com/shelf-sh/shelf/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	client      *supabase.Client
	sessions    *session.Manager
	loop        *reconcile.Loop
	resyncer    *scheduler.Resyncer
	feed        *feed.Subscriber
	redisClient *goredis.Client
	snapshots   *redisstore.Store
	owner       string
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Authenticate early - fail fast if the backend rejects us
	client, err := supabase.New(cfg.SupabaseURL, cfg.SupabaseAnonKey)
	if err != nil {
		loggerClient.Errorf("Failed to create backend client: %v", err)
		os.Exit(1)
	}

	sess, err := client.SignIn(cfg.AccountEmail, cfg.AccountPassword)
	if err != nil {
		loggerClient.Errorf("Failed to sign in: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("signed in",
		logger.String("user", sess.UserID),
		logger.String("email", sess.Email))

	sessions := session.NewManager(client, loggerClient, sess)

	// Redis is optional: with no address configured the daemon starts
	// cold and waits for the first authoritative resync.
	var redisClient *goredis.Client
	var snapshots *redisstore.Store
	if cfg.RedisAddr != "" {
		loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		redisClient, err = redis.New(redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDialTimeout,
			ReadTimeout:    cfg.RedisReadTimeout,
			WriteTimeout:   cfg.RedisWriteTimeout,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, loggerClient)
		if err != nil {
			loggerClient.Errorf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		snapshots = redisstore.NewStore(redisClient)
	} else {
		loggerClient.Info("redis not configured, warm-start cache disabled")
	}

	bookmarks := supabase.NewBookmarkStore(client, sess.UserID)

	loop := reconcile.NewLoop(
		reconcile.NewEngine(sess.UserID),
		bookmarks,
		loggerClient,
		cfg.StoreOpTimeout,
	)
	if snapshots != nil {
		owner := sess.UserID
		loop.SetSnapshotSink(func(list []domain.Bookmark) {
			sctx, cancel := context.WithTimeout(context.Background(), cfg.StoreOpTimeout)
			defer cancel()
			if err := snapshots.SaveSnapshot(sctx, owner, list); err != nil {
				loggerClient.Debug("failed to cache snapshot", logger.Error(err))
			}
		})
	}

	// Shared by the feed subscriber, the resync endpoint and the
	// periodic scheduler.
	resyncTrigger := make(chan struct{}, 1)

	resyncer := scheduler.NewResyncer(
		loop,
		loggerClient,
		cfg.ResyncInterval,
		cfg.StoreOpTimeout,
		resyncTrigger,
	)

	feedSub := feed.New(feed.Config{
		BaseURL:      cfg.SupabaseURL,
		AnonKey:      cfg.SupabaseAnonKey,
		Table:        cfg.FeedTable,
		ReconnectMin: cfg.FeedReconnectMin,
		ReconnectMax: cfg.FeedReconnectMax,
	}, sessions, loop, resyncTrigger, loggerClient)

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:         loggerClient,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		TimeNow:        time.Now,
		Loop:           loop,
		ResyncTrigger:  resyncTrigger,
		OpTimeout:      cfg.StoreOpTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		client:      client,
		sessions:    sessions,
		loop:        loop,
		resyncer:    resyncer,
		feed:        feedSub,
		redisClient: redisClient,
		snapshots:   snapshots,
		owner:       sess.UserID,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting Shelf v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("Shelf %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.loop.Start(ctx)

	// Warm start: show the cached list while the first resync runs.
	if a.snapshots != nil {
		a.warmStart(ctx)
	}

	a.sessions.Start(ctx)

	// Initial resync is authoritative; without it the daemon serves
	// nothing trustworthy, so failure aborts startup.
	if err := a.resyncer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start resyncer: %w", err)
	}
	a.logger.Info("resyncer started",
		logger.Duration("interval", a.cfg.ResyncInterval))

	a.feed.Start(ctx)
	a.logger.Info("change feed subscriber started",
		logger.String("table", a.cfg.FeedTable))

	if a.cfg.SeedFile != "" {
		go a.importSeed()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	a.feed.Stop()
	a.resyncer.Stop()
	a.sessions.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	a.loop.Stop()

	if err := a.client.SignOut(a.sessions.Current().AccessToken); err != nil {
		a.logger.Warnf("failed to sign out: %v", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ Shelf stopped cleanly")
	return nil
}

func (a *App) warmStart(ctx context.Context) {
	lctx, cancel := context.WithTimeout(ctx, a.cfg.StoreOpTimeout)
	defer cancel()

	cached, err := a.snapshots.LoadSnapshot(lctx, a.owner)
	if err != nil {
		a.logger.Warn("failed to load cached snapshot, starting cold",
			logger.Error(err))
		return
	}
	if len(cached) == 0 {
		return
	}

	a.loop.Prime(cached)
	a.logger.Info("primed list from cached snapshot",
		logger.Int("entries", len(cached)))
}

func (a *App) importSeed() {
	submit := func(title, url string) error {
		_, result, err := a.loop.SubmitAdd(title, url)
		if err != nil {
			return err
		}
		select {
		case err := <-result:
			return err
		case <-time.After(a.cfg.StoreOpTimeout + time.Second):
			return fmt.Errorf("timed out waiting for durable write")
		}
	}

	importer := seedfile.NewImporter(a.cfg.SeedFile, submit, a.logger)
	if err := importer.Run(); err != nil {
		a.logger.Error("seed import failed",
			logger.String("file", a.cfg.SeedFile),
			logger.Error(err))
	}
}
