package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"linkzip.local/internal/app/linkzip"
	lzcache "linkzip.local/internal/app/linkzip/cache"
	"linkzip.local/internal/app/linkzip/httpapi"
	"linkzip.local/internal/app/linkzip/phishtank"
	"linkzip.local/internal/app/linkzip/repo"
	"linkzip.local/internal/app/linkzip/shortcode"
	"linkzip.local/internal/app/linkzip/stats"
	"linkzip.local/internal/platform/auth"
	platformcache "linkzip.local/internal/platform/cache"
	"linkzip.local/internal/platform/config"
	"linkzip.local/internal/platform/httpmiddleware"
	"linkzip.local/internal/platform/httpserver"
	"linkzip.local/internal/platform/metrics"
	"linkzip.local/internal/platform/ratelimit"
	"linkzip.local/internal/platform/trace"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// rateRules 限流关闭时返回零值规则，RateLimit 中间件对 Limit<=0 直接放行。
func rateRules(cfg config.Config) (create, redirect ratelimit.Rule, err error) {
	if !cfg.RateLimitEnabled {
		return ratelimit.Rule{}, ratelimit.Rule{}, nil
	}
	if create, err = parseRule("create", cfg.RateLimitCreate); err != nil {
		return
	}
	redirect, err = parseRule("redirect", cfg.RateLimitRedirect)
	return
}

func parseRule(name, rate string) (ratelimit.Rule, error) {
	n, window, err := config.ParseRate(rate)
	if err != nil {
		return ratelimit.Rule{}, fmt.Errorf("%s rate: %w", name, err)
	}
	return ratelimit.Rule{Name: name, Limit: n, Window: window}, nil
}

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	slog.SetDefault(newLogger(cfg))
	gin.SetMode(gin.ReleaseMode)

	// run 返回后 defer 的清理（存储、Redis、trace）都已执行
	if err := run(cfg); err != nil {
		slog.Error("linkzip exited", "err", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func run(cfg config.Config) error {
	codec, err := shortcode.New(cfg.GeneratorString, cfg.GeneratorBlockSize)
	if err != nil {
		return err
	}
	createRule, redirectRule, err := rateRules(cfg)
	if err != nil {
		return err
	}

	// 存储
	openCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, closeStore, err := repo.Open(openCtx, cfg)
	cancel()
	if err != nil {
		return err
	}
	defer closeStore()
	slog.Info("store ready", "db_type", cfg.DBType)

	// Redis：没配置就关闭 L2 缓存和限流
	var redisClient *redis.Client
	if cfg.RedisServer != "" {
		redisClient, err = platformcache.NewRedisClient(cfg.RedisServer, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	var limiter *ratelimit.Limiter
	switch {
	case !cfg.RateLimitEnabled:
		slog.Warn("rate limit disabled by config", "RATELIMIT_ENABLED", false)
	case redisClient == nil:
		slog.Warn("rate limit disabled: REDIS_SERVER not set")
	default:
		limiter = ratelimit.NewLimiter(redisClient)
	}

	// 跳转缓存
	var localCache *lzcache.LocalCache
	if cfg.LocalCacheEnabled {
		localCache, err = lzcache.NewLocalCache(100_000)
		if err != nil {
			return err
		}
	}
	var linkCache linkzip.LinkCache
	if localCache != nil || redisClient != nil {
		c := lzcache.NewLinkCache(redisClient, localCache, cfg.RedisTTL)
		defer c.Close()
		linkCache = c
	}

	// PhishTank
	var (
		checker *phishtank.Checker
		updater *phishtank.Updater
	)
	if cfg.PhishTankEnabled() {
		checker = phishtank.NewChecker(store)
		updater = phishtank.NewUpdater(phishtank.NewClient(cfg.PhishTank, cfg.APIName), store, checker)
		rebuildCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		n, err := checker.Rebuild(rebuildCtx)
		cancel()
		if err != nil {
			return err
		}
		slog.Info("phishtank filter loaded", "entries", n)
	} else {
		checker = phishtank.NewChecker(nil)
		updater = phishtank.NewUpdater(nil, store, nil)
		slog.Warn("phishtank disabled by config", "PHISHTANK", "")
	}

	// 访问统计
	var (
		collector       stats.Collector
		channelConsumer *stats.Consumer
		kafkaConsumer   *stats.KafkaConsumer
	)
	switch cfg.StatsMode {
	case config.StatsModeSync:
		collector = stats.NewDirectCollector(store)
	case config.StatsModeKafka:
		slog.Info("visits via kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		collector = stats.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
		kafkaConsumer = stats.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, store)
	default:
		cc := stats.NewChannelCollector(10_000)
		collector = cc
		channelConsumer = stats.NewConsumer(store, cc)
	}

	var tokens auth.TokenService
	if cfg.JWTSecret != "" {
		tokens, err = auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
		if err != nil {
			return err
		}
	}

	if cfg.MetricsEnabled {
		metrics.Init()
	}

	if cfg.TracingEnabled {
		shutdown := trace.InitTrace(cfg.OtlpGrpcEndpoint, cfg.OtlpServiceName, version)
		if shutdown == nil {
			slog.Error("trace init failed")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error("trace shutdown failed", "err", err)
				}
			}()
		}
	}

	svc := linkzip.NewService(codec, store, linkzip.Options{
		MinLength: cfg.GeneratorMinLength,
		Domain:    cfg.APIDomain,
		Cache:     linkCache,
		Phish:     checker,
		Visits:    collector,
	})

	engine, err := httpapi.NewEngine(httpapi.Deps{
		Service:      svc,
		Updater:      updater,
		Limiter:      limiter,
		Tokens:       httpmiddleware.NewTokenMatcher(cfg.Token, cfg.TokenHash),
		JWT:          tokens,
		CreateRule:   createRule,
		RedirectRule: redirectRule,
		APIName:      cfg.APIName,
		SiteDomain:   cfg.SiteDomain,
		CleanupDays:  cfg.PhishTankCleanupDays,
	})
	if err != nil {
		return err
	}

	var publicHandler http.Handler = engine
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(engine, "http")
	}
	publicSrv := httpserver.New(cfg.Addr, cfg, publicHandler)

	adminSrv := httpserver.New(cfg.AdminAddr, cfg, httpapi.NewAdminMux(httpapi.AdminOptions{
		Metrics: cfg.MetricsEnabled,
		Pprof:   cfg.PprofEnabled,
		Build: httpapi.BuildInfo{
			ServiceName: cfg.ServiceName,
			Version:     version,
			Commit:      commit,
			BuildTime:   buildTime,
		},
		Ready: svc.Ping,
	}))

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(stopCtx)
	g.Go(func() error {
		slog.Info("public server listening", "addr", cfg.Addr)
		return httpserver.Run(ctx, publicSrv, cfg.ShutdownTimeout)
	})
	g.Go(func() error {
		slog.Info("admin server listening", "addr", cfg.AdminAddr)
		return httpserver.Run(ctx, adminSrv, cfg.ShutdownTimeout)
	})
	// channel consumer 等 collector 关闭后写完剩余事件才退出，不跟随 ctx
	consumerDone := make(chan struct{})
	if channelConsumer != nil {
		go func() {
			defer close(consumerDone)
			channelConsumer.Run(context.Background())
		}()
	} else {
		close(consumerDone)
	}
	if kafkaConsumer != nil {
		g.Go(func() error {
			defer kafkaConsumer.Close()
			kafkaConsumer.Run(ctx)
			return nil
		})
	}
	if updater.Enabled() && cfg.PhishTankRefreshInterval > 0 {
		g.Go(func() error {
			updater.Run(ctx, cfg.PhishTankRefreshInterval, cfg.PhishTankCleanupDays)
			return nil
		})
	}

	err = g.Wait()
	// HTTP 已经停了，不会再有新的访问事件
	collector.Close()
	<-consumerDone
	return err
}
