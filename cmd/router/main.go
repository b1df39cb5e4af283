package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	mongodrv "go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/log"

	"github.com/itep-ai/router/config"
	"github.com/itep-ai/router/model"
	"github.com/itep-ai/router/model/anthropic"
	"github.com/itep-ai/router/model/middleware"
	"github.com/itep-ai/router/model/openai"
	"github.com/itep-ai/router/registry"
	"github.com/itep-ai/router/router"
	"github.com/itep-ai/router/run"
	"github.com/itep-ai/router/run/inmem"
	runmongo "github.com/itep-ai/router/run/mongo"
	runredis "github.com/itep-ai/router/run/redis"
	"github.com/itep-ai/router/server"
	"github.com/itep-ai/router/worker/httpclient"
)

func main() {
	var (
		addrF = flag.String("http", "", "HTTP listen address (overrides ROUTER_HTTP_ADDR)")
		dbgF  = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	// Setup logger.
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf(ctx, err, "invalid configuration")
	}
	if *dbgF || cfg.Debug {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}
	if *addrF != "" {
		cfg.HTTPAddr = *addrF
	}
	log.Print(ctx, log.KV{K: "http-addr", V: cfg.HTTPAddr},
		log.KV{K: "provider", V: cfg.Provider},
		log.KV{K: "store", V: cfg.Store})

	// LLM client with adaptive rate limiting.
	llm, err := newModelClient(cfg)
	if err != nil {
		log.Fatalf(ctx, err, "create model client")
	}
	if cfg.RateLimitTPM > 0 {
		limiter := middleware.NewAdaptiveRateLimiter(float64(cfg.RateLimitTPM), 0)
		llm = limiter.Middleware()(llm)
	}

	// Worker discovery and dispatch.
	discovery, err := registry.NewHTTPClient(cfg.ControlPlaneURL)
	if err != nil {
		log.Fatalf(ctx, err, "create discovery client")
	}
	reg := registry.NewCachingClient(discovery, cfg.DiscoveryTTL)

	var workerOpts []httpclient.Option
	if cfg.WorkerToken != "" {
		workerOpts = append(workerOpts, httpclient.WithBearerToken(cfg.WorkerToken))
	}
	caller, err := httpclient.New(reg, workerOpts...)
	if err != nil {
		log.Fatalf(ctx, err, "create worker client")
	}

	// Run store.
	store, cleanup, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatalf(ctx, err, "create run store")
	}
	defer cleanup()

	rt, err := router.New(router.Options{
		Model:       llm,
		Registry:    reg,
		Worker:      caller,
		Store:       store,
		MaxReplans:  cfg.MaxReplans,
		TaskTimeout: cfg.TaskTimeout,
		LLMTimeout:  cfg.LLMTimeout,
		RunDeadline: cfg.RunDeadline,
	})
	if err != nil {
		log.Fatalf(ctx, err, "create router")
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.New(rt, reg).Handler(ctx),
	}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		log.Printf(ctx, "HTTP server listening on %s", cfg.HTTPAddr)
		errc <- srv.ListenAndServe()
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf(ctx, err, "shutdown HTTP server")
	}
	log.Printf(ctx, "exited")
}

func newModelClient(cfg config.Config) (model.Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewFromAPIKey(cfg.AnthropicAPIKey, cfg.Model)
	case "openai":
		return openai.NewFromAPIKey(cfg.OpenAIAPIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

func newStore(ctx context.Context, cfg config.Config) (run.Store, func(), error) {
	noop := func() {}
	switch cfg.Store {
	case "redis":
		ropts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, noop, fmt.Errorf("parse redis URL: %w", err)
		}
		client := goredis.NewClient(ropts)
		store, err := runredis.New(runredis.Options{Client: client, TTL: cfg.RunTTL})
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = client.Close() }, nil

	case "mongo":
		client, err := mongodrv.Connect(mongoopts.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, noop, fmt.Errorf("connect to mongo: %w", err)
		}
		coll := client.Database(cfg.MongoDatabase).Collection("runs")
		store, err := runmongo.NewStoreFromCollection(coll)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = client.Disconnect(ctx) }, nil

	default:
		return inmem.New(), noop, nil
	}
}
