package server

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/guchiswipe/guchiswipe/config"
	"github.com/guchiswipe/guchiswipe/internal/cache"
	"github.com/guchiswipe/guchiswipe/internal/dispatch"
	"github.com/guchiswipe/guchiswipe/internal/graph"
	"github.com/guchiswipe/guchiswipe/internal/queue/streams"
	"github.com/guchiswipe/guchiswipe/internal/rag"
	"github.com/guchiswipe/guchiswipe/internal/session"
	openai_provider "github.com/guchiswipe/guchiswipe/provider/openai"
	"github.com/guchiswipe/guchiswipe/tools/docsearch"
	"github.com/guchiswipe/guchiswipe/tools/webfetch"
)

// Run loads configuration, wires all dependencies and serves the API until
// the listener fails.
func Run(cfgPath, addr string) error {
	cfg, err := appconfig.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	e := newEcho()
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	dsn, err := cfg.Databases.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		return fmt.Errorf("postgres connection failed: %w", err)
	}

	if err := cfg.Databases.Redis.Validate(); err != nil {
		return err
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Databases.Redis.Addr(),
		Password: cfg.Databases.Redis.Password,
		DB:       cfg.Databases.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Databases.Redis.Addr(), err)
	}

	secret := cfg.General.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (general.jwt_secret)")
	}
	if cfg.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("openai api key not configured (providers.openai.api_key)")
	}

	llm := openai_provider.NewClient(cfg.Providers.OpenAI)
	search, err := docsearch.NewClient(cfg.Search)
	if err != nil {
		return err
	}
	fetchLogger := log.New(log.Writer(), "[FETCH] ", log.LstdFlags)
	fetch, err := webfetch.NewFetcher(cfg.Fetch, fetchLogger)
	if err != nil {
		return err
	}

	kv := cache.NewRedisKV(rdb)
	contentCache := cache.NewContentCache(kv, cfg.RAG.ContentTTL, log.New(log.Writer(), "[CACHE] ", log.LstdFlags))
	graphCache := cache.NewGraphCache(kv, cfg.RAG.GraphTTL)

	engine := rag.NewEngine(llm, search, fetch, contentCache, cfg.RAG, log.New(log.Writer(), "[RAG] ", log.LstdFlags))

	publisher := streams.NewPublisher(rdb, cfg.Queue.MaxLen)
	dispatcher := dispatch.New(publisher, cfg.Queue.TaskStream, nil)

	store := session.NewStore(db)
	sessions := session.NewService(store, llm, dispatcher, cfg.Sessions, nil)
	graphs := graph.NewBuilder(store, llm, graphCache, nil)

	api := e.Group("/api")
	sh := &SessionsHandler{Service: sessions, Store: store}
	sh.Register(api.Group("/sessions"), []byte(secret))
	ah := &AdviceHandler{Engine: engine, Store: store, Dispatcher: dispatcher}
	ah.Register(api.Group("/advice"), []byte(secret))
	gh := &GraphHandler{Builder: graphs}
	gh.Register(api.Group("/graph"), []byte(secret))

	if addr == "" {
		addr = cfg.General.Listen
		if addr != "" && addr[0] != ':' {
			addr = ":" + addr
		}
		if addr == "" {
			addr = ":10080"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// newEcho builds the echo instance with recovery, CORS and a unified JSON
// error handler.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Cookie"},
		AllowCredentials: true,
	}))
	return e
}
