package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/guchiswipe/guchiswipe/config"
	"github.com/guchiswipe/guchiswipe/internal/cache"
	"github.com/guchiswipe/guchiswipe/internal/dispatch"
	"github.com/guchiswipe/guchiswipe/internal/graph"
	"github.com/guchiswipe/guchiswipe/internal/queue/streams"
	"github.com/guchiswipe/guchiswipe/internal/rag"
	"github.com/guchiswipe/guchiswipe/internal/session"
	"github.com/guchiswipe/guchiswipe/internal/worker"
	openai_provider "github.com/guchiswipe/guchiswipe/provider/openai"
	"github.com/guchiswipe/guchiswipe/tools/docsearch"
	"github.com/guchiswipe/guchiswipe/tools/webfetch"
)

func workerCMD() *cobra.Command {
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "worker",
		Short: "Run background task worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cfgPath)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	return cmd
}

func runWorker(cfgPath string) error {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dsn, err := cfg.Databases.Postgres.DSN()
	if err != nil {
		return err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.PingContext(ctx); err != nil {
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
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Databases.Redis.Addr(), err)
	}
	defer func() { _ = rdb.Close() }()

	if err := streams.EnsureGroup(ctx, rdb, cfg.Queue.TaskStream, cfg.Queue.Group); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	consumerName := cfg.Queue.Consumer
	if consumerName == "" {
		consumerName = fmt.Sprintf("worker-%s", uuid.NewString()[:8])
	}
	consumer := streams.NewConsumer(rdb, cfg.Queue.Group, consumerName)
	publisher := streams.NewPublisher(rdb, cfg.Queue.MaxLen)
	dispatcher := dispatch.New(publisher, cfg.Queue.TaskStream, nil)

	llm := openai_provider.NewClient(cfg.Providers.OpenAI)
	search, err := docsearch.NewClient(cfg.Search)
	if err != nil {
		return err
	}
	fetch, err := webfetch.NewFetcher(cfg.Fetch, log.New(os.Stdout, "[FETCH] ", log.LstdFlags))
	if err != nil {
		return err
	}

	kv := cache.NewRedisKV(rdb)
	contentCache := cache.NewContentCache(kv, cfg.RAG.ContentTTL, log.New(os.Stdout, "[CACHE] ", log.LstdFlags))
	graphCache := cache.NewGraphCache(kv, cfg.RAG.GraphTTL)

	engine := rag.NewEngine(llm, search, fetch, contentCache, cfg.RAG, log.New(os.Stdout, "[RAG] ", log.LstdFlags))
	store := session.NewStore(db)
	sessions := session.NewService(store, llm, dispatcher, cfg.Sessions, nil)
	graphs := graph.NewBuilder(store, llm, graphCache, nil)

	logger := log.New(os.Stdout, "[WORKER] ", log.LstdFlags)
	processor := worker.NewProcessor(logger, consumer, sessions, graphs, store, engine, cfg.Queue.TaskStream)

	return processor.Start(ctx)
}
