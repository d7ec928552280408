package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"prepkitty/internal/config"
	"prepkitty/internal/cvrender"
	"prepkitty/internal/database"
	"prepkitty/internal/mail"
	"prepkitty/internal/metrics"
	"prepkitty/internal/storage"
	"prepkitty/internal/tasks"
	"prepkitty/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Println("database connection ready for worker")

	ctx := context.Background()

	storageClient, err := storage.NewClient(ctx, cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	log.Printf("storage client ready, bucket=%s", cfg.MinIO.Bucket)

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues: map[string]int{
			tasks.QueueCritical: 6,
			tasks.QueueDefault:  3,
		},
		Logger: newAsynqLogger(logger),
	})

	renderer := cvrender.NewChromeRenderer(logger, cvrender.ChromeOptions{
		Bin:     cfg.Worker.ChromeBin,
		Timeout: cfg.Worker.RenderTimeout,
	})
	sender := mail.NewSMTPSender(cfg.SMTP, cfg.API.PublicBaseURL)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeVerificationEmail, worker.NewVerificationEmailHandler(sender, logger))
	mux.Handle(tasks.TypeCVRender, worker.NewCVRenderHandler(db, storageClient, renderer, redisClient, logger))

	logger.Info("worker service started",
		slog.String("redis_addr", redisAddr),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
