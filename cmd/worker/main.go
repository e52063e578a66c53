package main

import (
	"context"
	"log"
	"os"
	"time"

	"stylemorphapi/dbhelper"
	"stylemorphapi/services"
	"stylemorphapi/tasks"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         services.GetEnv("SENTRY_DSN", ""),
		Environment: services.GetEnv("ENV", "local"),
		Release:     "stylemorph-worker@1.0.0",
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")},
		asynq.Config{Concurrency: 10, Queues: map[string]int{
			tasks.QueueGenerate: 7,
		}},
	)

	model, err := services.ParseLLMModelName(services.GetEnv("GEMINI_MODEL", services.Flash25Image.String()))
	if err != nil {
		log.Fatalf("GEMINI_MODEL: %v", err)
	}
	generator, err := services.NewGoogleTryOnGenerator(context.Background(), model)
	if err != nil {
		log.Fatalf("[Queue] Failed to initialize Gemini client: %v", err)
	}
	orchestrator := services.NewTryOnOrchestrator(generator, dbhelper.SetupRecorder(), "worker")

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeTryOnBatch, func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandleTryOnBatchTask(ctx, t, orchestrator)
	})

	if err := srv.Run(mux); err != nil {
		log.Fatal(err)
	}
}
