package main

import (
	"context"
	"log"
	"time"

	"stylemorphapi/controllers"
	"stylemorphapi/dbhelper"
	"stylemorphapi/services"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              services.GetEnv("SENTRY_DSN", ""),
		Environment:      services.GetEnv("ENV", "local"),
		Release:          "stylemorph@1.0.0",
		Debug:            false,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Recover()
	defer sentry.Flush(2 * time.Second)

	ctx := context.Background()
	model, err := services.ParseLLMModelName(services.GetEnv("GEMINI_MODEL", services.Flash25Image.String()))
	if err != nil {
		log.Fatalf("GEMINI_MODEL: %v", err)
	}
	generator, err := services.NewGoogleTryOnGenerator(ctx, model)
	if err != nil {
		log.Fatalf("Failed to initialize Gemini client: %v", err)
	}
	orchestrator := services.NewTryOnOrchestrator(generator, dbhelper.SetupRecorder(), "api")

	var closet services.ClosetProvider
	if bucketName := services.GetEnv("R2_BUCKET_NAME", ""); bucketName != "" {
		awsService := &services.AWSService{}
		if err := awsService.InitPresignClient(ctx); err != nil {
			log.Fatal("[Closet] Failed to initialize AWS provider: S3")
		}
		urlCache, err := services.NewURLCacheService(awsService, bucketName)
		if err != nil {
			log.Fatal("Failed to initialize URL cache service")
		}
		closet = &services.ClosetService{URLCache: urlCache, AWSService: awsService}
	} else {
		log.Println("[Closet] R2_BUCKET_NAME not set, closet import disabled")
	}

	var asynqClient *asynq.Client
	var asynqInspector *asynq.Inspector
	if brokerAddress := services.GetEnv("ASYNC_BROKER_ADDRESS", ""); brokerAddress != "" {
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{Addr: brokerAddress})
		defer asynqClient.Close()
		asynqInspector = asynq.NewInspector(asynq.RedisClientOpt{Addr: brokerAddress})
		defer asynqInspector.Close()
	} else {
		log.Println("[Queue] ASYNC_BROKER_ADDRESS not set, async batches disabled")
	}

	e := controllers.SetupServer(
		services.NewSessionStore(), orchestrator, closet,
		asynqClient, asynqInspector,
	)
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	e.Logger.Fatal(e.Start(":" + services.GetEnv("PORT", "8083")))
}
