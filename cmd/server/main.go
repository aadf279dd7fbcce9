package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/DmitryTakmakov/mailout-service/internal/config"
	"github.com/DmitryTakmakov/mailout-service/internal/db"
	"github.com/DmitryTakmakov/mailout-service/internal/handler"
	"github.com/DmitryTakmakov/mailout-service/internal/repository"
	"github.com/DmitryTakmakov/mailout-service/internal/scheduler"
	"github.com/DmitryTakmakov/mailout-service/internal/service"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, relying on OS environment variables")
	}
	cfg := config.Load()

	conn, err := db.Connect(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer conn.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	amqpConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("broker connection failed")
	}
	defer amqpConn.Close()

	ch, err := amqpConn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("broker channel failed")
	}
	defer ch.Close()

	revoked := &scheduler.RevocationSet{RDB: rdb}
	sched, err := scheduler.NewAMQPScheduler(ch, revoked, log)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler setup failed")
	}

	mailoutRepo := &repository.MailoutRepository{DB: conn}
	recipientRepo := &repository.RecipientRepository{DB: conn}
	deliveryRepo := &repository.DeliveryRepository{DB: conn}

	locks := service.NewDeliveryLocks()
	dispatcher := &service.Dispatcher{Deliveries: deliveryRepo, Scheduler: sched, Log: log}
	fanout := &service.Fanout{
		Recipients: recipientRepo,
		Deliveries: deliveryRepo,
		Dispatcher: dispatcher,
		Scheduler:  sched,
		Locks:      locks,
		Log:        log,
	}
	reconciler := &service.Reconciler{
		Deliveries: deliveryRepo,
		Mailouts:   mailoutRepo,
		Recipients: recipientRepo,
		Dispatcher: dispatcher,
		Locks:      locks,
		Log:        log,
		Now:        time.Now,
	}
	mailoutService := &service.MailoutService{
		Mailouts:   mailoutRepo,
		Deliveries: deliveryRepo,
		Scheduler:  sched,
		Fanout:     fanout,
		Log:        log,
	}

	// Completion events flow back from the executor workers.
	resultCh, err := amqpConn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("result channel failed")
	}
	defer resultCh.Close()
	go func() {
		err := scheduler.ConsumeResults(resultCh, log, func(res scheduler.Result) error {
			return reconciler.OnCompletionEvent(context.Background(), res)
		})
		if err != nil {
			log.Error().Err(err).Msg("result consumer stopped")
		}
	}()

	sweeper := &service.Sweeper{Deliveries: deliveryRepo, Log: log, Now: time.Now}
	runner := cron.New()
	if err := sweeper.Register(runner); err != nil {
		log.Fatal().Err(err).Msg("sweeper registration failed")
	}
	runner.Start()
	defer runner.Stop()

	validate := handler.NewValidator()
	mailoutHandler := &handler.MailoutHandler{Service: mailoutService, Validate: validate, Log: log}
	recipientHandler := &handler.RecipientHandler{Repo: recipientRepo, Validate: validate, Log: log}

	r := chi.NewRouter()

	r.Post("/recipients", recipientHandler.Create)
	r.Patch("/recipients/{id}", recipientHandler.Patch)
	r.Delete("/recipients/{id}", recipientHandler.Delete)

	r.Post("/mailouts", mailoutHandler.Create)
	r.Get("/mailouts", mailoutHandler.List)
	r.Get("/mailouts/{id}", mailoutHandler.Get)
	r.Patch("/mailouts/{id}", mailoutHandler.Patch)
	r.Delete("/mailouts/{id}", mailoutHandler.Delete)

	r.Get("/deliveries/{id}", mailoutHandler.GetDelivery)
	r.Delete("/deliveries/{id}", mailoutHandler.DeleteDelivery)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	log.Info().Str("addr", cfg.ListenAddr).Msg("server running")
	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
