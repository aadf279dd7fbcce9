package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/DmitryTakmakov/mailout-service/internal/config"
	"github.com/DmitryTakmakov/mailout-service/internal/executor"
	"github.com/DmitryTakmakov/mailout-service/internal/gateway"
	"github.com/DmitryTakmakov/mailout-service/internal/scheduler"
)

const maxTransportRetries = 3

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "worker").Logger()

	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, relying on OS environment variables")
	}
	cfg := config.Load()

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

	if err := scheduler.DeclareQueues(ch); err != nil {
		log.Fatal().Err(err).Msg("queue declaration failed")
	}

	msgs, err := ch.Consume(scheduler.TaskQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("consume failed")
	}

	exec := executor.New(
		gateway.NewClient(cfg),
		&scheduler.RevocationSet{RDB: rdb},
		log,
	)

	log.Info().Msg("worker running, waiting for tasks")
	ctx := context.Background()

	for d := range msgs {
		var task scheduler.Task
		if err := json.Unmarshal(d.Body, &task); err != nil {
			log.Error().Err(err).Msg("malformed task dropped")
			d.Ack(false)
			continue
		}

		res, err := exec.Execute(ctx, task)
		if err != nil {
			// Gateway unreachable: transport retries are this side's job,
			// bounded by the x-retry-count header carried across requeues.
			retryCount := headerRetryCount(d.Headers)
			if retryCount < maxTransportRetries {
				log.Warn().Err(err).Str("task_handle", task.TaskHandle).Int("retry", retryCount).Msg("send failed, requeueing")
				if err := republish(ch, d.Body, retryCount+1); err != nil {
					log.Error().Err(err).Msg("requeue failed")
					d.Nack(false, true)
					continue
				}
			} else {
				log.Error().Err(err).Str("task_handle", task.TaskHandle).Msg("send failed permanently")
			}
			d.Ack(false)
			continue
		}

		if err := scheduler.PublishResult(ch, res); err != nil {
			log.Error().Err(err).Str("task_handle", task.TaskHandle).Msg("result publish failed")
			d.Nack(false, true)
			continue
		}
		d.Ack(false)
	}
}

func headerRetryCount(headers amqp.Table) int {
	switch v := headers["x-retry-count"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

func republish(ch *amqp.Channel, body []byte, retryCount int) error {
	return ch.Publish(
		"", scheduler.TaskQueue, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{"x-retry-count": int32(retryCount)},
			Body:         body,
		},
	)
}
