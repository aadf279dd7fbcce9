package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

const (
	TaskQueue   = "send_tasks"
	ResultQueue = "task_results"

	revokedSetKey = "mailout:revoked"
)

// RevocationSet is the revoked-handle set shared between the API process
// and the executor workers.
type RevocationSet struct {
	RDB *redis.Client
}

func (s *RevocationSet) Add(ctx context.Context, handle string) error {
	return s.RDB.SAdd(ctx, revokedSetKey, handle).Err()
}

func (s *RevocationSet) Remove(ctx context.Context, handle string) error {
	return s.RDB.SRem(ctx, revokedSetKey, handle).Err()
}

func (s *RevocationSet) Contains(ctx context.Context, handle string) (bool, error) {
	return s.RDB.SIsMember(ctx, revokedSetKey, handle).Result()
}

// AMQPScheduler submits tasks to the executor workers over RabbitMQ and
// revokes them through the shared revocation set.
type AMQPScheduler struct {
	Channel *amqp.Channel
	Revoked *RevocationSet
	Log     zerolog.Logger
}

func NewAMQPScheduler(ch *amqp.Channel, revoked *RevocationSet, log zerolog.Logger) (*AMQPScheduler, error) {
	if _, err := declareQueue(ch, TaskQueue); err != nil {
		return nil, err
	}
	return &AMQPScheduler{Channel: ch, Revoked: revoked, Log: log}, nil
}

var _ Scheduler = (*AMQPScheduler)(nil)

func (s *AMQPScheduler) Submit(ctx context.Context, sub Submission) (string, error) {
	handle := sub.Handle
	if handle == "" {
		handle = uuid.NewString()
	} else if err := s.Revoked.Remove(ctx, handle); err != nil {
		// A resubmission under an existing handle is a fresh attempt; an
		// earlier edit may have revoked the handle, and without clearing it
		// the executor would discard the retry.
		return "", fmt.Errorf("clear revocation: %w", err)
	}

	task := Task{
		TaskHandle: handle,
		RunAt:      sub.RunAt,
		ExpireAt:   sub.ExpireAt,
		Payload:    sub.Payload,
	}
	body, err := json.Marshal(task)
	if err != nil {
		return "", err
	}

	err = s.Channel.Publish(
		"", TaskQueue, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return "", fmt.Errorf("publish task: %w", err)
	}

	s.Log.Debug().
		Str("task_handle", handle).
		Time("run_at", sub.RunAt).
		Time("expire_at", sub.ExpireAt).
		Int("delivery_id", sub.Payload.DeliveryID).
		Msg("task submitted")
	return handle, nil
}

func (s *AMQPScheduler) Revoke(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	if err := s.Revoked.Add(ctx, handle); err != nil {
		// Best-effort: a lost revoke means the task runs and its result
		// settles the delivery instead.
		s.Log.Warn().Err(err).Str("task_handle", handle).Msg("revoke failed")
		return err
	}
	return nil
}

// PublishResult sends a completion event back to the reconciler's queue.
func PublishResult(ch *amqp.Channel, res Result) error {
	body, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return ch.Publish(
		"", ResultQueue, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// ConsumeResults delivers each completion event to handler. A handler error
// requeues the event once; malformed events are dropped. Blocks until the
// channel is closed.
func ConsumeResults(ch *amqp.Channel, log zerolog.Logger, handler func(Result) error) error {
	q, err := declareQueue(ch, ResultQueue)
	if err != nil {
		return err
	}
	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", ResultQueue, err)
	}

	for d := range msgs {
		var res Result
		if err := json.Unmarshal(d.Body, &res); err != nil {
			log.Error().Err(err).Msg("malformed completion event")
			d.Ack(false)
			continue
		}
		if err := handler(res); err != nil {
			log.Error().Err(err).Str("task_handle", res.TaskHandle).Msg("completion event failed")
			d.Nack(false, !d.Redelivered)
			continue
		}
		d.Ack(false)
	}
	return nil
}

// DeclareQueues sets up both queues on the channel. The worker calls this
// before consuming so either side can start first.
func DeclareQueues(ch *amqp.Channel) error {
	for _, name := range []string{TaskQueue, ResultQueue} {
		if _, err := declareQueue(ch, name); err != nil {
			return err
		}
	}
	return nil
}

func declareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return q, fmt.Errorf("declare queue %s: %w", name, err)
	}
	return q, nil
}
