package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"webpush-service/internal/logging"
	"webpush-service/internal/models"
)

type Config struct {
	Broker  string
	Topic   string
	GroupID string
}

// TaskQueue accepts publish tasks. *services.Service implements it.
type TaskQueue interface {
	QueueTask(task models.Task) bool
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads publish requests off a topic and queues them for the workers.
type Consumer struct {
	reader messageReader
	queue  TaskQueue
	logger *logging.Logger
}

func NewConsumer(cfg Config, queue TaskQueue, logger *logging.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           strings.Split(cfg.Broker, ","),
		GroupID:           cfg.GroupID,
		Topic:             cfg.Topic,
		StartOffset:       kafka.FirstOffset,
		MinBytes:          1,
		MaxBytes:          10e6,
		SessionTimeout:    10 * time.Second,
		HeartbeatInterval: 3 * time.Second,
	})
	return &Consumer{reader: r, queue: queue, logger: logger.With("component", "kafka")}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Info("Kafka consumer started")
		c.run(ctx)
		c.logger.Info("Kafka consumer stopped")
	}()
}

func (c *Consumer) run(ctx context.Context) {
	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, io.EOF) {
				c.logger.Warnf("Read message failed: %v", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = 200 * time.Millisecond

		task, err := decodeTask(msg.Value)
		if err != nil {
			c.logger.Errorf("Dropping message at partition %d offset %d: %v", msg.Partition, msg.Offset, err)
		} else {
			task.ReceivedAt = msg.Time
			if task.ReceivedAt.IsZero() {
				task.ReceivedAt = time.Now()
			}
			if !c.enqueue(ctx, task) {
				// Left uncommitted; redelivered after restart or rebalance.
				return
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warnf("Commit failed: %v", err)
		}
	}
}

// enqueue retries a full queue with backoff until it accepts the task.
// It returns false only when ctx ends first.
func (c *Consumer) enqueue(ctx context.Context, task models.Task) bool {
	backoff := 50 * time.Millisecond
	const maxBackoff = 2 * time.Second

	for attempt := 1; ; attempt++ {
		if c.queue.QueueTask(task) {
			return true
		}
		if attempt == 1 {
			c.logger.Warnf("Task queue full, holding request %s", task.RequestID)
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// decodeTask parses {"push_token": "...", "content": "...", "request_id": "..."}.
func decodeTask(value []byte) (models.Task, error) {
	var task models.Task
	if err := json.Unmarshal(value, &task); err != nil {
		return models.Task{}, fmt.Errorf("unmarshal message: %w", err)
	}
	if task.PushToken == "" || task.Content == "" {
		return models.Task{}, errors.New("invalid message: missing push_token or content")
	}
	if task.RequestID == "" {
		task.RequestID = uuid.NewString()
	}
	return task, nil
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Warnf("Close Kafka reader failed: %v", err)
	}
}
