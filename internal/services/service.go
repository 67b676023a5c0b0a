package services

import (
	"context"
	"sync"
	"time"

	"webpush-service/internal/config"
	"webpush-service/internal/logging"
	"webpush-service/internal/metrics"
	"webpush-service/internal/models"
)

const taskTimeout = 60 * time.Second

// Service wires the notification components together and runs the worker
// pool that publishes queued Tasks.
type Service struct {
	Hub       *Hub
	Publisher *Publisher
	Approvals *Approvals
	Accounts  *Accounts

	logger *logging.Logger
	config config.Config
	tasks  chan models.Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

// New constructs a Service
func New(store Store, tokens TokenStore, pusher Pusher, webhook WebhookSender, logger *logging.Logger, cfg config.Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	opts := Options{
		TokenTTL:           cfg.Push.ApprovalTokenTTL,
		AllowLocalWebhooks: cfg.Webhook.AllowLocal,
	}
	hub := NewHub(cfg.Stream.HeartbeatInterval, cfg.Stream.MaxConnsPerUser, logger)
	fanout := NewFanout(store, pusher, logger)

	return &Service{
		Hub:       hub,
		Publisher: NewPublisher(store, tokens, fanout, hub, opts, logger),
		Approvals: NewApprovals(store, tokens, webhook, hub, opts, logger),
		Accounts:  NewAccounts(store, logger),
		logger:    logger,
		config:    cfg,
		tasks:     make(chan models.Task, cfg.Notification.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Logger exposes the Service's logger
func (s *Service) Logger() *logging.Logger {
	return s.logger
}

// Start launches the worker pool
func (s *Service) Start(wg *sync.WaitGroup) {
	s.wg = wg
	for i := 0; i < s.config.Notification.MaxWorkers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop stops the workers and closes every live channel.
func (s *Service) Stop() {
	s.cancel()
	s.Hub.Close()
}

// QueueTask enqueues a Task for processing. It reports false when the queue is full.
func (s *Service) QueueTask(task models.Task) bool {
	select {
	case s.tasks <- task:
		s.logger.Infof("Queued task: request_id=%s", task.RequestID)
		return true
	default:
		metrics.TasksRejected.Inc()
		s.logger.Debugf("Queue full, rejected task: request_id=%s", task.RequestID)
		return false
	}
}

// worker processes Tasks until context is cancelled
func (s *Service) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Infof("Worker %d stopped", id)
			return
		case task := <-s.tasks:
			s.handleTask(task)
		}
	}
}

// handleTask publishes a queued message the same way the HTTP route does.
func (s *Service) handleTask(task models.Task) {
	log := s.logger.WithRequest(task.RequestID)
	ctx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	result, err := s.Publisher.Publish(ctx, task.PushToken, task.Content)
	if err != nil {
		log.Errorf("Publish failed: %v", err)
		return
	}
	if !result.Succeeded() {
		log.Warnf("Notification %s published with %d failed pushes", result.NotificationID, len(result.FailedPushes))
		return
	}
	log.Infof("Notification %s published (queued %s ago)", result.NotificationID, time.Since(task.ReceivedAt).Round(time.Millisecond))
}
