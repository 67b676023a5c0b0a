package services

import (
	"context"
	"errors"
	"sync"

	"webpush-service/internal/logging"
	"webpush-service/internal/metrics"
	"webpush-service/internal/models"
	"webpush-service/internal/providers"
)

const defaultFanoutConcurrency = 8

// Fanout sends one message to every subscription of a user.
type Fanout struct {
	store       Store
	pusher      Pusher
	logger      *logging.Logger
	concurrency int
}

func NewFanout(store Store, pusher Pusher, logger *logging.Logger) *Fanout {
	return &Fanout{store: store, pusher: pusher, logger: logger, concurrency: defaultFanoutConcurrency}
}

// Deliver pushes payload to all of creds.UserID's subscriptions. A failing
// subscription never stops the others; failures come back in subscription
// order. Subscriptions the push service reports gone are deleted afterwards.
func (f *Fanout) Deliver(ctx context.Context, creds models.UserCredentials, payload []byte, topic string) ([]models.FailedPush, error) {
	if len(payload) > models.MaxMessageSize {
		return nil, models.NewError(models.ErrResourceExhausted, "Message size exceeds 4KB limit")
	}

	subs, err := f.store.ListSubscriptionsByUser(ctx, creds.UserID)
	if err != nil {
		return nil, models.WrapError(models.ErrUpstream, "Failed to load subscriptions", err)
	}
	if len(subs) == 0 {
		return nil, nil
	}

	errs := make([]error, len(subs))
	sem := make(chan struct{}, f.concurrency)
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, sub models.Subscription) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = f.pusher.Send(ctx, sub, creds, payload, topic)
		}(i, sub)
	}
	wg.Wait()

	var failed []models.FailedPush
	var gone []string
	for i, err := range errs {
		if err == nil {
			metrics.PushesSent.WithLabelValues("ok").Inc()
			continue
		}
		f.logger.Errorf("Failed to send push notification to subscription %s: %v", subs[i].ID, err)
		failed = append(failed, models.FailedPush{SubscriptionID: subs[i].ID, Reason: err.Error()})

		var pushErr *providers.PushError
		if errors.As(err, &pushErr) && pushErr.Gone() {
			gone = append(gone, subs[i].ID)
			metrics.PushesSent.WithLabelValues("gone").Inc()
			continue
		}
		metrics.PushesSent.WithLabelValues("failed").Inc()
	}

	if len(gone) > 0 {
		if err := f.store.DeleteSubscriptions(ctx, gone); err != nil {
			f.logger.Errorf("Failed to remove expired subscriptions %v: %v", gone, err)
		} else {
			metrics.SubscriptionsPruned.Add(float64(len(gone)))
			f.logger.Infof("Removed expired subscriptions: %v", gone)
		}
	}
	return failed, nil
}
