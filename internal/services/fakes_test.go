package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"

	"webpush-service/internal/logging"
	"webpush-service/internal/models"
)

type fakeStore struct {
	mu            sync.Mutex
	rowLock       sync.Mutex
	notifications map[string]models.Notification
	approvals     map[string]models.ApprovalProcess
	subs          []models.Subscription
	creds         map[string]models.UserCredentials
	apiTokens     map[string]models.APIToken

	failCreateApproval error
	failDeleteSubs     error
	deletedSubs        []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		notifications: map[string]models.Notification{},
		approvals:     map[string]models.ApprovalProcess{},
		creds:         map[string]models.UserCredentials{},
		apiTokens:     map[string]models.APIToken{},
	}
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	notifications := make(map[string]models.Notification, len(f.notifications))
	for k, v := range f.notifications {
		notifications[k] = v
	}
	approvals := make(map[string]models.ApprovalProcess, len(f.approvals))
	for k, v := range f.approvals {
		approvals[k] = v
	}
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.notifications, f.approvals = notifications, approvals
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeStore) CreateNotification(_ context.Context, n models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications[n.ID] = n
	return nil
}

func (f *fakeStore) GetNotificationByID(_ context.Context, id string) (models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok {
		return models.Notification{}, models.ErrNotFound
	}
	return n, nil
}

func (f *fakeStore) ListNotificationsByUser(_ context.Context, userID string, page, pageSize int) (models.NotificationPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []models.Notification
	for _, n := range f.notifications {
		if n.UserID == userID {
			all = append(all, n)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(all) {
		start = len(all)
	}
	if end > len(all) {
		end = len(all)
	}
	return models.NotificationPage{
		Notifications: all[start:end],
		TotalCount:    len(all),
		TotalPages:    (len(all) + pageSize - 1) / pageSize,
	}, nil
}

func (f *fakeStore) DeleteNotification(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok || n.UserID != userID {
		return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	}
	delete(f.notifications, id)
	for aid, a := range f.approvals {
		if a.NotificationID == id {
			delete(f.approvals, aid)
		}
	}
	return nil
}

func (f *fakeStore) CreateApproval(_ context.Context, a models.ApprovalProcess) error {
	if f.failCreateApproval != nil {
		return f.failCreateApproval
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approvals[a.ID] = a
	return nil
}

func (f *fakeStore) GetApprovalByID(_ context.Context, id string) (models.ApprovalProcess, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.approvals[id]
	if !ok {
		return models.ApprovalProcess{}, fmt.Errorf("approval %s: %w", id, models.ErrNotFound)
	}
	return a, nil
}

// TransitionApproval mirrors the conditional UPDATE: rowLock plays the row lock
// held until commit or rollback.
func (f *fakeStore) TransitionApproval(ctx context.Context, id string, to models.ApprovalState,
	fn func(ctx context.Context, updated models.ApprovalProcess) error) (models.ApprovalProcess, error) {
	f.rowLock.Lock()
	defer f.rowLock.Unlock()

	a, err := f.GetApprovalByID(ctx, id)
	if err != nil {
		return models.ApprovalProcess{}, err
	}
	if a.State != models.ApprovalPending {
		return models.ApprovalProcess{}, models.NewError(models.ErrStateConflict, "Cannot update a non-pending approval process")
	}
	a.State = to
	a.UpdatedAt = time.Now()
	if err := fn(ctx, a); err != nil {
		return models.ApprovalProcess{}, err
	}
	f.mu.Lock()
	f.approvals[id] = a
	f.mu.Unlock()
	return a, nil
}

func (f *fakeStore) UpsertSubscription(_ context.Context, s models.Subscription) (models.Subscription, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.subs {
		if existing.UserID == s.UserID && existing.DeviceFingerprint == s.DeviceFingerprint {
			existing.Subscription = s.Subscription
			existing.UpdatedAt = s.UpdatedAt
			f.subs[i] = existing
			return existing, false, nil
		}
	}
	f.subs = append(f.subs, s)
	return s, true, nil
}

func (f *fakeStore) ListSubscriptionsByUser(_ context.Context, userID string) ([]models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Subscription
	for _, s := range f.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) GetSubscriptionByFingerprint(_ context.Context, userID, fingerprint string) (models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.UserID == userID && s.DeviceFingerprint == fingerprint {
			return s, nil
		}
	}
	return models.Subscription{}, models.ErrNotFound
}

func (f *fakeStore) DeleteSubscriptions(_ context.Context, ids []string) error {
	if f.failDeleteSubs != nil {
		return f.failDeleteSubs
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	kept := f.subs[:0]
	for _, s := range f.subs {
		if !drop[s.ID] {
			kept = append(kept, s)
		}
	}
	f.subs = kept
	f.deletedSubs = append(f.deletedSubs, ids...)
	return nil
}

func (f *fakeStore) DeleteSubscriptionByFingerprint(_ context.Context, userID, fingerprint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subs {
		if s.UserID == userID && s.DeviceFingerprint == fingerprint {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			return nil
		}
	}
	return models.ErrNotFound
}

func (f *fakeStore) CreateCredentials(_ context.Context, c models.UserCredentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.creds[c.UserID]; ok {
		return errors.New("duplicate key value violates unique constraint")
	}
	f.creds[c.UserID] = c
	return nil
}

func (f *fakeStore) GetCredentialsByUser(_ context.Context, userID string) (models.UserCredentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[userID]
	if !ok {
		return models.UserCredentials{}, models.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) GetCredentialsByPushToken(_ context.Context, token string) (models.UserCredentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.creds {
		if c.PushToken == token {
			return c, nil
		}
	}
	return models.UserCredentials{}, models.ErrNotFound
}

func (f *fakeStore) UpdatePushToken(_ context.Context, userID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[userID]
	if !ok {
		return models.ErrNotFound
	}
	c.PushToken = token
	f.creds[userID] = c
	return nil
}

func (f *fakeStore) UpdateKeys(_ context.Context, userID, publicKey, privateKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[userID]
	if !ok {
		return models.ErrNotFound
	}
	c.PublicKey, c.PrivateKey = publicKey, privateKey
	f.creds[userID] = c
	return nil
}

func (f *fakeStore) CreateAPIToken(_ context.Context, t models.APIToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiTokens[t.ID] = t
	return nil
}

func (f *fakeStore) GetAPITokenByHash(_ context.Context, hash string) (models.APIToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.apiTokens {
		if t.TokenHash == hash {
			return t, nil
		}
	}
	return models.APIToken{}, models.ErrNotFound
}

func (f *fakeStore) ListAPITokensByUser(_ context.Context, userID string, page, pageSize int) (models.APITokenPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := []models.APIToken{}
	for _, t := range f.apiTokens {
		if t.UserID == userID {
			all = append(all, t)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	start := min((page-1)*pageSize, len(all))
	end := min(start+pageSize, len(all))
	return models.APITokenPage{
		Tokens: all[start:end],
		Pagination: models.Pagination{
			CurrentPage: page,
			PageSize:    pageSize,
			TotalPages:  (len(all) + pageSize - 1) / pageSize,
			TotalCount:  len(all),
		},
	}, nil
}

func (f *fakeStore) DeleteAPIToken(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.apiTokens[id]
	if !ok || t.UserID != userID {
		return fmt.Errorf("api token %s: %w", id, models.ErrNotFound)
	}
	delete(f.apiTokens, id)
	return nil
}

func (f *fakeStore) addSubscription(id, userID, fingerprint, endpoint string) {
	raw, _ := json.Marshal(map[string]any{"endpoint": endpoint, "keys": map[string]string{}})
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, models.Subscription{
		ID: id, UserID: userID, DeviceFingerprint: fingerprint, Subscription: raw,
	})
}

func (f *fakeStore) subscriptionIDs(userID string) []string {
	subs, _ := f.ListSubscriptionsByUser(context.Background(), userID)
	ids := make([]string, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.ID)
	}
	return ids
}

type fakeTokens struct {
	mu        sync.Mutex
	tokens    map[string]string
	ttls      map[string]time.Duration
	failSet   error
	failDel   error
	deletions int
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{tokens: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeTokens) Set(_ context.Context, approvalID, token string, ttl time.Duration) error {
	if f.failSet != nil {
		return f.failSet
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[approvalID] = token
	f.ttls[approvalID] = ttl
	return nil
}

func (f *fakeTokens) Get(_ context.Context, approvalID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[approvalID]
	return t, ok, nil
}

func (f *fakeTokens) Delete(_ context.Context, approvalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletions++
	if f.failDel != nil {
		return f.failDel
	}
	delete(f.tokens, approvalID)
	return nil
}

type pushCall struct {
	SubscriptionID string
	Payload        []byte
	Topic          string
}

type fakePusher struct {
	mu    sync.Mutex
	errs  map[string]error
	calls []pushCall
}

func newFakePusher() *fakePusher {
	return &fakePusher{errs: map[string]error{}}
}

func (f *fakePusher) Send(_ context.Context, sub models.Subscription, _ models.UserCredentials, payload []byte, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pushCall{SubscriptionID: sub.ID, Payload: append([]byte(nil), payload...), Topic: topic})
	return f.errs[sub.ID]
}

func (f *fakePusher) called() []pushCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pushCall(nil), f.calls...)
}

type webhookCall struct {
	URL     string
	Payload models.WebhookPayload
}

type fakeWebhook struct {
	mu    sync.Mutex
	err   error
	delay time.Duration
	calls []webhookCall
}

func (f *fakeWebhook) Send(_ context.Context, url string, payload any) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, webhookCall{URL: url, Payload: payload.(models.WebhookPayload)})
	return f.err
}

func (f *fakeWebhook) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeWebhook) called() []webhookCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]webhookCall(nil), f.calls...)
}

type event struct {
	Name string
	Data string
}

type fakeChannel struct {
	mu      sync.Mutex
	events  []event
	failing bool
	closes  int
}

func (c *fakeChannel) WriteEvent(name string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("broken pipe")
	}
	c.events = append(c.events, event{Name: name, Data: string(data)})
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeChannel) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing = true
}

func (c *fakeChannel) named(name string) []event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event
	for _, e := range c.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeChannel) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// staticResolver resolves every host to the public documentation address.
type staticResolver struct{}

func (staticResolver) LookupNetIP(context.Context, string, string) ([]netip.Addr, error) {
	return []netip.Addr{netip.MustParseAddr("93.184.216.34")}, nil
}

func testLogger() *logging.Logger {
	return logging.NewNop()
}
