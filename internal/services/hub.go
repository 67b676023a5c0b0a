package services

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"webpush-service/internal/logging"
	"webpush-service/internal/metrics"
	"webpush-service/internal/models"
)

// Live event names.
const (
	EventConnected            = "connected"
	EventHeartbeat            = "heartbeat"
	EventNewNotification      = "newNotification"
	EventApprovalStateChanged = "approvalStateChanged"
)

// Channel is one live, one-way output stream to a device.
type Channel interface {
	WriteEvent(event string, data []byte) error
	Close() error
}

// Conn is a Channel registered in the Hub.
type Conn struct {
	UserID      string
	Fingerprint string

	ch     Channel
	mu     sync.Mutex
	closed bool
	once   sync.Once
	done   chan struct{}
}

// Done is closed once the connection has been removed from the Hub.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) write(event string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	return c.ch.WriteEvent(event, data)
}

// close runs at most once. It waits for an in-flight write to finish.
func (c *Conn) close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
		err = c.ch.Close()
	})
	return err
}

var errConnClosed = errors.New("connection closed")

// Hub is the process-local registry of live channels, keyed by user and device.
type Hub struct {
	mu         sync.Mutex
	conns      map[string]map[string]*Conn
	heartbeat  time.Duration
	maxPerUser int
	logger     *logging.Logger
}

// NewHub creates a Hub. maxPerUser <= 0 means no per-user limit.
func NewHub(heartbeat time.Duration, maxPerUser int, logger *logging.Logger) *Hub {
	return &Hub{
		conns:      make(map[string]map[string]*Conn),
		heartbeat:  heartbeat,
		maxPerUser: maxPerUser,
		logger:     logger,
	}
}

// Register opens ch for (userID, fingerprint). An existing channel for the same
// device is closed first. The caller must call Remove when the request ends.
func (h *Hub) Register(userID, fingerprint string, ch Channel) (*Conn, error) {
	c := &Conn{UserID: userID, Fingerprint: fingerprint, ch: ch, done: make(chan struct{})}

	h.mu.Lock()
	devices, ok := h.conns[userID]
	if !ok {
		devices = make(map[string]*Conn)
		h.conns[userID] = devices
	}
	old := devices[fingerprint]
	if old == nil && h.maxPerUser > 0 && len(devices) >= h.maxPerUser {
		if len(devices) == 0 {
			delete(h.conns, userID)
		}
		h.mu.Unlock()
		h.logger.Warnf("Max live connections reached for user %s", userID)
		return nil, models.NewError(models.ErrResourceExhausted, "Too many live connections")
	}
	devices[fingerprint] = c
	total := len(devices)
	h.mu.Unlock()

	if old != nil {
		h.logger.Infof("Superseding live connection for user %s device %s", userID, shortFingerprint(fingerprint))
		if err := old.close(); err != nil {
			h.logger.Warnf("Failed to close superseded connection: %v", err)
		}
	} else {
		metrics.LiveChannels.Inc()
	}
	h.logger.Infof("Added live connection for user %s (total: %d)", userID, total)

	if err := c.write(EventConnected, mustJSON("SSE connection established")); err != nil {
		h.logger.Warnf("Failed to send connected event to user %s: %v", userID, err)
		h.Remove(c)
		return c, nil
	}
	if h.heartbeat > 0 {
		go h.heartbeatLoop(c)
	}
	return c, nil
}

// Remove unregisters c and closes it. Safe to call any number of times from
// any trigger (abort, write failure, heartbeat failure, supersede).
func (h *Hub) Remove(c *Conn) {
	h.mu.Lock()
	removed := false
	if devices, ok := h.conns[c.UserID]; ok && devices[c.Fingerprint] == c {
		delete(devices, c.Fingerprint)
		removed = true
		if len(devices) == 0 {
			delete(h.conns, c.UserID)
		}
	}
	h.mu.Unlock()

	if removed {
		metrics.LiveChannels.Dec()
		h.logger.Infof("Removed live connection for user %s device %s", c.UserID, shortFingerprint(c.Fingerprint))
	}
	if err := c.close(); err != nil {
		h.logger.Warnf("Failed to close live connection: %v", err)
	}
}

// Send writes an event to every live channel of userID. A channel that fails
// the write is removed; the others are unaffected.
func (h *Hub) Send(userID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Errorf("Failed to encode %s event: %v", event, err)
		return
	}

	h.mu.Lock()
	targets := make([]*Conn, 0, len(h.conns[userID]))
	for _, c := range h.conns[userID] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.write(event, data); err != nil {
			h.logger.Warnf("Failed to send %s event to user %s: %v", event, userID, err)
			h.Remove(c)
		}
	}
}

// Count returns the number of live channels of userID.
func (h *Hub) Count(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID])
}

// Close removes every live channel.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Conn
	for _, devices := range h.conns {
		for _, c := range devices {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		h.Remove(c)
	}
}

func (h *Hub) heartbeatLoop(c *Conn) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			if err := c.write(EventHeartbeat, mustJSON(now.UTC().Format(time.RFC3339Nano))); err != nil {
				h.logger.Debugf("Heartbeat to user %s failed: %v", c.UserID, err)
				h.Remove(c)
				return
			}
		}
	}
}

func mustJSON(v string) []byte {
	data, _ := json.Marshal(v)
	return data
}

func shortFingerprint(fp string) string {
	if len(fp) > 8 {
		return fp[:8]
	}
	return fp
}
