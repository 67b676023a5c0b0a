package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"webpush-service/internal/config"
	"webpush-service/internal/logging"
	"webpush-service/internal/metrics"
	"webpush-service/internal/models"
	"webpush-service/internal/services"
)

// Publisher publishes a message on behalf of a push token holder.
type Publisher interface {
	Publish(ctx context.Context, pushToken, content string) (models.PublishResult, error)
}

// ApprovalResolver moves an approval to a terminal state.
type ApprovalResolver interface {
	Resolve(ctx context.Context, req services.ResolveRequest) (models.ApprovalProcess, error)
}

// AccountService manages what a signed-in user owns.
type AccountService interface {
	Credentials(ctx context.Context, userID string) (models.UserCredentials, error)
	ResetPushToken(ctx context.Context, userID string) (models.UserCredentials, error)
	RotateKeys(ctx context.Context, userID string) (models.UserCredentials, error)
	SaveSubscription(ctx context.Context, userID, fingerprint string, raw json.RawMessage) (models.Subscription, bool, error)
	RemoveSubscription(ctx context.Context, userID, fingerprint string) error
	VerifyDevice(ctx context.Context, userID, fingerprint string) error
	Notifications(ctx context.Context, userID string, page, pageSize int) (models.NotificationPage, error)
	DeleteNotification(ctx context.Context, userID, id string) error

	CreateAPIToken(ctx context.Context, userID, name string, expiresInDays int) (models.IssuedAPIToken, error)
	ListAPITokens(ctx context.Context, userID string, page, pageSize int) (models.APITokenPage, error)
	RevokeAPIToken(ctx context.Context, userID, id string) error
	APITokenAuthenticator
}

// Pinger is a dependency checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	publisher Publisher
	approvals ApprovalResolver
	accounts  AccountService
	hub       *services.Hub
	limiter   *keyedLimiter
	checks    map[string]Pinger
	logger    *logging.Logger
	config    config.Config
}

// NewHandler serves svc. checks are pinged by /health, keyed by name.
func NewHandler(svc *services.Service, checks map[string]Pinger, logger *logging.Logger, cfg config.Config) *Handler {
	return &Handler{
		publisher: svc.Publisher,
		approvals: svc.Approvals,
		accounts:  svc.Accounts,
		hub:       svc.Hub,
		limiter:   newKeyedLimiter(cfg.Push.RateLimit),
		checks:    checks,
		logger:    logger,
		config:    cfg,
	}
}

func (h *Handler) log(c *gin.Context) *logging.Logger {
	return h.logger.WithRequest(c.GetString(ctxRequestID))
}

// fail answers with the error's status and its client-safe message.
func (h *Handler) fail(c *gin.Context, err error) {
	status := models.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log(c).Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	} else {
		h.log(c).Debugf("%s %s rejected: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": models.PublicMessage(err)})
}

func sessionUser(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

type publishRequest struct {
	PushToken string `json:"pushToken"`
	Content   string `json:"content"`
}

// Publish handles POST /push. The push token comes from the body or, failing
// that, from a bearer header.
func (h *Handler) Publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(c).Debugf("Invalid publish body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input parameters"})
		return
	}
	if req.PushToken == "" {
		req.PushToken = bearerToken(c.Request)
	}
	if req.PushToken != "" && !h.limiter.Allow(req.PushToken) {
		metrics.PublishesThrottled.Inc()
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
		return
	}

	result, err := h.publisher.Publish(c.Request.Context(), req.PushToken, req.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !result.Succeeded() {
		c.JSON(http.StatusOK, gin.H{
			"success":        false,
			"error":          "Some push notifications failed to send",
			"notificationId": result.NotificationID,
			"failedPushes":   result.FailedPushes,
		})
		return
	}

	resp := gin.H{"success": true, "notificationId": result.NotificationID}
	if result.ApprovalID != "" {
		resp["approvalId"] = result.ApprovalID
	}
	c.JSON(http.StatusOK, resp)
}

type approvalRequest struct {
	ApprovalID string `json:"approvalId"`
	State      string `json:"state"`
}

// ResolveApproval handles POST /approval. It is authorized by the temporary
// approval token as a bearer, or by the owner's session.
func (h *Handler) ResolveApproval(c *gin.Context) {
	var req approvalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters or invalid state"})
		return
	}

	updated, err := h.approvals.Resolve(c.Request.Context(), services.ResolveRequest{
		ApprovalID:    req.ApprovalID,
		State:         models.ApprovalState(req.State),
		BearerToken:   bearerToken(c.Request),
		SessionUserID: sessionUser(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":         "Approval state updated and webhook called successfully",
		"updatedApproval": updated,
	})
}

type actionRequest struct {
	Action string `json:"action"`
}

func bindReset(c *gin.Context) bool {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Action != "reset" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
		return false
	}
	return true
}

// GetVAPIDKeys handles GET /vapid-keys, creating credentials on first use.
func (h *Handler) GetVAPIDKeys(c *gin.Context) {
	creds, err := h.accounts.Credentials(c.Request.Context(), sessionUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": creds.PublicKey, "pushToken": creds.PushToken})
}

// RotateVAPIDKeys handles POST /vapid-keys {"action":"reset"}.
func (h *Handler) RotateVAPIDKeys(c *gin.Context) {
	if !bindReset(c) {
		return
	}
	creds, err := h.accounts.RotateKeys(c.Request.Context(), sessionUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": creds.PublicKey, "pushToken": creds.PushToken})
}

func (h *Handler) GetPushToken(c *gin.Context) {
	creds, err := h.accounts.Credentials(c.Request.Context(), sessionUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pushToken": creds.PushToken})
}

// ResetPushToken handles POST /push-token {"action":"reset"}. Keys are kept.
func (h *Handler) ResetPushToken(c *gin.Context) {
	if !bindReset(c) {
		return
	}
	creds, err := h.accounts.ResetPushToken(c.Request.Context(), sessionUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pushToken": creds.PushToken})
}

type subscriptionRequest struct {
	Subscription      json.RawMessage `json:"subscription"`
	DeviceFingerprint string          `json:"deviceFingerprint"`
}

// SaveSubscription handles PUT /subscription. 201 when created, 200 when replaced.
func (h *Handler) SaveSubscription(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil || !isJSONObject(req.Subscription) || req.DeviceFingerprint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid subscription data or device fingerprint"})
		return
	}

	sub, created, err := h.accounts.SaveSubscription(c.Request.Context(), sessionUser(c), req.DeviceFingerprint, req.Subscription)
	if err != nil {
		h.fail(c, err)
		return
	}
	if created {
		c.JSON(http.StatusCreated, gin.H{"message": "Subscription created successfully", "createdAt": sub.CreatedAt})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Subscription updated successfully", "updatedAt": sub.UpdatedAt})
}

func isJSONObject(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	return len(raw) > 0 && json.Unmarshal(raw, &obj) == nil && obj != nil
}

type fingerprintRequest struct {
	DeviceFingerprint string `json:"deviceFingerprint"`
}

func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req fingerprintRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DeviceFingerprint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing device fingerprint"})
		return
	}
	if err := h.accounts.RemoveSubscription(c.Request.Context(), sessionUser(c), req.DeviceFingerprint); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Subscription deleted successfully"})
}

// ListNotifications handles GET /notifications?page=&pageSize=.
func (h *Handler) ListNotifications(c *gin.Context) {
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "pageSize", services.DefaultPageSize)

	result, err := h.accounts.Notifications(c.Request.Context(), sessionUser(c), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	if result.Notifications == nil {
		result.Notifications = []models.Notification{}
	}
	c.JSON(http.StatusOK, result)
}

// queryInt reads an integer query parameter. Garbage maps to 0, which the
// service rejects.
func queryInt(c *gin.Context, key string, def int) int {
	v, ok := c.GetQuery(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func (h *Handler) DeleteNotification(c *gin.Context) {
	id := c.Param("id")
	if err := h.accounts.DeleteNotification(c.Request.Context(), sessionUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted successfully"})
}

// Health pings every registered dependency.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.log(c).Warnf("Health check %s failed: %v", name, err)
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "dependencies": deps})
}
