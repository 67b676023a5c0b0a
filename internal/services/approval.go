package services

import (
	"context"
	"crypto/subtle"
	"errors"

	"webpush-service/internal/logging"
	"webpush-service/internal/metrics"
	"webpush-service/internal/models"
	"webpush-service/internal/utils"
)

// ResolveRequest asks to move an approval to a terminal state. At least one of
// BearerToken and SessionUserID must authorize it.
type ResolveRequest struct {
	ApprovalID    string
	State         models.ApprovalState
	BearerToken   string
	SessionUserID string
}

// Approvals runs the pending -> approved|rejected state machine.
type Approvals struct {
	store              Store
	tokens             TokenStore
	webhook            WebhookSender
	hub                *Hub
	resolver           utils.Resolver
	allowLocalWebhooks bool
	logger             *logging.Logger
}

func NewApprovals(store Store, tokens TokenStore, webhook WebhookSender, hub *Hub, opts Options, logger *logging.Logger) *Approvals {
	return &Approvals{
		store:              store,
		tokens:             tokens,
		webhook:            webhook,
		hub:                hub,
		resolver:           opts.Resolver,
		allowLocalWebhooks: opts.AllowLocalWebhooks,
		logger:             logger,
	}
}

// Resolve authorizes req, then atomically leaves pending and calls the webhook.
// The new state is kept only if the webhook accepted it; a second resolver
// gets a state conflict and never reaches the webhook.
func (a *Approvals) Resolve(ctx context.Context, req ResolveRequest) (models.ApprovalProcess, error) {
	if req.ApprovalID == "" || !req.State.IsDecision() {
		return models.ApprovalProcess{}, models.NewError(models.ErrValidation, "Missing required parameters or invalid state")
	}

	viaToken, err := a.authorize(ctx, req)
	if err != nil {
		metrics.ApprovalResolutions.WithLabelValues("unauthorized").Inc()
		return models.ApprovalProcess{}, err
	}

	log := a.logger.With("approval_id", req.ApprovalID)
	updated, err := a.store.TransitionApproval(ctx, req.ApprovalID, req.State,
		func(ctx context.Context, updated models.ApprovalProcess) error {
			return a.callWebhook(ctx, updated)
		})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrStateConflict):
			metrics.ApprovalResolutions.WithLabelValues("conflict").Inc()
		case errors.Is(err, models.ErrNotFound):
			metrics.ApprovalResolutions.WithLabelValues("not_found").Inc()
			return models.ApprovalProcess{}, models.NewError(models.ErrNotFound, "Approval process not found")
		default:
			metrics.ApprovalResolutions.WithLabelValues("failed").Inc()
			log.Errorf("Failed to resolve approval: %v", err)
		}
		return models.ApprovalProcess{}, err
	}
	metrics.ApprovalResolutions.WithLabelValues(string(updated.State)).Inc()
	log.Infof("Approval resolved as %s", updated.State)

	if req.SessionUserID != "" && !viaToken {
		a.hub.Send(req.SessionUserID, EventApprovalStateChanged, models.WebhookPayload{
			NotificationID: updated.NotificationID,
			ApprovalID:     updated.ID,
			State:          updated.State,
		})
	}
	if viaToken {
		if err := a.tokens.Delete(ctx, req.ApprovalID); err != nil {
			log.Warnf("Failed to revoke approval token, leaving it to expire: %v", err)
		}
	}
	return updated, nil
}

// authorize checks the token path first, then the session path.
func (a *Approvals) authorize(ctx context.Context, req ResolveRequest) (viaToken bool, err error) {
	if req.BearerToken != "" {
		stored, found, err := a.tokens.Get(ctx, req.ApprovalID)
		if err != nil {
			a.logger.Warnf("Failed to read approval token for %s: %v", req.ApprovalID, err)
		} else if found && subtle.ConstantTimeCompare([]byte(stored), []byte(req.BearerToken)) == 1 {
			return true, nil
		}
	}

	if req.SessionUserID == "" {
		return false, models.NewError(models.ErrAuth, "Unauthorized")
	}
	approval, err := a.store.GetApprovalByID(ctx, req.ApprovalID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, models.NewError(models.ErrNotFound, "Approval process not found")
		}
		return false, err
	}
	if approval.UserID != req.SessionUserID {
		return false, models.NewError(models.ErrAuth, "Not authorized for this approval process")
	}
	return false, nil
}

func (a *Approvals) callWebhook(ctx context.Context, updated models.ApprovalProcess) error {
	if !a.allowLocalWebhooks {
		local, err := utils.IsLocalNetworkURL(ctx, a.resolver, updated.WebhookURL)
		if err != nil {
			return models.WrapError(models.ErrUpstream, "Webhook call failed", err)
		}
		if local {
			return models.NewError(models.ErrUpstream, "Webhook call failed: local network address")
		}
	}
	payload := models.WebhookPayload{
		NotificationID: updated.NotificationID,
		ApprovalID:     updated.ID,
		State:          updated.State,
	}
	if err := a.webhook.Send(ctx, updated.WebhookURL, payload); err != nil {
		return models.WrapError(models.ErrUpstream, "Webhook call failed", err)
	}
	return nil
}
