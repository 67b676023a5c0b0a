package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"webpush-service/internal/models"
)

const approvalColumns = `id, notification_id, webhook_url, user_id, state, created_at, updated_at`

func (d *DB) CreateApproval(ctx context.Context, a models.ApprovalProcess) error {
	_, err := d.conn(ctx).Exec(ctx, `
        INSERT INTO approval_processes (`+approvalColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.NotificationID, a.WebhookURL, a.UserID, string(a.State), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create approval process: %w", err)
	}
	return nil
}

func (d *DB) GetApprovalByID(ctx context.Context, id string) (models.ApprovalProcess, error) {
	a, err := scanApproval(d.conn(ctx).QueryRow(ctx,
		`SELECT `+approvalColumns+` FROM approval_processes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ApprovalProcess{}, fmt.Errorf("approval %s: %w", id, models.ErrNotFound)
		}
		return models.ApprovalProcess{}, fmt.Errorf("failed to get approval %s: %w", id, err)
	}
	return a, nil
}

// TransitionApproval moves a pending approval to state `to` and runs fn while
// the row is locked. The new state is committed only if fn returns nil; a
// concurrent caller blocks on the row lock and then sees a non-pending row.
func (d *DB) TransitionApproval(ctx context.Context, id string, to models.ApprovalState,
	fn func(ctx context.Context, updated models.ApprovalProcess) error) (models.ApprovalProcess, error) {
	var updated models.ApprovalProcess
	err := d.WithTx(ctx, func(ctx context.Context) error {
		a, err := scanApproval(d.conn(ctx).QueryRow(ctx, `
            UPDATE approval_processes
            SET state = $1, updated_at = $2
            WHERE id = $3 AND state = 'pending'
            RETURNING `+approvalColumns,
			string(to), time.Now(), id))
		if errors.Is(err, pgx.ErrNoRows) {
			return d.transitionMiss(ctx, id)
		}
		if err != nil {
			return fmt.Errorf("failed to transition approval %s: %w", id, err)
		}
		if err := fn(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return models.ApprovalProcess{}, err
	}
	return updated, nil
}

// transitionMiss explains why a conditional update matched no row.
func (d *DB) transitionMiss(ctx context.Context, id string) error {
	var state string
	err := d.conn(ctx).QueryRow(ctx, `SELECT state FROM approval_processes WHERE id = $1`, id).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("approval %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read approval %s: %w", id, err)
	}
	return models.NewError(models.ErrStateConflict, "Cannot update a non-pending approval process")
}

func scanApproval(row pgx.Row) (models.ApprovalProcess, error) {
	var a models.ApprovalProcess
	var state string
	if err := row.Scan(&a.ID, &a.NotificationID, &a.WebhookURL, &a.UserID, &state, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return models.ApprovalProcess{}, err
	}
	a.State = models.ApprovalState(state)
	return a, nil
}
