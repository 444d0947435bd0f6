package notification

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/threadline/pkg/models"
)

// Repository handles database operations for notifications, including the
// read-state tracking used by the unread counter.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new notification repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertTx inserts one notification inside the node-creation transaction.
//
// The unique index on (recipient_id, node_id) makes fan-out idempotent: a
// retried fan-out for the same node never double-inserts. The index is
// partial, so the conflict target must repeat its predicate for Postgres to
// accept it as the arbiter. Returns false when the row already existed.
func (r *Repository) InsertTx(ctx context.Context, tx *sql.Tx, n *models.Notification) (bool, error) {
	query := `
		INSERT INTO notifications (recipient_id, triggered_by_id, subject_id, node_id, kind, message)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (recipient_id, node_id) WHERE node_id IS NOT NULL DO NOTHING
		RETURNING id, created_at
	`

	err := tx.QueryRowContext(
		ctx, query,
		n.RecipientID,
		n.TriggeredByID,
		n.SubjectID,
		n.NodeID,
		n.Kind,
		n.Message,
	).Scan(&n.ID, &n.CreatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			// Conflict: this (recipient, node) pair was already fanned out.
			return false, nil
		}
		return false, fmt.Errorf("failed to insert notification: %w", err)
	}

	return true, nil
}

// List returns one page of a recipient's notifications, newest first, with
// denormalized actor and subject display fields.
func (r *Repository) List(ctx context.Context, recipientID int64, page, perPage int) ([]*models.Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1`, recipientID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := `
		SELECT n.id, n.recipient_id, n.triggered_by_id, n.subject_id, n.node_id,
		       n.kind, n.message, n.is_read, n.created_at,
		       u.username, COALESCE(s.title, '')
		FROM notifications n
		JOIN users u ON u.id = n.triggered_by_id
		LEFT JOIN subjects s ON s.id = n.subject_id
		WHERE n.recipient_id = $1
		ORDER BY n.created_at DESC, n.id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, recipientID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	// Initialize as empty slice so JSON encodes to [] rather than null
	items := make([]*models.Notification, 0)
	for rows.Next() {
		n := &models.Notification{}
		err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.TriggeredByID,
			&n.SubjectID,
			&n.NodeID,
			&n.Kind,
			&n.Message,
			&n.IsRead,
			&n.CreatedAt,
			&n.TriggeredByName,
			&n.SubjectTitle,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		items = append(items, n)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating notifications: %w", err)
	}

	return items, total, nil
}

// UnreadCount returns the number of unread notifications for a recipient.
// This is a straight count so it can never drift from the is_read flags the
// list endpoint returns.
func (r *Repository) UnreadCount(ctx context.Context, recipientID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = FALSE`,
		recipientID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead idempotently sets is_read for a notification. Marking an
// already-read notification again is a no-op success. Acting on another
// recipient's notification fails with ErrUnauthorized; read is terminal and
// there is no transition back to unread.
func (r *Repository) MarkRead(ctx context.Context, id, actorID int64) error {
	var recipientID int64
	var isRead bool
	err := r.db.QueryRowContext(ctx,
		`SELECT recipient_id, is_read FROM notifications WHERE id = $1`, id,
	).Scan(&recipientID, &isRead)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("notification %d: %w", id, models.ErrNotFound)
		}
		return fmt.Errorf("failed to get notification: %w", err)
	}

	if recipientID != actorID {
		return fmt.Errorf("notification %d belongs to another recipient: %w", id, models.ErrUnauthorized)
	}
	if isRead {
		return nil
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND recipient_id = $2`,
		id, actorID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	return nil
}

// PublishPayload loads everything the realtime channel needs for one
// notification: the record plus denormalized actor and subject display
// fields, so clients can render without a follow-up fetch.
func (r *Repository) PublishPayload(ctx context.Context, id int64) (*models.Notification, *models.User, *models.Subject, error) {
	query := `
		SELECT n.id, n.recipient_id, n.triggered_by_id, n.subject_id, n.node_id,
		       n.kind, n.message, n.is_read, n.created_at,
		       u.id, u.username,
		       COALESCE(s.id, 0), COALESCE(s.kind, 'media'), COALESCE(s.title, '')
		FROM notifications n
		JOIN users u ON u.id = n.triggered_by_id
		LEFT JOIN subjects s ON s.id = n.subject_id
		WHERE n.id = $1
	`

	n := &models.Notification{}
	actor := &models.User{}
	subject := &models.Subject{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&n.ID,
		&n.RecipientID,
		&n.TriggeredByID,
		&n.SubjectID,
		&n.NodeID,
		&n.Kind,
		&n.Message,
		&n.IsRead,
		&n.CreatedAt,
		&actor.ID,
		&actor.Username,
		&subject.ID,
		&subject.Kind,
		&subject.Title,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, nil, fmt.Errorf("notification %d: %w", id, models.ErrNotFound)
		}
		return nil, nil, nil, fmt.Errorf("failed to load publish payload: %w", err)
	}

	return n, actor, subject, nil
}
