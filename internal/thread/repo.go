package thread

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/threadline/pkg/models"
)

// Repository handles database operations for thread nodes and subjects.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new thread repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle so the service can open transactions that
// span the node insert and the notification fan-out.
func (r *Repository) DB() *sql.DB {
	return r.db
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// InsertNode inserts a new node within the given transaction and fills in its
// id and timestamps.
func (r *Repository) InsertNode(ctx context.Context, tx *sql.Tx, node *models.ThreadNode) error {
	query := `
		INSERT INTO thread_nodes (kind, subject_id, author_id, parent_id, text_body, position_marker)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := tx.QueryRowContext(
		ctx, query,
		node.Kind,
		node.SubjectID,
		node.AuthorID,
		node.ParentID,
		node.Text,
		node.PositionMarker,
	).Scan(&node.ID, &node.CreatedAt, &node.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert thread node: %w", err)
	}

	return nil
}

// GetNode fetches a single node by id. Returns ErrNotFound when absent.
func (r *Repository) GetNode(ctx context.Context, id int64) (*models.ThreadNode, error) {
	return r.getNode(ctx, r.db, id)
}

// GetNodeTx is GetNode inside an open transaction.
func (r *Repository) GetNodeTx(ctx context.Context, tx *sql.Tx, id int64) (*models.ThreadNode, error) {
	return r.getNode(ctx, tx, id)
}

func (r *Repository) getNode(ctx context.Context, q querier, id int64) (*models.ThreadNode, error) {
	query := `
		SELECT n.id, n.kind, n.subject_id, n.author_id, n.parent_id, n.text_body,
		       n.position_marker, n.created_at, n.updated_at, u.username
		FROM thread_nodes n
		JOIN users u ON u.id = n.author_id
		WHERE n.id = $1
	`

	node := &models.ThreadNode{}
	err := q.QueryRowContext(ctx, query, id).Scan(
		&node.ID,
		&node.Kind,
		&node.SubjectID,
		&node.AuthorID,
		&node.ParentID,
		&node.Text,
		&node.PositionMarker,
		&node.CreatedAt,
		&node.UpdatedAt,
		&node.AuthorName,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("node %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get thread node: %w", err)
	}

	return node, nil
}

// ListPage returns one flat page of nodes for a subject plus the total count.
// Ordering follows the tree display policy so clients merge pages in natural
// reading order: comments ascending by position marker then creation time,
// feedback descending by creation time.
func (r *Repository) ListPage(ctx context.Context, subjectID int64, page, perPage int) ([]*models.ThreadNode, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM thread_nodes WHERE subject_id = $1`, subjectID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count thread nodes: %w", err)
	}

	// Comments and feedback never share a subject, so a per-subject ordering
	// switch on the stored kind is safe.
	query := `
		SELECT n.id, n.kind, n.subject_id, n.author_id, n.parent_id, n.text_body,
		       n.position_marker, n.created_at, n.updated_at, u.username
		FROM thread_nodes n
		JOIN users u ON u.id = n.author_id
		WHERE n.subject_id = $1
		ORDER BY
			CASE WHEN n.kind = 'feedback' THEN n.created_at END DESC,
			n.position_marker ASC NULLS LAST,
			n.created_at ASC,
			n.id ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, subjectID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query thread nodes: %w", err)
	}
	defer rows.Close()

	// Initialize as empty slice so JSON encodes to [] rather than null
	nodes := make([]*models.ThreadNode, 0)
	for rows.Next() {
		node := &models.ThreadNode{}
		err := rows.Scan(
			&node.ID,
			&node.Kind,
			&node.SubjectID,
			&node.AuthorID,
			&node.ParentID,
			&node.Text,
			&node.PositionMarker,
			&node.CreatedAt,
			&node.UpdatedAt,
			&node.AuthorName,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan thread node: %w", err)
		}
		nodes = append(nodes, node)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating thread nodes: %w", err)
	}

	return nodes, total, nil
}

// UpdateNode changes the text of a node. Only the author may edit; the check
// happens here so the error taxonomy stays consistent for the handler.
func (r *Repository) UpdateNode(ctx context.Context, id, actorID int64, text string) (*models.ThreadNode, error) {
	node, err := r.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if node.AuthorID != actorID {
		return nil, fmt.Errorf("node %d belongs to another author: %w", id, models.ErrUnauthorized)
	}

	query := `
		UPDATE thread_nodes
		SET text_body = $1, updated_at = NOW()
		WHERE id = $2 AND author_id = $3
		RETURNING updated_at
	`
	err = r.db.QueryRowContext(ctx, query, text, id, actorID).Scan(&node.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("node %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update thread node: %w", err)
	}

	node.Text = text
	return node, nil
}

// DeleteNode removes a node. Only the author may delete. Children survive as
// orphans and are promoted to roots by the tree builder on the client.
func (r *Repository) DeleteNode(ctx context.Context, id, actorID int64) error {
	node, err := r.GetNode(ctx, id)
	if err != nil {
		return err
	}
	if node.AuthorID != actorID {
		return fmt.Errorf("node %d belongs to another author: %w", id, models.ErrUnauthorized)
	}

	_, err = r.db.ExecContext(ctx,
		`DELETE FROM thread_nodes WHERE id = $1 AND author_id = $2`, id, actorID)
	if err != nil {
		return fmt.Errorf("failed to delete thread node: %w", err)
	}

	return nil
}

// TopLevelAuthors returns the distinct author ids of all top-level nodes
// under a subject, ordered by each author's earliest post. The fan-out cap
// cuts from the end, so long-standing participants keep their notifications.
func (r *Repository) TopLevelAuthors(ctx context.Context, tx *sql.Tx, subjectID int64) ([]int64, error) {
	query := `
		SELECT author_id
		FROM thread_nodes
		WHERE subject_id = $1 AND parent_id IS NULL
		GROUP BY author_id
		ORDER BY MIN(created_at) ASC
	`

	var q querier = r.db
	if tx != nil {
		q = tx
	}

	rows, err := q.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query top-level authors: %w", err)
	}
	defer rows.Close()

	authors := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan author id: %w", err)
		}
		authors = append(authors, id)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top-level authors: %w", err)
	}

	return authors, nil
}

// GetSubject resolves a subject row. Returns ErrNotFound when absent; the
// fan-out path treats that as a skip signal, not a request failure.
func (r *Repository) GetSubject(ctx context.Context, id int64) (*models.Subject, error) {
	query := `
		SELECT id, kind, title, owner_id, created_at
		FROM subjects
		WHERE id = $1
	`

	subject := &models.Subject{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&subject.ID,
		&subject.Kind,
		&subject.Title,
		&subject.OwnerID,
		&subject.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("subject %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}

	return subject, nil
}
