package thread

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/threadline/internal/notification"
	"github.com/threadline/internal/ratelimit"
	"github.com/threadline/pkg/models"
)

// PublishQueue hands persisted notifications to the detached realtime
// publish path. Implemented by the job queue; must never be called before
// the creating transaction commits.
type PublishQueue interface {
	EnqueuePublish(ctx context.Context, notificationID int64) error
}

// Service orchestrates node creation: rate-limit gate, validation, the
// node+fan-out transaction, and the detached realtime hand-off.
type Service struct {
	repo    *Repository
	fanout  *notification.Fanout
	limiter ratelimit.Limiter
	queue   PublishQueue

	nodesPerMinute int
}

// NewService wires the creation pipeline. queue may be nil in tests; the
// publish hand-off is skipped then.
func NewService(repo *Repository, fanout *notification.Fanout, limiter ratelimit.Limiter, queue PublishQueue, nodesPerMinute int) *Service {
	return &Service{
		repo:           repo,
		fanout:         fanout,
		limiter:        limiter,
		queue:          queue,
		nodesPerMinute: nodesPerMinute,
	}
}

// CreateNodeRequest carries the client-supplied fields of a new node.
type CreateNodeRequest struct {
	Text           string   `json:"text"`
	ParentID       *int64   `json:"parent_id,omitempty"`
	PositionMarker *float64 `json:"position_marker,omitempty"`
}

// CreateNode validates and persists a new node, fans out notifications in
// the same transaction, and hands the created notifications to the publish
// queue after commit.
//
// The rate-limit gate runs before any write: a throttled request leaves no
// partial side effects. A missing subject row does not fail the creation —
// fan-out is skipped instead (see Fanout.OnNodeCreated) — but parent
// invariants are hard failures.
func (s *Service) CreateNode(ctx context.Context, subjectID int64, actor *models.User, req CreateNodeRequest) (*models.ThreadNode, error) {
	if s.limiter != nil && s.nodesPerMinute > 0 {
		d := s.limiter.Allow(strconv.FormatInt(actor.ID, 10), ratelimit.ActionNodeCreate, s.nodesPerMinute, time.Minute)
		if !d.Allowed {
			return nil, fmt.Errorf("retry after %s: %w", d.RetryAfter.Round(time.Second), models.ErrRateLimited)
		}
	}

	if strings.TrimSpace(req.Text) == "" {
		return nil, models.Validationf("text must not be empty")
	}

	// The subject decides the node flavor: media carries comments, scripts
	// carry feedback. An unresolvable subject falls back to the parent's
	// kind so orphaned threads keep accepting replies.
	var subject *models.Subject
	kind := models.NodeKindComment
	subject, err := s.repo.GetSubject(ctx, subjectID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		subject = nil
	} else if subject.Kind == models.SubjectKindScript {
		kind = models.NodeKindFeedback
	}

	var parent *models.ThreadNode
	if req.ParentID != nil {
		parent, err = s.repo.GetNode(ctx, *req.ParentID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, models.Validationf("parent node %d does not exist", *req.ParentID)
			}
			return nil, err
		}
		if parent.SubjectID != subjectID {
			return nil, models.Validationf("parent node %d belongs to a different subject", parent.ID)
		}
		if subject == nil {
			kind = parent.Kind
		}
		// Feedback threads cap nesting at two levels.
		if kind == models.NodeKindFeedback && parent.ParentID != nil {
			return nil, models.Validationf("feedback replies cannot nest beyond one level")
		}
	}

	node := &models.ThreadNode{
		Kind:           kind,
		SubjectID:      subjectID,
		AuthorID:       actor.ID,
		ParentID:       req.ParentID,
		Text:           req.Text,
		PositionMarker: req.PositionMarker,
		AuthorName:     actor.Username,
	}

	tx, err := s.repo.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.repo.InsertNode(ctx, tx, node); err != nil {
		return nil, err
	}

	notifications, err := s.fanout.OnNodeCreated(ctx, tx, node, parent, actor, subject)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit node creation: %w", err)
	}

	// Realtime publish is detached from the request outcome: the node and
	// notifications are durable at this point, and a dead queue must not
	// fail the response.
	if s.queue != nil {
		for _, n := range notifications {
			if err := s.queue.EnqueuePublish(ctx, n.ID); err != nil {
				log.Warn().Err(err).
					Int64("notification_id", n.ID).
					Msg("failed to enqueue realtime publish")
			}
		}
	}

	return node, nil
}

// ListPage returns one flat page of the subject's nodes plus the total count.
func (s *Service) ListPage(ctx context.Context, subjectID int64, page, perPage int) ([]*models.ThreadNode, int, error) {
	return s.repo.ListPage(ctx, subjectID, page, perPage)
}

// UpdateNode edits a node's text, author-only.
func (s *Service) UpdateNode(ctx context.Context, id int64, actor *models.User, text string) (*models.ThreadNode, error) {
	if strings.TrimSpace(text) == "" {
		return nil, models.Validationf("text must not be empty")
	}
	return s.repo.UpdateNode(ctx, id, actor.ID, text)
}

// DeleteNode removes a node, author-only.
func (s *Service) DeleteNode(ctx context.Context, id int64, actor *models.User) error {
	return s.repo.DeleteNode(ctx, id, actor.ID)
}
