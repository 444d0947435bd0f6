package notification

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/threadline/pkg/models"
)

// ParticipantSource provides the author set the subject-activity fan-out is
// computed from. Implemented by the thread repository.
type ParticipantSource interface {
	TopLevelAuthors(ctx context.Context, tx *sql.Tx, subjectID int64) ([]int64, error)
}

// inserter is the slice of Repository the fan-out needs.
type inserter interface {
	InsertTx(ctx context.Context, tx *sql.Tx, n *models.Notification) (bool, error)
}

// Fanout computes the recipient set for a newly created node and persists one
// notification per recipient inside the creating transaction.
type Fanout struct {
	notifications inserter
	participants  ParticipantSource

	// activityLimit caps subject_activity recipients per event; 0 means
	// unlimited. Reply notifications are never capped.
	activityLimit int
}

// NewFanout creates a fan-out engine.
func NewFanout(repo *Repository, participants ParticipantSource, activityLimit int) *Fanout {
	return &Fanout{
		notifications: repo,
		participants:  participants,
		activityLimit: activityLimit,
	}
}

// OnNodeCreated computes recipients and persists notifications for a new node.
//
// The rules, in order:
//  1. If the node is a reply and the parent author is not the actor, the
//     parent author gets exactly one `reply` notification.
//  2. Every other distinct author of a top-level node under the same subject
//     gets a `subject_activity` notification — excluding the actor (never
//     self-notify) and excluding the parent author already covered by (1).
//
// A nil subject means the caller could not resolve it. That is a
// data-integrity signal, not a user-facing failure: fan-out is skipped with
// a warning and the node creation succeeds.
func (f *Fanout) OnNodeCreated(ctx context.Context, tx *sql.Tx, node *models.ThreadNode, parent *models.ThreadNode, actor *models.User, subject *models.Subject) ([]*models.Notification, error) {
	if subject == nil {
		log.Warn().
			Int64("node_id", node.ID).
			Int64("subject_id", node.SubjectID).
			Msg("fan-out skipped: subject could not be resolved")
		return nil, nil
	}

	created := make([]*models.Notification, 0)
	notified := map[int64]bool{actor.ID: true}

	if parent != nil && parent.AuthorID != actor.ID {
		n := &models.Notification{
			RecipientID:   parent.AuthorID,
			TriggeredByID: actor.ID,
			SubjectID:     subject.ID,
			NodeID:        &node.ID,
			Kind:          models.NotificationReply,
			Message:       fmt.Sprintf("%s replied to your %s on %q", actor.Username, parent.Kind, subject.Title),
		}
		inserted, err := f.notifications.InsertTx(ctx, tx, n)
		if err != nil {
			return nil, err
		}
		if inserted {
			created = append(created, n)
		}
		notified[parent.AuthorID] = true
	}

	authors, err := f.participants.TopLevelAuthors(ctx, tx, node.SubjectID)
	if err != nil {
		return nil, err
	}

	activityCount := 0
	for _, authorID := range authors {
		if notified[authorID] {
			continue
		}
		if f.activityLimit > 0 && activityCount >= f.activityLimit {
			log.Warn().
				Int64("node_id", node.ID).
				Int64("subject_id", node.SubjectID).
				Int("limit", f.activityLimit).
				Msg("subject_activity fan-out capped")
			break
		}
		n := &models.Notification{
			RecipientID:   authorID,
			TriggeredByID: actor.ID,
			SubjectID:     subject.ID,
			NodeID:        &node.ID,
			Kind:          models.NotificationSubjectActivity,
			Message:       fmt.Sprintf("%s posted a new %s on %q", actor.Username, node.Kind, subject.Title),
		}
		inserted, err := f.notifications.InsertTx(ctx, tx, n)
		if err != nil {
			return nil, err
		}
		if inserted {
			created = append(created, n)
			activityCount++
		}
		notified[authorID] = true
	}

	return created, nil
}
