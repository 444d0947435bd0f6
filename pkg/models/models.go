package models

import (
	"time"
)

// NodeKind distinguishes the two thread flavors: comments attached to media
// items and feedback attached to script entries. They share storage but not
// ordering or nesting rules.
type NodeKind string

const (
	NodeKindComment  NodeKind = "comment"
	NodeKindFeedback NodeKind = "feedback"
)

// NotificationKind is the reason a notification was emitted.
type NotificationKind string

const (
	// NotificationReply targets the author of the parent node.
	NotificationReply NotificationKind = "reply"
	// NotificationSubjectActivity targets other top-level participants on
	// the same subject.
	NotificationSubjectActivity NotificationKind = "subject_activity"
)

// SubjectKind identifies what a thread is attached to.
type SubjectKind string

const (
	SubjectKindMedia  SubjectKind = "media"
	SubjectKindScript SubjectKind = "script"
)

// User represents an account that can author nodes and receive notifications.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // Never expose password hash in JSON
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Subject is the media item or script entry a thread hangs off of. Subjects
// are owned by an external CRUD module; we only read them for validation and
// denormalized display titles.
type Subject struct {
	ID        int64       `json:"id" db:"id"`
	Kind      SubjectKind `json:"kind" db:"kind"`
	Title     string      `json:"title" db:"title"`
	OwnerID   int64       `json:"owner_id" db:"owner_id"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// ThreadNode is a single comment or feedback entry.
//
// ParentID is nil for top-level nodes. PositionMarker carries the playback
// offset for media comments and is nil for feedback and general comments.
type ThreadNode struct {
	ID             int64     `json:"id" db:"id"`
	Kind           NodeKind  `json:"kind" db:"kind"`
	SubjectID      int64     `json:"subject_id" db:"subject_id"`
	AuthorID       int64     `json:"author_id" db:"author_id"`
	ParentID       *int64    `json:"parent_id,omitempty" db:"parent_id"`
	Text           string    `json:"text" db:"text_body"`
	PositionMarker *float64  `json:"position_marker,omitempty" db:"position_marker"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`

	// Denormalized for responses; not stored on the row.
	AuthorName string `json:"author_name,omitempty" db:"-"`
}

// IsTopLevel reports whether the node is a forest root candidate.
func (n *ThreadNode) IsTopLevel() bool {
	return n.ParentID == nil
}

// Notification is one fan-out record for one recipient.
//
// Invariant: RecipientID != TriggeredByID, and at most one notification
// exists per (recipient, node) pair.
type Notification struct {
	ID            int64            `json:"id" db:"id"`
	RecipientID   int64            `json:"recipient_id" db:"recipient_id"`
	TriggeredByID int64            `json:"triggered_by_id" db:"triggered_by_id"`
	SubjectID     int64            `json:"subject_id" db:"subject_id"`
	NodeID        *int64           `json:"node_id,omitempty" db:"node_id"`
	Kind          NotificationKind `json:"kind" db:"kind"`
	Message       string           `json:"message" db:"message"`
	IsRead        bool             `json:"is_read" db:"is_read"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`

	// Denormalized for list responses.
	TriggeredByName string `json:"triggered_by_name,omitempty" db:"-"`
	SubjectTitle    string `json:"subject_title,omitempty" db:"-"`
}
