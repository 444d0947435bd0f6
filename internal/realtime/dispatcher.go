// Package realtime delivers notification payloads to per-recipient channels.
//
// Delivery is best-effort by contract: a user must be able to post even when
// the realtime layer is down, so transport errors are logged and swallowed by
// callers, never propagated to the triggering request. The durable source of
// truth is always the notifications table reached via polling.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/threadline/pkg/models"
)

// ActorInfo is the denormalized triggering user on the wire.
type ActorInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// SubjectInfo is the denormalized subject on the wire.
type SubjectInfo struct {
	ID    int64              `json:"id"`
	Kind  models.SubjectKind `json:"kind"`
	Title string             `json:"title"`
}

// Payload is the full wire message: the notification record plus denormalized
// actor and subject display fields so clients can render without a follow-up
// fetch. Event carries the notification kind. DeliveryID is unique per publish
// attempt, distinguishing a redelivered message from a distinct notification.
type Payload struct {
	DeliveryID   string               `json:"delivery_id"`
	Event        string               `json:"event"`
	Notification *models.Notification `json:"notification"`
	TriggeredBy  ActorInfo            `json:"triggered_by"`
	Subject      SubjectInfo          `json:"subject"`
}

// NewPayload assembles a wire payload from its persisted parts.
func NewPayload(n *models.Notification, actor *models.User, subject *models.Subject) *Payload {
	p := &Payload{
		DeliveryID:   uuid.NewString(),
		Event:        string(n.Kind),
		Notification: n,
		TriggeredBy:  ActorInfo{ID: actor.ID, Username: actor.Username},
	}
	if subject != nil {
		p.Subject = SubjectInfo{ID: subject.ID, Kind: subject.Kind, Title: subject.Title}
	}
	return p
}

// ChannelFor returns the pub/sub channel name for a recipient.
func ChannelFor(recipientID int64) string {
	return fmt.Sprintf("notifications.%d", recipientID)
}

// Dispatcher publishes payloads to a recipient-scoped channel.
type Dispatcher interface {
	Publish(ctx context.Context, p *Payload) error
}

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and verifies the Redis backend.
func NewRedisClient(ctx context.Context, c Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", c.Addr, err)
	}
	return client, nil
}

// RedisDispatcher publishes payloads over Redis pub/sub.
type RedisDispatcher struct {
	client *redis.Client
}

// NewRedisDispatcher creates a dispatcher over an established client.
func NewRedisDispatcher(client *redis.Client) *RedisDispatcher {
	return &RedisDispatcher{client: client}
}

// Publish sends the payload to the recipient's channel. Callers on the
// request path must treat errors as log-and-continue.
func (d *RedisDispatcher) Publish(ctx context.Context, p *Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	channel := ChannelFor(p.Notification.RecipientID)
	if err := d.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	return nil
}
