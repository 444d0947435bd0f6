package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Subscriber consumes a recipient's notification channel.
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber creates a subscriber over an established client.
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Notifications subscribes to the recipient's channel and streams decoded
// payloads until ctx is cancelled. The returned channel is closed on
// teardown; undecodable messages are logged and dropped, they never kill the
// stream.
func (s *Subscriber) Notifications(ctx context.Context, recipientID int64) (<-chan *Payload, error) {
	sub := s.client.Subscribe(ctx, ChannelFor(recipientID))

	// Confirm the subscription before handing the channel out, so a dead
	// transport surfaces here instead of as a silently empty stream.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe for recipient %d: %w", recipientID, err)
	}

	out := make(chan *Payload)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				p := &Payload{}
				if err := json.Unmarshal([]byte(msg.Payload), p); err != nil {
					log.Warn().Err(err).
						Int64("recipient_id", recipientID).
						Msg("dropping undecodable realtime payload")
					continue
				}
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
