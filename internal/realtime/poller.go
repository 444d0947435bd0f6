package realtime

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/threadline/pkg/models"
)

// NotificationLister is the polling read path, implemented by the
// notification repository or an HTTP client wrapping the list endpoint.
type NotificationLister interface {
	List(ctx context.Context, recipientID int64, page, perPage int) ([]*models.Notification, int, error)
}

// Poller is the durable fallback for the realtime channel. Realtime is a
// latency optimization, never a correctness dependency: when the pub/sub
// stream is down the poller keeps the client converging on server state.
type Poller struct {
	lister  NotificationLister
	pacer   *rate.Limiter
	perPage int
}

// NewPoller creates a poller that fetches at most once per interval.
func NewPoller(lister NotificationLister, interval time.Duration, perPage int) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if perPage <= 0 {
		perPage = 50
	}
	return &Poller{
		lister:  lister,
		pacer:   rate.NewLimiter(rate.Every(interval), 1),
		perPage: perPage,
	}
}

// Run polls the recipient's notifications until ctx is cancelled, invoking
// handler once per newly observed notification in oldest-first order. Fetch
// errors are logged and retried on the next tick.
//
// Progress is tracked by a high-water mark over notification ids, which are
// assigned monotonically with creation. Each tick walks pages newest-first
// until it crosses the mark, so a burst wider than one page is still fully
// delivered, and the poller holds no per-notification state.
func (p *Poller) Run(ctx context.Context, recipientID int64, handler func(*models.Notification)) error {
	var watermark int64

	for {
		if err := p.pacer.Wait(ctx); err != nil {
			// Context cancelled: normal teardown.
			return err
		}

		pending, err := p.collect(ctx, recipientID, watermark)
		if err != nil {
			log.Warn().Err(err).
				Int64("recipient_id", recipientID).
				Msg("notification poll failed")
			continue
		}

		// pending is newest first; deliver oldest first.
		for i := len(pending) - 1; i >= 0; i-- {
			n := pending[i]
			handler(n)
			if n.ID > watermark {
				watermark = n.ID
			}
		}
	}
}

// collect gathers every notification above the watermark, walking pages
// until one crosses the mark or the listing runs out. Ids must stay strictly
// decreasing during the walk; a repeat means a concurrent insert shifted the
// pages, and the shifted copy is skipped rather than delivered twice.
func (p *Poller) collect(ctx context.Context, recipientID int64, watermark int64) ([]*models.Notification, error) {
	var pending []*models.Notification

	for page := 1; ; page++ {
		items, total, err := p.lister.List(ctx, recipientID, page, p.perPage)
		if err != nil {
			return nil, err
		}

		for _, n := range items {
			if n.ID <= watermark {
				return pending, nil
			}
			if len(pending) > 0 && n.ID >= pending[len(pending)-1].ID {
				continue
			}
			pending = append(pending, n)
		}

		if len(items) == 0 || page*p.perPage >= total {
			return pending, nil
		}
	}
}
