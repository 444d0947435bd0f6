package realtime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/pkg/models"
)

// fakeLister serves a mutable newest-first notification list and can fail a
// given number of calls first.
type fakeLister struct {
	mu       sync.Mutex
	items    []*models.Notification
	failures int
	calls    int
}

func (f *fakeLister) List(_ context.Context, _ int64, page, perPage int) ([]*models.Notification, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, 0, fmt.Errorf("list failed")
	}

	total := len(f.items)
	start := (page - 1) * perPage
	if start >= total {
		return nil, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	out := make([]*models.Notification, end-start)
	copy(out, f.items[start:end])
	return out, total, nil
}

func (f *fakeLister) prepend(n *models.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append([]*models.Notification{n}, f.items...)
}

func notif(id int64) *models.Notification {
	return &models.Notification{
		ID:          id,
		RecipientID: 1,
		Kind:        models.NotificationSubjectActivity,
	}
}

func TestPollerRun(t *testing.T) {
	t.Run("delivers unseen notifications oldest first, once", func(t *testing.T) {
		lister := &fakeLister{items: []*models.Notification{notif(3), notif(2), notif(1)}}
		p := NewPoller(lister, time.Millisecond, 50)

		ctx, cancel := context.WithCancel(context.Background())
		var mu sync.Mutex
		var delivered []int64

		done := make(chan error, 1)
		go func() {
			done <- p.Run(ctx, 1, func(n *models.Notification) {
				mu.Lock()
				delivered = append(delivered, n.ID)
				if n.ID == 4 {
					cancel()
				}
				mu.Unlock()
			})
		}()

		// Let the first poll land, then a new notification arrives.
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(delivered) == 3
		}, time.Second, time.Millisecond)
		lister.prepend(notif(4))

		err := <-done
		assert.ErrorIs(t, err, context.Canceled)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []int64{1, 2, 3, 4}, delivered)
	})

	t.Run("a burst wider than one page is fully delivered", func(t *testing.T) {
		lister := &fakeLister{items: []*models.Notification{
			notif(5), notif(4), notif(3), notif(2), notif(1),
		}}
		p := NewPoller(lister, time.Millisecond, 2)

		ctx, cancel := context.WithCancel(context.Background())
		var mu sync.Mutex
		var delivered []int64

		done := make(chan error, 1)
		go func() {
			done <- p.Run(ctx, 1, func(n *models.Notification) {
				mu.Lock()
				delivered = append(delivered, n.ID)
				if n.ID == 8 {
					cancel()
				}
				mu.Unlock()
			})
		}()

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(delivered) == 5
		}, time.Second, time.Millisecond)

		// Second burst: three new notifications, again more than one page.
		lister.prepend(notif(6))
		lister.prepend(notif(7))
		lister.prepend(notif(8))

		err := <-done
		assert.ErrorIs(t, err, context.Canceled)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8}, delivered)
	})

	t.Run("fetch errors are retried on the next tick", func(t *testing.T) {
		lister := &fakeLister{items: []*models.Notification{notif(1)}, failures: 2}
		p := NewPoller(lister, time.Millisecond, 50)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- p.Run(ctx, 1, func(n *models.Notification) {
				assert.Equal(t, int64(1), n.ID)
				cancel()
			})
		}()

		err := <-done
		assert.ErrorIs(t, err, context.Canceled)
		assert.GreaterOrEqual(t, lister.calls, 3)
	})

	t.Run("stops when the context is already cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p := NewPoller(&fakeLister{}, time.Millisecond, 50)
		err := p.Run(ctx, 1, func(*models.Notification) {})
		assert.Error(t, err)
	})
}
