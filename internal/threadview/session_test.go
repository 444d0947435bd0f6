package threadview

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/pkg/models"
)

// fakeFetcher serves canned pages and counts calls. An optional gate blocks
// the fetch until released, to simulate slow responses.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[int]*Page
	calls int
	gate  chan struct{}
}

func (f *fakeFetcher) FetchPage(ctx context.Context, _ int64, page, _ int) (*Page, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	p, ok := f.pages[page]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return &Page{Nodes: nil, Total: 0}, nil
	}
	return p, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func viewNode(id int64) *models.ThreadNode {
	return &models.ThreadNode{
		ID:        id,
		Kind:      models.NodeKindComment,
		SubjectID: 7,
		AuthorID:  1,
		Text:      "n",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Second),
	}
}

func TestSessionLoadPage(t *testing.T) {
	t.Run("loads and merges pages", func(t *testing.T) {
		fetcher := &fakeFetcher{pages: map[int]*Page{
			1: {Nodes: []*models.ThreadNode{viewNode(1), viewNode(2)}, Total: 3},
			2: {Nodes: []*models.ThreadNode{viewNode(3)}, Total: 3},
		}}
		s := NewSession(7, 2, fetcher)
		defer s.Close()

		view, err := s.LoadPage(1)
		require.NoError(t, err)
		assert.Len(t, view.Flat, 2)
		assert.True(t, view.HasMore)

		view, err = s.LoadNext()
		require.NoError(t, err)
		assert.Len(t, view.Flat, 3)
		assert.False(t, view.HasMore)
		assert.Equal(t, 2, fetcher.callCount())
	})

	t.Run("suppresses refetch of a loaded page", func(t *testing.T) {
		fetcher := &fakeFetcher{pages: map[int]*Page{
			1: {Nodes: []*models.ThreadNode{viewNode(1)}, Total: 1},
		}}
		s := NewSession(7, 2, fetcher)
		defer s.Close()

		_, err := s.LoadPage(1)
		require.NoError(t, err)

		view, err := s.LoadPage(1)
		require.NoError(t, err)
		assert.Len(t, view.Flat, 1)
		assert.Equal(t, 1, fetcher.callCount(), "second load must not hit the network")
	})

	t.Run("discards responses landing after close", func(t *testing.T) {
		gate := make(chan struct{})
		fetcher := &fakeFetcher{
			pages: map[int]*Page{1: {Nodes: []*models.ThreadNode{viewNode(1)}, Total: 1}},
			gate:  gate,
		}
		s := NewSession(7, 2, fetcher)

		done := make(chan error, 1)
		go func() {
			_, err := s.LoadPage(1)
			done <- err
		}()

		// Let the fetch park on the gate, then tear the session down.
		time.Sleep(10 * time.Millisecond)
		s.Close()
		close(gate)

		err := <-done
		assert.ErrorIs(t, err, ErrClosed)
		assert.Empty(t, s.View().Flat, "late response must not be applied")
	})

	t.Run("load after close fails fast", func(t *testing.T) {
		s := NewSession(7, 2, &fakeFetcher{})
		s.Close()

		_, err := s.LoadPage(1)
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestSessionRealtime(t *testing.T) {
	t.Run("realtime node dedups against later page fetch", func(t *testing.T) {
		fetcher := &fakeFetcher{pages: map[int]*Page{
			1: {Nodes: []*models.ThreadNode{viewNode(1), viewNode(2)}, Total: 2},
		}}
		s := NewSession(7, 2, fetcher)
		defer s.Close()

		require.True(t, s.ApplyNode(viewNode(2)))

		view, err := s.LoadPage(1)
		require.NoError(t, err)
		assert.Len(t, view.Flat, 2)
	})

	t.Run("rejects nodes for other subjects", func(t *testing.T) {
		s := NewSession(7, 2, &fakeFetcher{})
		defer s.Close()

		foreign := viewNode(1)
		foreign.SubjectID = 99
		assert.False(t, s.ApplyNode(foreign))
	})

	t.Run("apply delete drops the node", func(t *testing.T) {
		s := NewSession(7, 2, &fakeFetcher{})
		defer s.Close()

		require.True(t, s.ApplyNode(viewNode(1)))
		assert.True(t, s.ApplyDelete(1))
		assert.False(t, s.ApplyDelete(1))
		assert.Empty(t, s.View().Flat)
	})

	t.Run("watch folds a node stream until close", func(t *testing.T) {
		s := NewSession(7, 2, &fakeFetcher{})

		ch := make(chan *models.ThreadNode)
		watchDone := make(chan struct{})
		go func() {
			s.Watch(ch)
			close(watchDone)
		}()

		ch <- viewNode(1)
		ch <- viewNode(2)

		require.Eventually(t, func() bool {
			return len(s.View().Flat) == 2
		}, time.Second, 5*time.Millisecond)

		s.Close()
		select {
		case <-watchDone:
		case <-time.After(time.Second):
			t.Fatal("watch loop did not exit after close")
		}
	})
}
