// Package threadview holds the client-side projection of one thread: the
// pagination state, the deduplicated flat node set, and the derived tree.
//
// Each session belongs to exactly one viewing client and one subject. It is
// a reconciliation aid only — it carries no authority over server state and
// can always be rebuilt from a fresh fetch.
package threadview

import (
	"context"
	"errors"
	"sync"

	"github.com/threadline/internal/thread"
	"github.com/threadline/pkg/models"
)

// ErrClosed is returned once the session is torn down; late fetch responses
// are discarded with this error instead of being applied.
var ErrClosed = errors.New("thread view closed")

// Page is one fetched page of flat nodes plus the server-reported total.
type Page struct {
	Nodes []*models.ThreadNode
	Total int
}

// Fetcher retrieves one flat page for a subject. Implementations wrap the
// list endpoint or, in tests, a canned response.
type Fetcher interface {
	FetchPage(ctx context.Context, subjectID int64, page, perPage int) (*Page, error)
}

// View is the current derived projection handed to the renderer.
type View struct {
	Forest  []*thread.TreeNode
	Flat    []*models.ThreadNode
	HasMore bool
	Total   int
}

// Session tracks pagination and reconciliation for one subject's thread.
//
// Page fetches are serialized per page number: a request for a page that is
// already in flight or already loaded is suppressed, so duplicate network
// retries can never race the merger against itself. The realtime path and
// the fetch path share the merger's dedup-by-id rule.
type Session struct {
	mu       sync.Mutex
	subject  int64
	perPage  int
	fetcher  Fetcher
	merger   *thread.Merger
	inflight map[int]bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession opens a view session for a subject.
func NewSession(subjectID int64, perPage int, fetcher Fetcher) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		subject:  subjectID,
		perPage:  perPage,
		fetcher:  fetcher,
		merger:   thread.NewMerger(perPage),
		inflight: make(map[int]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// LoadPage fetches and merges one page. Requests for in-flight or
// already-loaded pages return the current view without a network call. A
// response that lands after Close is discarded, not applied.
func (s *Session) LoadPage(page int) (*View, error) {
	if page < 1 {
		page = 1
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.inflight[page] || s.merger.PageLoaded(page) {
		view := s.viewLocked()
		s.mu.Unlock()
		return view, nil
	}
	s.inflight[page] = true
	s.mu.Unlock()

	fetched, err := s.fetcher.FetchPage(s.ctx, s.subject, page, s.perPage)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, page)

	// Still-interested guard: the view may have been torn down while the
	// fetch was in flight.
	if s.ctx.Err() != nil {
		return nil, ErrClosed
	}
	if err != nil {
		return nil, err
	}

	s.merger.MergePage(page, fetched.Nodes, fetched.Total)
	return s.viewLocked(), nil
}

// LoadNext fetches the page after the highest loaded one, or returns the
// current view unchanged when the merger says there is nothing more.
func (s *Session) LoadNext() (*View, error) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if !s.merger.HasMore() {
		view := s.viewLocked()
		s.mu.Unlock()
		return view, nil
	}
	next := s.merger.CurrentPage() + 1
	s.mu.Unlock()

	return s.LoadPage(next)
}

// ApplyNode folds a node delivered over the realtime channel into the flat
// set. Returns false when the node was already known (its page arrived
// first) or belongs to another subject.
func (s *Session) ApplyNode(n *models.ThreadNode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil || n.SubjectID != s.subject {
		return false
	}
	return s.merger.Add(n)
}

// ApplyDelete drops a node after a delete confirmation.
func (s *Session) ApplyDelete(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	return s.merger.Remove(id)
}

// Watch consumes a node stream until the session closes or the stream ends.
// Runs on the caller's goroutine; typical use is `go session.Watch(ch)`.
func (s *Session) Watch(ch <-chan *models.ThreadNode) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			s.ApplyNode(n)
		}
	}
}

// View returns the current projection.
func (s *Session) View() *View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() *View {
	return &View{
		Forest:  s.merger.Forest(),
		Flat:    s.merger.Flat(),
		HasMore: s.merger.HasMore(),
		Total:   s.merger.TotalCount(),
	}
}

// Context exposes the session lifetime for wiring subscriptions.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Close tears the session down: in-flight fetches are aborted and their late
// responses discarded, and any Watch loops exit.
func (s *Session) Close() {
	s.cancel()
}
