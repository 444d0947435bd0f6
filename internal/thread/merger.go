package thread

import (
	"sort"

	"github.com/threadline/pkg/models"
)

// Merger accumulates the flat node set seen so far for one subject and merges
// newly fetched pages into it without duplicating previously seen nodes.
//
// It exists because the paginated fetch path and the realtime subscription
// both write into the same flat set: a node delivered in realtime before its
// page is fetched must not be re-inserted when that page later arrives. The
// dedup rule is by node id in both cases.
//
// Merger is not safe for concurrent use; the owning session serializes access.
type Merger struct {
	pageSize    int
	nodes       map[int64]*models.ThreadNode
	loadedPages map[int]bool
	currentPage int
	totalCount  int
	hasMore     bool
}

// MergeResult reports the outcome of one page merge.
type MergeResult struct {
	// Added is the number of previously unseen nodes this merge introduced.
	Added int
	// NoOp is true when the page number was already loaded and the merge
	// changed nothing (duplicate network retry guard).
	NoOp bool
	// HasMore mirrors Merger.HasMore after the merge.
	HasMore bool
}

// NewMerger creates an empty merger for a thread view with the given fetch
// page size.
func NewMerger(pageSize int) *Merger {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Merger{
		pageSize:    pageSize,
		nodes:       make(map[int64]*models.ThreadNode),
		loadedPages: make(map[int]bool),
		hasMore:     true,
	}
}

// MergePage folds one fetched page into the flat set. Re-merging an
// already-loaded page number is a no-op: the flat set, loaded-page set and
// hasMore all stay unchanged.
//
// hasMore is the arithmetic check currentPage*pageSize < totalCount, with one
// override: a page that contributed zero net-new nodes forces hasMore to
// false even when the arithmetic disagrees. That defends against a stale
// totalCount after concurrent deletions, where the count promises pages the
// server can no longer produce.
func (m *Merger) MergePage(page int, nodes []*models.ThreadNode, totalCount int) MergeResult {
	if m.loadedPages[page] {
		return MergeResult{NoOp: true, HasMore: m.hasMore}
	}

	added := 0
	for _, n := range nodes {
		if _, seen := m.nodes[n.ID]; seen {
			continue
		}
		m.nodes[n.ID] = n
		added++
	}

	m.loadedPages[page] = true
	if page > m.currentPage {
		m.currentPage = page
	}
	m.totalCount = totalCount

	m.hasMore = m.currentPage*m.pageSize < m.totalCount
	if added == 0 {
		m.hasMore = false
	}

	return MergeResult{Added: added, HasMore: m.hasMore}
}

// Add inserts a single node delivered outside the pagination path (realtime,
// optimistic create). Returns false if the node was already present.
func (m *Merger) Add(n *models.ThreadNode) bool {
	if _, seen := m.nodes[n.ID]; seen {
		return false
	}
	m.nodes[n.ID] = n
	m.totalCount++
	return true
}

// Remove drops a node from the flat set, e.g. after a delete confirmation.
// Returns false if the node was not present.
func (m *Merger) Remove(id int64) bool {
	if _, seen := m.nodes[id]; !seen {
		return false
	}
	delete(m.nodes, id)
	if m.totalCount > 0 {
		m.totalCount--
	}
	return true
}

// Flat returns the accumulated node set ordered by id. The order is only a
// stable iteration aid; display order comes from BuildForest.
func (m *Merger) Flat() []*models.ThreadNode {
	out := make([]*models.ThreadNode, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Forest re-derives the current tree view from the flat set.
func (m *Merger) Forest() []*TreeNode {
	return BuildForest(m.Flat())
}

// PageLoaded reports whether a page number has already been merged.
func (m *Merger) PageLoaded(page int) bool {
	return m.loadedPages[page]
}

// HasMore reports whether another page fetch is expected to produce new nodes.
func (m *Merger) HasMore() bool {
	return m.hasMore
}

// Len returns the flat node count.
func (m *Merger) Len() int {
	return len(m.nodes)
}

// TotalCount returns the server-reported total from the last merge, adjusted
// by realtime adds/removes.
func (m *Merger) TotalCount() int {
	return m.totalCount
}

// CurrentPage returns the highest merged page number.
func (m *Merger) CurrentPage() int {
	return m.currentPage
}
