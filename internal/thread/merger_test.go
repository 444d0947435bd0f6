package thread

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/pkg/models"
)

func mergerNodes(ids ...int64) []*models.ThreadNode {
	out := make([]*models.ThreadNode, 0, len(ids))
	for _, id := range ids {
		out = append(out, &models.ThreadNode{
			ID:        id,
			Kind:      models.NodeKindComment,
			SubjectID: 1,
			AuthorID:  1,
			Text:      "n",
			CreatedAt: treeBase.Add(time.Duration(id) * time.Second),
		})
	}
	return out
}

func TestMergerMergePage(t *testing.T) {
	t.Run("accumulates pages and reports hasMore", func(t *testing.T) {
		m := NewMerger(3)

		res := m.MergePage(1, mergerNodes(1, 2, 3), 7)
		assert.Equal(t, 3, res.Added)
		assert.False(t, res.NoOp)
		assert.True(t, res.HasMore)

		res = m.MergePage(2, mergerNodes(4, 5, 6), 7)
		assert.Equal(t, 3, res.Added)
		assert.True(t, res.HasMore)

		res = m.MergePage(3, mergerNodes(7), 7)
		assert.Equal(t, 1, res.Added)
		assert.False(t, res.HasMore)
		assert.Equal(t, 7, m.Len())
		assert.Equal(t, 7, m.TotalCount())
	})

	t.Run("re-merging a loaded page is a no-op", func(t *testing.T) {
		m := NewMerger(3)
		m.MergePage(1, mergerNodes(1, 2, 3), 6)

		before := m.Len()
		res := m.MergePage(1, mergerNodes(1, 2, 3), 6)

		assert.True(t, res.NoOp)
		assert.Zero(t, res.Added)
		assert.Equal(t, before, m.Len())
		assert.True(t, m.HasMore())
	})

	t.Run("dedups nodes repeated across page boundaries", func(t *testing.T) {
		// Concurrent inserts can shift a node from page 1 into page 2 between
		// fetches; the repeat must not double-count.
		m := NewMerger(3)
		m.MergePage(1, mergerNodes(1, 2, 3), 5)
		res := m.MergePage(2, mergerNodes(3, 4, 5), 5)

		assert.Equal(t, 2, res.Added)
		assert.Equal(t, 5, m.Len())
	})

	t.Run("zero net-new page forces hasMore false", func(t *testing.T) {
		// Stale total after concurrent deletions: the arithmetic still
		// promises more pages, but the server has nothing new to give.
		m := NewMerger(3)
		m.MergePage(1, mergerNodes(1, 2, 3), 9)
		res := m.MergePage(2, mergerNodes(1, 2, 3), 9)

		assert.Zero(t, res.Added)
		assert.False(t, res.HasMore)
		assert.False(t, m.HasMore())
	})
}

func TestMergerRealtime(t *testing.T) {
	t.Run("realtime node survives later page fetch without duplication", func(t *testing.T) {
		m := NewMerger(3)
		realtime := mergerNodes(3)[0]

		require.True(t, m.Add(realtime))
		assert.False(t, m.Add(realtime))

		res := m.MergePage(1, mergerNodes(1, 2, 3), 3)
		assert.Equal(t, 2, res.Added)
		assert.Equal(t, 3, m.Len())
	})

	t.Run("remove drops the node and adjusts the total", func(t *testing.T) {
		m := NewMerger(3)
		m.MergePage(1, mergerNodes(1, 2), 2)

		require.True(t, m.Remove(2))
		assert.False(t, m.Remove(2))
		assert.Equal(t, 1, m.Len())
		assert.Equal(t, 1, m.TotalCount())
	})
}

func TestMergerFlatAndForest(t *testing.T) {
	m := NewMerger(10)
	m.MergePage(1, mergerNodes(2, 1, 3), 3)

	flat := m.Flat()
	require.Len(t, flat, 3)
	assert.Equal(t, int64(1), flat[0].ID)
	assert.Equal(t, int64(3), flat[2].ID)

	forest := m.Forest()
	assert.Equal(t, 3, CountNodes(forest))
}
