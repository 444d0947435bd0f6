package thread

import (
	"sort"

	"github.com/threadline/pkg/models"
)

// TreeNode is one node of the reconstructed forest. Children are ordered
// per the policy in sortChildren.
type TreeNode struct {
	*models.ThreadNode
	Children []*TreeNode `json:"children"`
}

// BuildForest reconstructs the parent/child forest from a flat node set.
//
// Nodes whose parent is absent from the input are promoted to roots instead
// of being dropped: a reply must still render when its parent was deleted or
// simply not fetched yet.
//
// Ordering is asymmetric on purpose. Comment children sort ascending by
// position marker then creation time (natural media-playback order);
// feedback children sort descending by creation time (newest reply first).
// The function is pure and idempotent: the same input set always yields a
// structurally identical forest regardless of input order.
func BuildForest(nodes []*models.ThreadNode) []*TreeNode {
	index := make(map[int64]*TreeNode, len(nodes))
	for _, n := range nodes {
		index[n.ID] = &TreeNode{ThreadNode: n, Children: make([]*TreeNode, 0)}
	}

	roots := make([]*TreeNode, 0)
	for _, n := range nodes {
		tn := index[n.ID]
		if n.ParentID != nil {
			if parent, ok := index[*n.ParentID]; ok {
				parent.Children = append(parent.Children, tn)
				continue
			}
			// Orphan: parent deleted or not yet fetched.
		}
		roots = append(roots, tn)
	}

	var sortLevel func(level []*TreeNode)
	sortLevel = func(level []*TreeNode) {
		sortChildren(level)
		for _, tn := range level {
			sortLevel(tn.Children)
		}
	}
	sortLevel(roots)

	return roots
}

// sortChildren orders one sibling level in place. Comments and feedback never
// mix inside a single thread, so the first node's kind decides the policy.
func sortChildren(level []*TreeNode) {
	if len(level) == 0 {
		return
	}
	if level[0].Kind == models.NodeKindFeedback {
		sort.SliceStable(level, func(i, j int) bool {
			return feedbackLess(level[i].ThreadNode, level[j].ThreadNode)
		})
		return
	}
	sort.SliceStable(level, func(i, j int) bool {
		return commentLess(level[i].ThreadNode, level[j].ThreadNode)
	})
}

// commentLess orders comments earliest-first: position marker ascending
// (unmarked nodes sort after marked ones), then creation time, then id as a
// deterministic tiebreak.
func commentLess(a, b *models.ThreadNode) bool {
	switch {
	case a.PositionMarker != nil && b.PositionMarker != nil:
		if *a.PositionMarker != *b.PositionMarker {
			return *a.PositionMarker < *b.PositionMarker
		}
	case a.PositionMarker != nil:
		return true
	case b.PositionMarker != nil:
		return false
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// feedbackLess orders feedback newest-first for triage.
func feedbackLess(a, b *models.ThreadNode) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// CountNodes returns the total number of nodes in the forest.
func CountNodes(forest []*TreeNode) int {
	total := 0
	for _, tn := range forest {
		total += 1 + CountNodes(tn.Children)
	}
	return total
}
