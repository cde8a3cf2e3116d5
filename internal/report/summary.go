package report

import (
	"slices"

	"github.com/nao1215/threadcap/internal/model"
)

// Summary holds counts describing a snapshot.
type Summary struct {
	Roots         int `json:"roots"`
	Nodes         int `json:"nodes"`
	Comments      int `json:"comments"`
	CommentErrors int `json:"commentErrors"`
	Pending       int `json:"pending"`
	RepliesErrors int `json:"repliesErrors"`
	Commenters    int `json:"commenters"`
	Attachments   int `json:"attachments"`
	MaxDepth      int `json:"maxDepth"`
}

// Summarize computes the summary of tc.
func Summarize(tc *model.Threadcap) Summary {
	s := Summary{
		Roots:      len(tc.Roots),
		Nodes:      len(tc.Nodes),
		Commenters: len(tc.Commenters),
	}
	for _, node := range tc.Nodes {
		switch {
		case node.Comment != nil:
			s.Comments++
			s.Attachments += len(node.Comment.Attachments)
		case node.CommentError != "":
			s.CommentErrors++
		default:
			s.Pending++
		}
		if node.RepliesError != "" {
			s.RepliesErrors++
		}
	}
	Walk(tc, func(_ string, depth int, _ *model.Node) {
		s.MaxDepth = max(s.MaxDepth, depth)
	})
	return s
}

// Walk visits the nodes of tc depth first from the roots, in reply order.
// Depth is 1 for roots. Each node is visited once even if it is reachable
// along several paths; ids listed as replies but not yet in the snapshot
// are skipped.
func Walk(tc *model.Threadcap, fn func(id string, depth int, node *model.Node)) {
	visited := make(map[string]struct{}, len(tc.Nodes))
	var visit func(id string, depth int)
	visit = func(id string, depth int) {
		if _, seen := visited[id]; seen {
			return
		}
		node, ok := tc.Nodes[id]
		if !ok || node == nil {
			return
		}
		visited[id] = struct{}{}
		fn(id, depth, node)
		for _, reply := range node.Replies {
			visit(reply, depth+1)
		}
	}
	for _, root := range tc.Roots {
		visit(root, 1)
	}
}

// Diff describes how a newer snapshot differs from an older one.
type Diff struct {
	// NewNodes are ids present only in the newer snapshot.
	NewNodes []string `json:"newNodes"`

	// NewlyFailed are ids whose comment failed in the newer snapshot but
	// not in the older one.
	NewlyFailed []string `json:"newlyFailed"`

	// Resolved are ids whose comment failed in the older snapshot and
	// succeeded in the newer one.
	Resolved []string `json:"resolved"`

	// NewCommenters are commenter ids present only in the newer snapshot.
	NewCommenters []string `json:"newCommenters"`
}

// Empty reports whether the snapshots are equivalent for the diff's purposes.
func (d Diff) Empty() bool {
	return len(d.NewNodes) == 0 && len(d.NewlyFailed) == 0 && len(d.Resolved) == 0 && len(d.NewCommenters) == 0
}

// Compare computes the difference from older to newer.
func Compare(older, newer *model.Threadcap) Diff {
	var d Diff
	for id, node := range newer.Nodes {
		prev, existed := older.Nodes[id]
		if !existed {
			d.NewNodes = append(d.NewNodes, id)
		}
		failed := node.CommentError != ""
		prevFailed := existed && prev.CommentError != ""
		if failed && !prevFailed {
			d.NewlyFailed = append(d.NewlyFailed, id)
		}
		if prevFailed && node.Comment != nil {
			d.Resolved = append(d.Resolved, id)
		}
	}
	for id := range newer.Commenters {
		if _, ok := older.Commenters[id]; !ok {
			d.NewCommenters = append(d.NewCommenters, id)
		}
	}
	slices.Sort(d.NewNodes)
	slices.Sort(d.NewlyFailed)
	slices.Sort(d.Resolved)
	slices.Sort(d.NewCommenters)
	return d
}
