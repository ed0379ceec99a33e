package articles

import (
	"context"
	"sort"

	"github.com/bloggy/backend/internal/errs"
	"go.uber.org/zap"
)

// DefaultTreeDepth is the number of comment levels loaded when the caller
// does not ask for a specific depth.
const DefaultTreeDepth = 2

// LoadCommentReplies returns the comment subtree of id, at most depth levels
// deep. Each level costs one children query and one vote-count query.
// Siblings are ordered by vote score, then by creation time, both descending.
// Nodes on the last loaded level carry an empty comment list.
func (s *Service) LoadCommentReplies(ctx context.Context, id string, depth int) ([]*Node, error) {
	root, err := s.findNode(ctx, opLoadReplies, id)
	if err != nil {
		return nil, err
	}
	return s.loadSubtree(ctx, opLoadReplies, root.ID, depth)
}

// LoadThread returns the node itself with its comment subtree attached.
func (s *Service) LoadThread(ctx context.Context, id string, depth int) (*Node, error) {
	root, err := s.findNode(ctx, opLoadThread, id)
	if err != nil {
		return nil, err
	}
	view, err := s.view(ctx, root)
	if err != nil {
		return nil, err
	}
	comments, err := s.loadSubtree(ctx, opLoadThread, root.ID, depth)
	if err != nil {
		return nil, err
	}
	return &Node{View: view, Comments: comments}, nil
}

// CollectSubtreeIDs returns id followed by the ids of all its descendants.
func (s *Service) CollectSubtreeIDs(ctx context.Context, id string) ([]string, error) {
	return s.collectSubtrees(ctx, opDelete, []string{id})
}

// collectSubtrees walks down from rootIDs one level per query. A node
// reachable from several roots is listed once.
func (s *Service) collectSubtrees(ctx context.Context, operation string, rootIDs []string) ([]string, error) {
	seen := make(map[string]struct{}, len(rootIDs))
	collected := make([]string, 0, len(rootIDs))
	frontier := make([]string, 0, len(rootIDs))
	for _, id := range rootIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		collected = append(collected, id)
		frontier = append(frontier, id)
	}
	for level := 0; len(frontier) > 0; level++ {
		children, err := s.store.FindChildrenOf(ctx, frontier)
		if err != nil {
			s.logError(operation, "subtree_query_failed", err, zap.Int("level", level))
			return nil, errs.Internal(operation, "subtree_query_failed", err)
		}
		next := make([]string, 0, len(children))
		for _, child := range children {
			if _, ok := seen[child.ID]; ok {
				continue
			}
			seen[child.ID] = struct{}{}
			next = append(next, child.ID)
		}
		collected = append(collected, next...)
		frontier = next
	}
	return collected, nil
}

func (s *Service) loadSubtree(ctx context.Context, operation, rootID string, depth int) ([]*Node, error) {
	if depth < 0 {
		depth = 0
	}
	holder := &Node{Comments: []*Node{}}
	if depth == 0 {
		return holder.Comments, nil
	}

	parents := map[string]*Node{rootID: holder}
	frontier := []string{rootID}

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		children, err := s.store.FindChildrenOf(ctx, frontier)
		if err != nil {
			s.logError(operation, "children_query_failed", err, zap.String("article_id", rootID), zap.Int("level", level))
			return nil, errs.Internal(operation, "children_query_failed", err)
		}
		views, err := s.views(ctx, children)
		if err != nil {
			return nil, err
		}

		next := make(map[string]*Node, len(views))
		nextFrontier := make([]string, 0, len(views))
		for index := range views {
			node := &Node{View: views[index], Comments: []*Node{}}
			parent, ok := parents[*children[index].ParentID]
			if !ok {
				continue
			}
			parent.Comments = append(parent.Comments, node)
			next[node.ID] = node
			nextFrontier = append(nextFrontier, node.ID)
		}
		for _, parent := range parents {
			sortSiblings(parent.Comments)
		}

		parents = next
		frontier = nextFrontier
	}

	return holder.Comments, nil
}

func sortSiblings(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].VoteScore != nodes[j].VoteScore {
			return nodes[i].VoteScore > nodes[j].VoteScore
		}
		return nodes[i].CreatedAt.After(nodes[j].CreatedAt)
	})
}
