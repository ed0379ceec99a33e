package articles

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bloggy/backend/internal/errs"
	"github.com/bloggy/backend/internal/notifications"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// VoteResult reports the caller's membership in the toggled direction and
// the node's counts after the toggle.
type VoteResult struct {
	Direction Direction
	Active    bool
	Upvotes   int64
	Downvotes int64
}

// MarshalJSON renders {"upvoted"|"downvoted": bool, "upvotes": n, "downvotes": n}.
func (r VoteResult) MarshalJSON() ([]byte, error) {
	key := "upvoted"
	if r.Direction == DirectionDown {
		key = "downvoted"
	}
	return json.Marshal(map[string]any{
		key:         r.Active,
		"upvotes":   r.Upvotes,
		"downvotes": r.Downvotes,
	})
}

// VoteStatus describes a node's vote counts and, for an authenticated
// viewer, their current vote.
type VoteStatus struct {
	Upvotes   int64 `json:"upvotes"`
	Downvotes int64 `json:"downvotes"`
	VoteScore int64 `json:"voteScore"`
	Upvoted   bool  `json:"upvoted"`
	Downvoted bool  `json:"downvoted"`
}

// Upvote toggles userID's upvote on the node.
func (s *Service) Upvote(ctx context.Context, nodeID, userID string) (VoteResult, error) {
	return s.toggleVote(ctx, opUpvote, nodeID, userID, DirectionUp)
}

// Downvote toggles userID's downvote on the node.
func (s *Service) Downvote(ctx context.Context, nodeID, userID string) (VoteResult, error) {
	return s.toggleVote(ctx, opDownvote, nodeID, userID, DirectionDown)
}

// Votes reports the node's counts and viewerID's vote, if any.
func (s *Service) Votes(ctx context.Context, nodeID, viewerID string) (VoteStatus, error) {
	node, err := s.findNode(ctx, opVotes, nodeID)
	if err != nil {
		return VoteStatus{}, err
	}
	counts, err := s.store.CountVotes(ctx, []string{node.ID})
	if err != nil {
		s.logError(opVotes, "vote_count_failed", err, zap.String("article_id", node.ID))
		return VoteStatus{}, errs.Internal(opVotes, "vote_count_failed", err)
	}
	count := counts[node.ID]
	status := VoteStatus{
		Upvotes:   count.Upvotes,
		Downvotes: count.Downvotes,
		VoteScore: count.Score(),
	}
	if viewerID == "" {
		return status, nil
	}
	direction, err := s.store.VoteOf(ctx, node.ID, viewerID)
	if err != nil {
		s.logError(opVotes, "vote_lookup_failed", err, zap.String("article_id", node.ID))
		return VoteStatus{}, errs.Internal(opVotes, "vote_lookup_failed", err)
	}
	status.Upvoted = direction == DirectionUp
	status.Downvoted = direction == DirectionDown
	return status, nil
}

// toggleVote applies one transition of the none/upvoted/downvoted machine.
// A conditional delete keyed by (node, user, direction) detects the
// toggle-off case; otherwise an upsert on (node, user) adds the vote and
// drops any opposite vote in the same statement.
func (s *Service) toggleVote(ctx context.Context, operation, nodeID, userID string, direction Direction) (VoteResult, error) {
	node, err := s.findNode(ctx, operation, nodeID)
	if err != nil {
		return VoteResult{}, err
	}
	if err := s.ensureUser(ctx, operation, userID); err != nil {
		return VoteResult{}, err
	}

	active := false
	err = s.store.Transaction(ctx, func(tx Store) error {
		removed, err := tx.RemoveVote(ctx, node.ID, userID, direction)
		if err != nil {
			return err
		}
		if removed {
			return nil
		}
		active = true
		return tx.AddVote(ctx, Vote{
			ArticleID: node.ID,
			UserID:    userID,
			Direction: direction,
			CreatedAt: s.clock().UTC(),
		})
	})
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return VoteResult{}, errs.NotFound(operation, "user_not_found", errVoterNotFound)
	}
	if err != nil {
		s.logError(operation, "toggle_failed", err,
			zap.String("article_id", node.ID),
			zap.String("user_id", userID))
		return VoteResult{}, errs.Internal(operation, "toggle_failed", err)
	}

	counts, err := s.store.CountVotes(ctx, []string{node.ID})
	if err != nil {
		s.logError(operation, "vote_count_failed", err, zap.String("article_id", node.ID))
		return VoteResult{}, errs.Internal(operation, "vote_count_failed", err)
	}

	if active {
		s.notifyVote(ctx, node, userID, direction)
	}

	count := counts[node.ID]
	return VoteResult{
		Direction: direction,
		Active:    active,
		Upvotes:   count.Upvotes,
		Downvotes: count.Downvotes,
	}, nil
}

// ensureUser rejects votes from accounts that no longer exist.
func (s *Service) ensureUser(ctx context.Context, operation, userID string) error {
	found, err := s.authors.Summaries(ctx, []string{userID})
	if err != nil {
		s.logError(operation, "user_lookup_failed", err, zap.String("user_id", userID))
		return errs.Internal(operation, "user_lookup_failed", err)
	}
	if _, ok := found[userID]; !ok {
		return errs.NotFound(operation, "user_not_found", errVoterNotFound)
	}
	return nil
}

func (s *Service) notifyVote(ctx context.Context, node Article, actorID string, direction Direction) {
	if s.notifier == nil || node.AuthorID == actorID {
		return
	}
	rootID, err := s.rootOf(ctx, node)
	if err != nil {
		s.logError(opNotify, "root_resolution_failed", err, zap.String("article_id", node.ID))
		return
	}

	input := notifications.Input{
		RecipientID: node.AuthorID,
		ActorID:     actorID,
		Type:        notifications.TypeUpvote,
		TargetType:  notifications.TargetArticle,
		ArticleID:   rootID,
	}
	if direction == DirectionDown {
		input.Type = notifications.TypeDownvote
	}
	if node.IsComment() {
		input.TargetType = notifications.TargetComment
		input.CommentID = node.ID
	}
	s.notify(ctx, input)
}
