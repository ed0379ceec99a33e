package articles

import (
	"context"
	"time"

	"github.com/bloggy/backend/internal/errs"
	"github.com/bloggy/backend/internal/users"
)

const (
	EventArticleCreated = "articleCreated"
	EventArticleUpdated = "articleUpdated"
	EventArticleDeleted = "articleDeleted"
	EventCommentCreated = "commentCreated"
)

// ArticleRoom names the realtime group that receives a thread's comments.
func ArticleRoom(articleID string) string {
	return "article:" + articleID
}

// View is the response projection of a node.
type View struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	ContentHTML string         `json:"contentHtml"`
	AuthorID    string         `json:"authorId"`
	Author      *users.Summary `json:"author,omitempty"`
	ParentID    *string        `json:"parentId"`
	Depth       int            `json:"depth"`
	Upvotes     int64          `json:"upvotes"`
	Downvotes   int64          `json:"downvotes"`
	VoteScore   int64          `json:"voteScore"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Node is a View together with its loaded comment subtree.
type Node struct {
	View
	Comments []*Node `json:"comments"`
}

// Detail is a View together with its direct comments.
type Detail struct {
	View
	Comments []View `json:"comments"`
}

// CommentCreatedEvent is pushed to the root article's room.
type CommentCreatedEvent struct {
	ArticleID string `json:"articleId"`
	ParentID  string `json:"parentId"`
	Comment   View   `json:"comment"`
}

// ArticleDeletedEvent is broadcast after a node is removed.
type ArticleDeletedEvent struct {
	ID       string `json:"id"`
	AuthorID string `json:"authorId"`
}

func (s *Service) view(ctx context.Context, article Article) (View, error) {
	views, err := s.views(ctx, []Article{article})
	if err != nil {
		return View{}, err
	}
	return views[0], nil
}

// views projects articles with one author lookup and one vote-count query.
func (s *Service) views(ctx context.Context, articles []Article) ([]View, error) {
	out := make([]View, 0, len(articles))
	if len(articles) == 0 {
		return out, nil
	}

	articleIDs := make([]string, 0, len(articles))
	authorIDs := make([]string, 0, len(articles))
	for _, article := range articles {
		articleIDs = append(articleIDs, article.ID)
		authorIDs = append(authorIDs, article.AuthorID)
	}

	authors, err := s.authors.Summaries(ctx, authorIDs)
	if err != nil {
		s.logError(opViews, "author_lookup_failed", err)
		return nil, errs.Internal(opViews, "author_lookup_failed", err)
	}
	counts, err := s.store.CountVotes(ctx, articleIDs)
	if err != nil {
		s.logError(opViews, "vote_count_failed", err)
		return nil, errs.Internal(opViews, "vote_count_failed", err)
	}

	for _, article := range articles {
		out = append(out, s.buildView(article, authors, counts))
	}
	return out, nil
}

func (s *Service) buildView(article Article, authors map[string]users.Summary, counts map[string]VoteCounts) View {
	view := View{
		ID:          article.ID,
		Title:       article.Title,
		Content:     article.Content,
		ContentHTML: s.renderer.Render(article.Content),
		AuthorID:    article.AuthorID,
		ParentID:    article.ParentID,
		Depth:       article.Depth,
		CreatedAt:   article.CreatedAt,
		UpdatedAt:   article.UpdatedAt,
	}
	if author, ok := authors[article.AuthorID]; ok {
		view.Author = &author
	}
	if count, ok := counts[article.ID]; ok {
		view.Upvotes = count.Upvotes
		view.Downvotes = count.Downvotes
		view.VoteScore = count.Score()
	}
	return view
}
