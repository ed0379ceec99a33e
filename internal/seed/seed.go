package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/bloggy/backend/internal/articles"
	"github.com/bloggy/backend/internal/users"
	"go.uber.org/zap"
)

const (
	demoPassword = "password123"
	voterCount   = 10
)

// ErrAlreadySeeded is returned when the demo accounts already exist.
var ErrAlreadySeeded = errors.New("demo data already present")

// Result counts what was created.
type Result struct {
	Users    int
	Articles int
	Comments int
	Votes    int
}

type demoUser struct {
	email    string
	username string
	name     string
	lastName string
	bio      string
	role     users.Role
}

type demoArticle struct {
	author  int
	title   string
	content string
}

var (
	demoAuthors = []demoUser{
		{email: "admin@example.com", username: "admin", name: "Site", lastName: "Admin", bio: "Keeps the lights on", role: users.RoleAdmin},
		{email: "john@example.com", username: "john_doe", name: "John", lastName: "Doe", bio: "Software developer who writes about backend services"},
		{email: "jane@example.com", username: "jane_smith", name: "Jane", lastName: "Smith", bio: "Tech blogger and full-stack developer"},
		{email: "bob@example.com", username: "bob_wilson", name: "Bob", lastName: "Wilson", bio: "Backend engineer specializing in database design"},
	}
	demoArticles = []demoArticle{
		{author: 1, title: "Getting Started with Go Services", content: "Go makes it pleasant to build small, fast network services with a tiny standard toolchain."},
		{author: 2, title: "Building a REST API with Authentication", content: "Authentication is a crucial part of any web application. This post walks through JWT bearer tokens."},
		{author: 3, title: "Designing Comment Trees in SQL", content: "Adjacency lists with a stored depth column keep threaded comments simple to query level by level."},
	}
)

// Run creates demo users, articles, a comment thread and votes.
func Run(ctx context.Context, userService *users.Service, articleService *articles.Service, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	taken, err := userService.IsTaken(ctx, demoAuthors[0].username)
	if err != nil {
		return Result{}, err
	}
	if taken {
		return Result{}, ErrAlreadySeeded
	}

	var result Result
	authors := make([]users.User, 0, len(demoAuthors))
	for _, demo := range demoAuthors {
		user, err := userService.Create(ctx, users.CreateInput{
			Email:    demo.email,
			Username: demo.username,
			Password: demoPassword,
			Name:     demo.name,
			LastName: demo.lastName,
			Bio:      demo.bio,
			Role:     demo.role,
		})
		if err != nil {
			return result, fmt.Errorf("create user %s: %w", demo.username, err)
		}
		authors = append(authors, user)
		result.Users++
	}

	voters := make([]users.User, 0, voterCount)
	for index := 1; index <= voterCount; index++ {
		voter, err := userService.Create(ctx, users.CreateInput{
			Email:    fmt.Sprintf("voter%d@example.com", index),
			Username: fmt.Sprintf("voter_%d", index),
			Password: demoPassword,
			Name:     "Voter",
			LastName: fmt.Sprintf("Number %d", index),
		})
		if err != nil {
			return result, fmt.Errorf("create voter %d: %w", index, err)
		}
		voters = append(voters, voter)
		result.Users++
	}

	posted := make([]articles.View, 0, len(demoArticles))
	for _, demo := range demoArticles {
		view, err := articleService.Create(ctx, authors[demo.author].ID, articles.CreateInput{Title: demo.title, Content: demo.content})
		if err != nil {
			return result, fmt.Errorf("create article %q: %w", demo.title, err)
		}
		posted = append(posted, view)
		result.Articles++
	}

	thread := []struct {
		author  int
		content string
	}{
		{author: 2, content: "Great introduction, thanks for writing it up!"},
		{author: 1, content: "Glad it helped. More posts are coming."},
		{author: 3, content: "Looking forward to the one about testing."},
	}
	parentID := posted[0].ID
	for _, reply := range thread {
		comment, err := articleService.CreateComment(ctx, authors[reply.author].ID, articles.CommentInput{ParentID: parentID, Content: reply.content})
		if err != nil {
			return result, fmt.Errorf("create comment: %w", err)
		}
		parentID = comment.ID
		result.Comments++
	}

	for index, voter := range voters {
		target := posted[index%len(posted)]
		toggle := articleService.Upvote
		if index%4 == 3 {
			toggle = articleService.Downvote
		}
		if _, err := toggle(ctx, target.ID, voter.ID); err != nil {
			return result, fmt.Errorf("vote on %s: %w", target.ID, err)
		}
		result.Votes++
	}

	logger.Info("demo data seeded",
		zap.Int("users", result.Users),
		zap.Int("articles", result.Articles),
		zap.Int("comments", result.Comments),
		zap.Int("votes", result.Votes))
	return result, nil
}
