package articles

import (
	"context"
	"testing"

	"github.com/bloggy/backend/internal/errs"
	"github.com/stretchr/testify/require"
)

func TestLoadCommentRepliesSortsByScoreThenRecency(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")
	carol := f.mustUser(t, "carol")
	ctx := context.Background()

	article := f.mustArticle(t, alice.ID, "Sorting")
	oldest := f.mustComment(t, bob.ID, article.ID, "oldest, score 0")
	popular := f.mustComment(t, bob.ID, article.ID, "popular, score 2")
	disliked := f.mustComment(t, bob.ID, article.ID, "disliked, score -1")
	newest := f.mustComment(t, bob.ID, article.ID, "newest, score 0")

	for _, voter := range []string{alice.ID, carol.ID} {
		_, err := f.service.Upvote(ctx, popular.ID, voter)
		require.NoError(t, err)
	}
	_, err := f.service.Downvote(ctx, disliked.ID, carol.ID)
	require.NoError(t, err)

	replies, err := f.service.LoadCommentReplies(ctx, article.ID, 1)
	require.NoError(t, err)
	require.Len(t, replies, 4)

	order := []string{replies[0].ID, replies[1].ID, replies[2].ID, replies[3].ID}
	require.Equal(t, []string{popular.ID, newest.ID, oldest.ID, disliked.ID}, order)
	require.EqualValues(t, 2, replies[0].VoteScore)
	require.EqualValues(t, -1, replies[3].VoteScore)
	require.EqualValues(t, 1, replies[3].Downvotes)
}

func TestLoadCommentRepliesHonoursDepthBound(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	ctx := context.Background()

	article := f.mustArticle(t, alice.ID, "Deep thread")
	level1 := f.mustComment(t, alice.ID, article.ID, "l1")
	level2 := f.mustComment(t, alice.ID, level1.ID, "l2")
	f.mustComment(t, alice.ID, level2.ID, "l3")

	replies, err := f.service.LoadCommentReplies(ctx, article.ID, 2)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	require.Equal(t, level1.ID, replies[0].ID)
	require.Len(t, replies[0].Comments, 1)
	require.Equal(t, level2.ID, replies[0].Comments[0].ID)
	require.NotNil(t, replies[0].Comments[0].Comments)
	require.Empty(t, replies[0].Comments[0].Comments)

	replies, err = f.service.LoadCommentReplies(ctx, level1.ID, 5)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	require.Len(t, replies[0].Comments, 1)
	require.Empty(t, replies[0].Comments[0].Comments)
}

func TestLoadCommentRepliesZeroAndNegativeDepth(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	ctx := context.Background()

	article := f.mustArticle(t, alice.ID, "Shallow")
	f.mustComment(t, alice.ID, article.ID, "ignored")

	for _, depth := range []int{0, -3} {
		replies, err := f.service.LoadCommentReplies(ctx, article.ID, depth)
		require.NoError(t, err)
		require.NotNil(t, replies)
		require.Empty(t, replies)
	}
}

func TestLoadCommentRepliesNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.LoadCommentReplies(context.Background(), "missing", 2)
	require.True(t, errs.Is(err, errs.KindNotFound))
}

func TestLoadCommentRepliesBatchesPerLevel(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	ctx := context.Background()

	article := f.mustArticle(t, alice.ID, "Wide thread")
	for i := 0; i < 5; i++ {
		comment := f.mustComment(t, alice.ID, article.ID, "top")
		for j := 0; j < 3; j++ {
			f.mustComment(t, alice.ID, comment.ID, "nested")
		}
	}

	f.store.childQueries = 0
	replies, err := f.service.LoadCommentReplies(ctx, article.ID, 2)
	require.NoError(t, err)
	require.Len(t, replies, 5)
	for _, reply := range replies {
		require.Len(t, reply.Comments, 3)
	}
	require.Equal(t, 2, f.store.childQueries)
}

func TestLoadThreadIncludesRootAttributes(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")
	ctx := context.Background()

	article := f.mustArticle(t, alice.ID, "Full view")
	f.mustComment(t, bob.ID, article.ID, "comment")
	_, err := f.service.Upvote(ctx, article.ID, bob.ID)
	require.NoError(t, err)

	thread, err := f.service.LoadThread(ctx, article.ID, DefaultTreeDepth)
	require.NoError(t, err)
	require.Equal(t, article.ID, thread.ID)
	require.Equal(t, "Full view", thread.Title)
	require.EqualValues(t, 1, thread.Upvotes)
	require.Equal(t, "alice", thread.Author.Username)
	require.Len(t, thread.Comments, 1)
	require.Equal(t, "bob", thread.Comments[0].Author.Username)

	thread, err = f.service.LoadThread(ctx, article.ID, 0)
	require.NoError(t, err)
	require.NotNil(t, thread.Comments)
	require.Empty(t, thread.Comments)
}

func TestCollectSubtreeIDs(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")

	article := f.mustArticle(t, alice.ID, "Subtree")
	left := f.mustComment(t, alice.ID, article.ID, "left")
	right := f.mustComment(t, alice.ID, article.ID, "right")
	leaf := f.mustComment(t, alice.ID, left.ID, "leaf")

	collected, err := f.service.CollectSubtreeIDs(context.Background(), article.ID)
	require.NoError(t, err)
	require.Equal(t, article.ID, collected[0])
	require.ElementsMatch(t, []string{article.ID, left.ID, right.ID, leaf.ID}, collected)
}
