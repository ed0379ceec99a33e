package seed

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bloggy/backend/internal/articles"
	"github.com/bloggy/backend/internal/database"
	"github.com/bloggy/backend/internal/ids"
	"github.com/bloggy/backend/internal/users"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunSeedsOnce(t *testing.T) {
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := database.Open(database.Options{Driver: database.DriverSQLite, Path: dsn}, zap.NewNop())
	require.NoError(t, err)

	userService, err := users.NewService(users.ServiceConfig{Database: db, IDProvider: ids.NewUUIDProvider()})
	require.NoError(t, err)
	articleService, err := articles.NewService(articles.ServiceConfig{
		Store:      articles.NewGormStore(db),
		Authors:    userService,
		IDProvider: ids.NewUUIDProvider(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	result, err := Run(ctx, userService, articleService, nil)
	require.NoError(t, err)
	require.Equal(t, Result{Users: 14, Articles: 3, Comments: 3, Votes: 10}, result)

	admin, err := userService.FindByUsername(ctx, "admin")
	require.NoError(t, err)
	require.Equal(t, users.RoleAdmin, admin.Role)

	listed, err := articleService.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 3)

	var deepest articles.Article
	require.NoError(t, db.Order("depth DESC").First(&deepest).Error)
	require.Equal(t, 3, deepest.Depth)

	_, err = Run(ctx, userService, articleService, nil)
	require.True(t, errors.Is(err, ErrAlreadySeeded))
}
