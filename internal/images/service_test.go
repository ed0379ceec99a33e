package images

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bloggy/backend/internal/articles"
	"github.com/bloggy/backend/internal/errs"
	"github.com/bloggy/backend/internal/ids"
	"github.com/bloggy/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	users    *users.Service
	articles *articles.Service
	service  *Service
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&users.User{}, &articles.Article{}, &articles.Vote{}, &Image{}))

	userService, err := users.NewService(users.ServiceConfig{Database: db, IDProvider: ids.NewUUIDProvider()})
	require.NoError(t, err)

	store := articles.NewGormStore(db)
	dir := filepath.Join(t.TempDir(), "images")
	imageService, err := NewService(ServiceConfig{
		Database:   db,
		Articles:   store,
		Directory:  dir,
		MaxBytes:   16,
		IDProvider: ids.NewUUIDProvider(),
	})
	require.NoError(t, err)

	articleService, err := articles.NewService(articles.ServiceConfig{
		Store:       store,
		Authors:     userService,
		Attachments: imageService,
		IDProvider:  ids.NewUUIDProvider(),
	})
	require.NoError(t, err)

	return &fixture{db: db, users: userService, articles: articleService, service: imageService, dir: dir}
}

func (f *fixture) mustUser(t *testing.T, username string) users.User {
	t.Helper()
	user, err := f.users.Create(context.Background(), users.CreateInput{
		Email:    username + "@example.com",
		Username: username,
		Password: "secret123",
	})
	require.NoError(t, err)
	return user
}

func (f *fixture) mustArticle(t *testing.T, authorID string) articles.View {
	t.Helper()
	view, err := f.articles.Create(context.Background(), authorID, articles.CreateInput{Title: "With pictures", Content: "see below"})
	require.NoError(t, err)
	return view
}

func pngUpload(articleID, body string) UploadInput {
	return UploadInput{
		ArticleID:   articleID,
		Filename:    "Cat.PNG",
		ContentType: "image/png",
		Size:        int64(len(body)),
		Body:        strings.NewReader(body),
	}
}

func TestUploadStoresFileAndMetadata(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	article := f.mustArticle(t, alice.ID)

	image, err := f.service.Upload(context.Background(), alice.ID, pngUpload(article.ID, "pixels"))
	require.NoError(t, err)
	require.Equal(t, "image/png", image.Mimetype)
	require.EqualValues(t, 6, image.Size)
	require.True(t, strings.HasSuffix(image.Filename, ".png"))
	require.Equal(t, PublicPrefix+"/"+image.Filename, image.URL)
	require.Equal(t, filepath.Join(f.dir, image.Filename), image.Path)

	stored, err := os.ReadFile(image.Path)
	require.NoError(t, err)
	require.Equal(t, "pixels", string(stored))

	fetched, err := f.service.Get(context.Background(), image.ID)
	require.NoError(t, err)
	require.Equal(t, image.ID, fetched.ID)
	require.Equal(t, image.URL, fetched.URL)

	listed, err := f.service.List(context.Background(), article.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	listed, err = f.service.List(context.Background(), "other")
	require.NoError(t, err)
	require.Empty(t, listed)
}

func TestUploadRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")
	article := f.mustArticle(t, alice.ID)
	ctx := context.Background()

	testCases := []struct {
		name   string
		userID string
		input  UploadInput
		kind   errs.Kind
	}{
		{name: "missing article", userID: alice.ID, input: pngUpload("", "x"), kind: errs.KindValidation},
		{name: "unknown article", userID: alice.ID, input: pngUpload("missing", "x"), kind: errs.KindNotFound},
		{name: "not owner", userID: bob.ID, input: pngUpload(article.ID, "x"), kind: errs.KindForbidden},
		{
			name:   "wrong extension",
			userID: alice.ID,
			input:  UploadInput{ArticleID: article.ID, Filename: "notes.txt", ContentType: "image/png", Body: strings.NewReader("x")},
			kind:   errs.KindValidation,
		},
		{
			name:   "wrong content type",
			userID: alice.ID,
			input:  UploadInput{ArticleID: article.ID, Filename: "a.png", ContentType: "text/plain", Body: strings.NewReader("x")},
			kind:   errs.KindValidation,
		},
		{name: "declared too large", userID: alice.ID, input: pngUpload(article.ID, strings.Repeat("x", 17)), kind: errs.KindValidation},
		{
			name:   "body exceeds limit",
			userID: alice.ID,
			input:  UploadInput{ArticleID: article.ID, Filename: "a.gif", ContentType: "image/gif", Size: 1, Body: bytes.NewReader(make([]byte, 64))},
			kind:   errs.KindValidation,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := f.service.Upload(ctx, testCase.userID, testCase.input)
			require.True(t, errs.Is(err, testCase.kind), "got %v", err)
		})
	}

	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestDeleteRemovesRowAndFile(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")
	article := f.mustArticle(t, alice.ID)
	ctx := context.Background()

	image, err := f.service.Upload(ctx, alice.ID, pngUpload(article.ID, "pixels"))
	require.NoError(t, err)

	require.True(t, errs.Is(f.service.Delete(ctx, bob.ID, image.ID), errs.KindForbidden))
	require.NoError(t, f.service.Delete(ctx, alice.ID, image.ID))

	_, err = os.Stat(image.Path)
	require.True(t, os.IsNotExist(err))
	_, err = f.service.Get(ctx, image.ID)
	require.True(t, errs.Is(err, errs.KindNotFound))
	require.True(t, errs.Is(f.service.Delete(ctx, alice.ID, image.ID), errs.KindNotFound))
}

func TestDeleteToleratesMissingFile(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	article := f.mustArticle(t, alice.ID)
	ctx := context.Background()

	image, err := f.service.Upload(ctx, alice.ID, pngUpload(article.ID, "pixels"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(image.Path))

	require.NoError(t, f.service.Delete(ctx, alice.ID, image.ID))
}

func TestArticleDeletionRemovesFilesAndRows(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	article := f.mustArticle(t, alice.ID)
	ctx := context.Background()

	comment, err := f.articles.CreateComment(ctx, alice.ID, articles.CommentInput{ParentID: article.ID, Content: "pic in a comment"})
	require.NoError(t, err)

	onArticle, err := f.service.Upload(ctx, alice.ID, pngUpload(article.ID, "one"))
	require.NoError(t, err)
	onComment, err := f.service.Upload(ctx, alice.ID, pngUpload(comment.ID, "two"))
	require.NoError(t, err)

	require.NoError(t, f.articles.Delete(ctx, article.ID, alice.ID))

	for _, path := range []string{onArticle.Path, onComment.Path} {
		_, err := os.Stat(path)
		require.True(t, os.IsNotExist(err))
	}
	var remaining int64
	require.NoError(t, f.db.Model(&Image{}).Count(&remaining).Error)
	require.Zero(t, remaining)
}
