package articles

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bloggy/backend/internal/ids"
	"github.com/bloggy/backend/internal/notifications"
	"github.com/bloggy/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordedEvent struct {
	room    string
	event   string
	payload any
}

type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEvents) Broadcast(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{event: event, payload: payload})
}

func (r *recordingEvents) PublishToRoom(room, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{room: room, event: event, payload: payload})
}

func (r *recordingEvents) named(event string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, recorded := range r.events {
		if recorded.event == event {
			out = append(out, recorded)
		}
	}
	return out
}

type nopUserPublisher struct{}

func (nopUserPublisher) PublishToUser(string, string, any) {}

type recordingCleaner struct {
	removed [][]string
}

func (c *recordingCleaner) RemoveArticleFiles(_ context.Context, articleIDs []string) {
	c.removed = append(c.removed, append([]string(nil), articleIDs...))
}

// countingStore wraps a Store to count child lookups.
type countingStore struct {
	Store
	childQueries int
}

func (c *countingStore) FindChildrenOf(ctx context.Context, parentIDs []string) ([]Article, error) {
	c.childQueries++
	return c.Store.FindChildrenOf(ctx, parentIDs)
}

type fixture struct {
	db            *gorm.DB
	users         *users.Service
	notifications *notifications.Service
	store         *countingStore
	events        *recordingEvents
	cleaner       *recordingCleaner
	service       *Service
	clockMu       sync.Mutex
	now           time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&users.User{}, &Article{}, &Vote{}, &notifications.Notification{}))

	f := &fixture{
		db:      db,
		events:  &recordingEvents{},
		cleaner: &recordingCleaner{},
		store:   &countingStore{Store: NewGormStore(db)},
		now:     time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time {
		f.clockMu.Lock()
		defer f.clockMu.Unlock()
		f.now = f.now.Add(time.Second)
		return f.now
	}

	f.users, err = users.NewService(users.ServiceConfig{Database: db, IDProvider: ids.NewUUIDProvider(), Clock: clock})
	require.NoError(t, err)
	f.notifications, err = notifications.NewService(notifications.ServiceConfig{
		Database:   db,
		Directory:  f.users,
		Publisher:  nopUserPublisher{},
		IDProvider: ids.NewUUIDProvider(),
		Clock:      clock,
	})
	require.NoError(t, err)
	f.service, err = NewService(ServiceConfig{
		Store:       f.store,
		Authors:     f.users,
		Notifier:    f.notifications,
		Events:      f.events,
		Attachments: f.cleaner,
		Clock:       clock,
		IDProvider:  ids.NewUUIDProvider(),
	})
	require.NoError(t, err)
	return f
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

func (f *fixture) mustArticle(t *testing.T, authorID, title string) View {
	t.Helper()
	view, err := f.service.Create(context.Background(), authorID, CreateInput{
		Title:   title,
		Content: "body of " + title,
	})
	require.NoError(t, err)
	return view
}

func (f *fixture) mustComment(t *testing.T, authorID, parentID, content string) View {
	t.Helper()
	view, err := f.service.CreateComment(context.Background(), authorID, CommentInput{
		ParentID: parentID,
		Content:  content,
	})
	require.NoError(t, err)
	return view
}

func (f *fixture) notificationsFor(t *testing.T, userID string) []notifications.View {
	t.Helper()
	views, err := f.notifications.ListForUser(context.Background(), userID)
	require.NoError(t, err)
	return views
}

func (f *fixture) voteRows(t *testing.T, articleID, userID string) []Vote {
	t.Helper()
	var rows []Vote
	require.NoError(t, f.db.Where("article_id = ? AND user_id = ?", articleID, userID).Find(&rows).Error)
	return rows
}
