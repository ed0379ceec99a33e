package notifications

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bloggy/backend/internal/errs"
	"github.com/bloggy/backend/internal/ids"
	"github.com/bloggy/backend/internal/users"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EventNotification is the realtime event carrying a new notification.
const EventNotification = "notification"

const (
	opServiceNew = "notifications.service.new"
	opCreate     = "notifications.create"
	opList       = "notifications.list"
	opMarkRead   = "notifications.mark_read"
	opDelete     = "notifications.delete"
	opActors     = "notifications.actors"

	defaultActorCacheSize = 512
	actorCacheTTL         = 5 * time.Minute
)

var (
	errMissingDatabase     = errors.New("database handle is required")
	errMissingDirectory    = errors.New("user directory is required")
	errMissingIDProvider   = errors.New("id provider is required")
	errNotificationMissing = errors.New("notification not found")
	noOpLogger             = zap.NewNop()
)

// UserPublisher delivers an event to every live connection of a user.
type UserPublisher interface {
	PublishToUser(userID, event string, payload any)
}

// Directory resolves actor summaries.
type Directory interface {
	Summaries(ctx context.Context, userIDs []string) (map[string]users.Summary, error)
}

// ServiceConfig describes the dependencies required by the dispatcher.
type ServiceConfig struct {
	Database       *gorm.DB
	Directory      Directory
	Publisher      UserPublisher
	ActorCacheSize int
	Clock          func() time.Time
	IDProvider     ids.Provider
	Logger         *zap.Logger
}

// Service persists notifications and pushes them to recipients.
type Service struct {
	db         *gorm.DB
	directory  Directory
	publisher  UserPublisher
	actors     *expirable.LRU[string, users.Summary]
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errs.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Directory == nil {
		return nil, errs.Internal(opServiceNew, "missing_directory", errMissingDirectory)
	}
	if cfg.IDProvider == nil {
		return nil, errs.Internal(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	cacheSize := cfg.ActorCacheSize
	if cacheSize <= 0 {
		cacheSize = defaultActorCacheSize
	}

	return &Service{
		db:         cfg.Database,
		directory:  cfg.Directory,
		publisher:  cfg.Publisher,
		actors:     expirable.NewLRU[string, users.Summary](cacheSize, nil, actorCacheTTL),
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreateNotification persists a notification and pushes it to the
// recipient's connections. It does nothing when the recipient is empty or is
// the actor.
func (s *Service) CreateNotification(ctx context.Context, input Input) (*View, error) {
	recipientID := strings.TrimSpace(input.RecipientID)
	if recipientID == "" || recipientID == strings.TrimSpace(input.ActorID) {
		return nil, nil
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return nil, errs.Internal(opCreate, "id_generation_failed", err)
	}

	notification := Notification{
		ID:          id,
		Type:        input.Type,
		TargetType:  input.TargetType,
		ActorID:     input.ActorID,
		RecipientID: recipientID,
		ArticleID:   optional(input.ArticleID),
		CommentID:   optional(input.CommentID),
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Omit("Actor", "Recipient").Create(&notification).Error; err != nil {
		s.logError(opCreate, "insert_failed", err,
			zap.String("recipient_id", recipientID),
			zap.String("type", string(input.Type)))
		return nil, errs.Internal(opCreate, "insert_failed", err)
	}

	views, err := s.project(ctx, []Notification{notification})
	if err != nil {
		return nil, err
	}
	view := views[0]
	if s.publisher != nil {
		s.publisher.PublishToUser(recipientID, EventNotification, view)
	}
	return &view, nil
}

// ListForUser returns the recipient's notifications, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]View, error) {
	var rows []Notification
	if err := s.db.WithContext(ctx).
		Where("recipient_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.String("user_id", userID))
		return nil, errs.Internal(opList, "query_failed", err)
	}
	return s.project(ctx, rows)
}

// MarkRead flags the given notifications of userID as read and returns how
// many rows changed.
func (s *Service) MarkRead(ctx context.Context, userID string, notificationIDs []string) (int64, error) {
	if len(notificationIDs) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("recipient_id = ? AND id IN ?", userID, notificationIDs).
		Update("is_read", true)
	if result.Error != nil {
		s.logError(opMarkRead, "update_failed", result.Error, zap.String("user_id", userID))
		return 0, errs.Internal(opMarkRead, "update_failed", result.Error)
	}
	return result.RowsAffected, nil
}

// Delete removes one of userID's notifications.
func (s *Service) Delete(ctx context.Context, userID, notificationID string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", notificationID, userID).
		Delete(&Notification{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error, zap.String("user_id", userID))
		return errs.Internal(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.NotFound(opDelete, "notification_not_found", errNotificationMissing)
	}
	return nil
}

func (s *Service) project(ctx context.Context, rows []Notification) ([]View, error) {
	actorIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		actorIDs = append(actorIDs, row.ActorID)
	}
	actors, err := s.lookupActors(ctx, actorIDs)
	if err != nil {
		return nil, err
	}

	views := make([]View, 0, len(rows))
	for _, row := range rows {
		view := View{
			ID:          row.ID,
			Type:        row.Type,
			TargetType:  row.TargetType,
			ActorID:     row.ActorID,
			RecipientID: row.RecipientID,
			ArticleID:   row.ArticleID,
			CommentID:   row.CommentID,
			IsRead:      row.IsRead,
			CreatedAt:   row.CreatedAt,
		}
		if actor, ok := actors[row.ActorID]; ok {
			view.Actor = &actor
		}
		views = append(views, view)
	}
	return views, nil
}

// lookupActors serves actor summaries from the LRU, loading misses in one query.
func (s *Service) lookupActors(ctx context.Context, actorIDs []string) (map[string]users.Summary, error) {
	found := make(map[string]users.Summary, len(actorIDs))
	missing := make([]string, 0, len(actorIDs))
	for _, actorID := range actorIDs {
		if _, ok := found[actorID]; ok {
			continue
		}
		if summary, ok := s.actors.Get(actorID); ok {
			found[actorID] = summary
			continue
		}
		missing = append(missing, actorID)
	}
	if len(missing) == 0 {
		return found, nil
	}

	loaded, err := s.directory.Summaries(ctx, missing)
	if err != nil {
		s.logError(opActors, "lookup_failed", err)
		return nil, errs.Internal(opActors, "lookup_failed", err)
	}
	for actorID, summary := range loaded {
		summary.Email = ""
		s.actors.Add(actorID, summary)
		found[actorID] = summary
	}
	return found, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("notifications service error", attrs...)
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
