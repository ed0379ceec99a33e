package notifications

import (
	"time"

	"github.com/bloggy/backend/internal/users"
)

// Type names what happened.
type Type string

const (
	TypeComment  Type = "comment"
	TypeReply    Type = "reply"
	TypeUpvote   Type = "upvote"
	TypeDownvote Type = "downvote"
)

// TargetType names what the event happened to.
type TargetType string

const (
	TargetArticle TargetType = "article"
	TargetComment TargetType = "comment"
)

// Notification is a persisted in-app notification.
type Notification struct {
	ID          string      `gorm:"column:id;primaryKey;size:36"`
	Type        Type        `gorm:"column:type;size:16;not null"`
	TargetType  TargetType  `gorm:"column:target_type;size:16;not null"`
	ActorID     string      `gorm:"column:actor_id;size:36;not null"`
	Actor       *users.User `gorm:"foreignKey:ActorID;constraint:OnDelete:CASCADE"`
	RecipientID string      `gorm:"column:recipient_id;size:36;not null;index:idx_notifications_recipient_created,priority:1"`
	Recipient   *users.User `gorm:"foreignKey:RecipientID;constraint:OnDelete:CASCADE"`
	ArticleID   *string     `gorm:"column:article_id;size:36"`
	CommentID   *string     `gorm:"column:comment_id;size:36"`
	IsRead      bool        `gorm:"column:is_read;not null;default:false"`
	CreatedAt   time.Time   `gorm:"column:created_at;not null;index:idx_notifications_recipient_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Notification) TableName() string {
	return "notifications"
}

// Input describes a notification to dispatch.
type Input struct {
	RecipientID string
	ActorID     string
	Type        Type
	TargetType  TargetType
	ArticleID   string
	CommentID   string
}

// View is the response and realtime projection of a notification.
type View struct {
	ID          string         `json:"id"`
	Type        Type           `json:"type"`
	TargetType  TargetType     `json:"targetType"`
	ActorID     string         `json:"actorId"`
	Actor       *users.Summary `json:"actor,omitempty"`
	RecipientID string         `json:"recipientId"`
	ArticleID   *string        `json:"articleId"`
	CommentID   *string        `json:"commentId"`
	IsRead      bool           `json:"isRead"`
	CreatedAt   time.Time      `json:"createdAt"`
}
