package articles

import (
	"time"

	"github.com/bloggy/backend/internal/users"
)

// Direction identifies which vote set a user belongs to for a node.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Article is a content node. Top-level articles have no parent; comments
// and replies point at the node they answer.
type Article struct {
	ID        string      `gorm:"column:id;primaryKey;size:36"`
	Title     string      `gorm:"column:title;size:255;not null"`
	Content   string      `gorm:"column:content;type:text;not null"`
	AuthorID  string      `gorm:"column:author_id;size:36;not null;index"`
	Author    *users.User `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
	ParentID  *string     `gorm:"column:parent_id;size:36;index"`
	Parent    *Article    `gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE"`
	Depth     int         `gorm:"column:depth;not null;default:0"`
	CreatedAt time.Time   `gorm:"column:created_at;not null;index"`
	UpdatedAt time.Time   `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Article) TableName() string {
	return "articles"
}

// IsComment reports whether the node answers another node.
func (a Article) IsComment() bool {
	return a.ParentID != nil
}

// Vote is one row of a node's upvoter or downvoter set. The composite
// primary key allows a single direction per (node, user).
type Vote struct {
	ArticleID string      `gorm:"column:article_id;primaryKey;size:36"`
	UserID    string      `gorm:"column:user_id;primaryKey;size:36;index"`
	Direction Direction   `gorm:"column:direction;size:8;not null"`
	CreatedAt time.Time   `gorm:"column:created_at;not null"`
	Article   *Article    `gorm:"foreignKey:ArticleID;constraint:OnDelete:CASCADE"`
	User      *users.User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// TableName provides the explicit table binding for GORM.
func (Vote) TableName() string {
	return "article_votes"
}

// VoteCounts are the sizes of a node's two vote sets.
type VoteCounts struct {
	Upvotes   int64
	Downvotes int64
}

// Score is upvotes minus downvotes.
func (c VoteCounts) Score() int64 {
	return c.Upvotes - c.Downvotes
}
