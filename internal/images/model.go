package images

import (
	"time"

	"github.com/bloggy/backend/internal/articles"
)

// Image is the metadata of an uploaded file attached to a node.
type Image struct {
	ID        string            `gorm:"column:id;primaryKey;size:36" json:"id"`
	Filename  string            `gorm:"column:filename;size:255;not null" json:"filename"`
	Path      string            `gorm:"column:path;size:1024;not null" json:"-"`
	URL       string            `gorm:"-" json:"url"`
	Mimetype  string            `gorm:"column:mimetype;size:64;not null" json:"mimetype"`
	Size      int64             `gorm:"column:size;not null" json:"size"`
	ArticleID string            `gorm:"column:article_id;size:36;not null;index" json:"articleId"`
	Article   *articles.Article `gorm:"foreignKey:ArticleID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time         `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt time.Time         `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Image) TableName() string {
	return "images"
}
