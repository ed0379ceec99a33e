package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bloggy/backend/internal/articles"
	"github.com/bloggy/backend/internal/errs"
	"github.com/bloggy/backend/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PublicPrefix is the URL path uploaded files are served under.
const PublicPrefix = "/uploads"

const (
	opServiceNew  = "images.service.new"
	opUpload      = "images.upload"
	opList        = "images.list"
	opGet         = "images.get"
	opDelete      = "images.delete"
	opRemoveFiles = "images.remove_files"

	defaultMaxBytes = 5 * 1024 * 1024
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingArticles   = errors.New("article reader is required")
	errMissingDirectory  = errors.New("upload directory is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingArticleID  = errors.New("articleId is required")
	errUnsupportedType   = errors.New("only image files (jpg, jpeg, png, gif, webp) are allowed")
	errTooLarge          = errors.New("file exceeds the upload size limit")
	errNotOwner          = errors.New("only the article author may manage its images")
	errImageNotFound     = errors.New("image not found")
	noOpLogger           = zap.NewNop()

	allowedTypes = map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".gif":  "image/gif",
		".webp": "image/webp",
	}
)

// ArticleReader loads the node an image is attached to.
type ArticleReader interface {
	FindByID(ctx context.Context, id string) (articles.Article, error)
}

// ServiceConfig describes the dependencies required by the image service.
type ServiceConfig struct {
	Database   *gorm.DB
	Articles   ArticleReader
	Directory  string
	MaxBytes   int64
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service stores uploaded images on disk and their metadata in the database.
type Service struct {
	db         *gorm.DB
	articles   ArticleReader
	directory  string
	maxBytes   int64
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// UploadInput describes one uploaded file.
type UploadInput struct {
	ArticleID   string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errs.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Articles == nil {
		return nil, errs.Internal(opServiceNew, "missing_articles", errMissingArticles)
	}
	if strings.TrimSpace(cfg.Directory) == "" {
		return nil, errs.Internal(opServiceNew, "missing_directory", errMissingDirectory)
	}
	if cfg.IDProvider == nil {
		return nil, errs.Internal(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, errs.Internal(opServiceNew, "create_directory_failed", err)
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		articles:   cfg.Articles,
		directory:  cfg.Directory,
		maxBytes:   maxBytes,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Directory is where uploaded files are written.
func (s *Service) Directory() string {
	return s.directory
}

// MaxBytes is the per-file upload limit.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Upload validates and stores an image for a node owned by userID.
func (s *Service) Upload(ctx context.Context, userID string, input UploadInput) (Image, error) {
	articleID := strings.TrimSpace(input.ArticleID)
	if articleID == "" {
		return Image{}, errs.Validation(opUpload, "missing_article_id", errMissingArticleID)
	}
	ext := strings.ToLower(filepath.Ext(input.Filename))
	mimetype, ok := allowedTypes[ext]
	if !ok || !acceptedContentType(input.ContentType) {
		return Image{}, errs.Validation(opUpload, "unsupported_type", errUnsupportedType)
	}
	if input.Size > s.maxBytes {
		return Image{}, errs.Validation(opUpload, "too_large", errTooLarge)
	}
	if err := s.ensureOwner(ctx, opUpload, articleID, userID); err != nil {
		return Image{}, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opUpload, "id_generation_failed", err)
		return Image{}, errs.Internal(opUpload, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	filename := fmt.Sprintf("%d-%s%s", now.UnixNano(), id, ext)
	path := filepath.Join(s.directory, filename)

	written, err := s.writeFile(path, input.Body)
	if err != nil {
		s.removeFile(path)
		if errors.Is(err, errTooLarge) {
			return Image{}, errs.Validation(opUpload, "too_large", err)
		}
		s.logError(opUpload, "write_failed", err, zap.String("path", path))
		return Image{}, errs.Internal(opUpload, "write_failed", err)
	}

	image := Image{
		ID:        id,
		Filename:  filename,
		Path:      path,
		Mimetype:  mimetype,
		Size:      written,
		ArticleID: articleID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Omit("Article").Create(&image).Error; err != nil {
		s.removeFile(path)
		s.logError(opUpload, "insert_failed", err, zap.String("article_id", articleID))
		return Image{}, errs.Internal(opUpload, "insert_failed", err)
	}
	return withURL(image), nil
}

// List returns images, optionally restricted to one node.
func (s *Service) List(ctx context.Context, articleID string) ([]Image, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if trimmed := strings.TrimSpace(articleID); trimmed != "" {
		query = query.Where("article_id = ?", trimmed)
	}
	var images []Image
	if err := query.Find(&images).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, errs.Internal(opList, "query_failed", err)
	}
	for index := range images {
		images[index] = withURL(images[index])
	}
	return images, nil
}

func (s *Service) Get(ctx context.Context, id string) (Image, error) {
	var image Image
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&image).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Image{}, errs.NotFound(opGet, "image_not_found", errImageNotFound)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err)
		return Image{}, errs.Internal(opGet, "query_failed", err)
	}
	return withURL(image), nil
}

// Delete removes an image row and its file. A missing file is logged, not
// reported.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	image, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.ensureOwner(ctx, opDelete, image.ArticleID, userID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("id = ?", image.ID).Delete(&Image{}).Error; err != nil {
		s.logError(opDelete, "delete_failed", err, zap.String("image_id", id))
		return errs.Internal(opDelete, "delete_failed", err)
	}
	s.removeFile(image.Path)
	return nil
}

// RemoveArticleFiles deletes the stored files of every image attached to the
// given nodes. Rows are left for the cascading delete.
func (s *Service) RemoveArticleFiles(ctx context.Context, articleIDs []string) {
	if len(articleIDs) == 0 {
		return
	}
	var images []Image
	if err := s.db.WithContext(ctx).Where("article_id IN ?", articleIDs).Find(&images).Error; err != nil {
		s.logError(opRemoveFiles, "query_failed", err)
		return
	}
	for _, image := range images {
		s.removeFile(image.Path)
	}
}

func (s *Service) ensureOwner(ctx context.Context, operation, articleID, userID string) error {
	article, err := s.articles.FindByID(ctx, articleID)
	if errors.Is(err, articles.ErrNodeNotFound) {
		return errs.NotFound(operation, "article_not_found", err)
	}
	if err != nil {
		s.logError(operation, "article_lookup_failed", err, zap.String("article_id", articleID))
		return errs.Internal(operation, "article_lookup_failed", err)
	}
	if article.AuthorID != userID {
		return errs.Forbidden(operation, "not_owner", errNotOwner)
	}
	return nil
}

func (s *Service) writeFile(path string, body io.Reader) (int64, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	written, copyErr := io.Copy(file, io.LimitReader(body, s.maxBytes+1))
	closeErr := file.Close()
	if copyErr != nil {
		return 0, copyErr
	}
	if closeErr != nil {
		return 0, closeErr
	}
	if written > s.maxBytes {
		return 0, errTooLarge
	}
	return written, nil
}

func (s *Service) removeFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil {
		s.logger.Warn("image file removal failed", zap.String("path", path), zap.Error(err))
	}
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
	s.logger.Error("images service error", attrs...)
}

func acceptedContentType(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch mediaType {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func withURL(image Image) Image {
	image.URL = PublicPrefix + "/" + image.Filename
	return image
}
