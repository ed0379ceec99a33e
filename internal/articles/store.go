package articles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNodeNotFound is returned by a Store when no node has the requested id.
var ErrNodeNotFound = errors.New("article not found")

// likeEscaper makes user text match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

const (
	tableArticles        = "articles"
	tableVotes           = "article_votes"
	articleFieldID       = "id"
	articleFieldTitle    = "title"
	articleFieldContent  = "content"
	articleFieldAuthorID = "author_id"
	articleFieldParentID = "parent_id"
	articleFieldDepth    = "depth"
	articleFieldCreated  = "created_at"
	articleFieldUpdated  = "updated_at"
	voteFieldArticleID   = "article_id"
	voteFieldUserID      = "user_id"
	voteFieldDirection   = "direction"
)

func articleColumns() []string {
	return []string{
		articleFieldID,
		articleFieldTitle,
		articleFieldContent,
		articleFieldAuthorID,
		articleFieldParentID,
		articleFieldDepth,
		articleFieldCreated,
		articleFieldUpdated,
	}
}

// SortField is a column search results may be ordered by.
type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByUpdatedAt SortField = "updatedAt"
	SortByTitle     SortField = "title"
)

// SearchQuery filters and pages top-level articles.
type SearchQuery struct {
	Text       string
	AuthorID   string
	Page       int
	Limit      int
	SortBy     SortField
	Descending bool
}

// Store is the persistence gateway over content nodes and their vote sets.
type Store interface {
	FindByID(ctx context.Context, id string) (Article, error)
	FindChildrenOf(ctx context.Context, parentIDs []string) ([]Article, error)
	FindIDsByAuthor(ctx context.Context, authorID string) ([]string, error)
	ListTopLevel(ctx context.Context) ([]Article, error)
	Search(ctx context.Context, query SearchQuery) ([]Article, int64, error)
	Create(ctx context.Context, article *Article) error
	Save(ctx context.Context, article *Article) error
	Delete(ctx context.Context, id string) error
	AddVote(ctx context.Context, vote Vote) error
	RemoveVote(ctx context.Context, articleID, userID string, direction Direction) (bool, error)
	VoteOf(ctx context.Context, articleID, userID string) (Direction, error)
	CountVotes(ctx context.Context, articleIDs []string) (map[string]VoteCounts, error)
	Transaction(ctx context.Context, fn func(Store) error) error
}

type gormStore struct {
	db *gorm.DB
}

// NewGormStore returns a Store backed by gorm.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) FindByID(ctx context.Context, id string) (Article, error) {
	var article Article
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&article).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Article{}, ErrNodeNotFound
	}
	if err != nil {
		return Article{}, err
	}
	return article, nil
}

func (s *gormStore) FindChildrenOf(ctx context.Context, parentIDs []string) ([]Article, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	var children []Article
	err := s.db.WithContext(ctx).
		Where("parent_id IN ?", parentIDs).
		Order("created_at DESC").
		Order("id DESC").
		Find(&children).Error
	if err != nil {
		return nil, err
	}
	return children, nil
}

func (s *gormStore) FindIDsByAuthor(ctx context.Context, authorID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&Article{}).
		Where("author_id = ?", authorID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *gormStore) ListTopLevel(ctx context.Context) ([]Article, error) {
	var articles []Article
	err := s.db.WithContext(ctx).
		Where("parent_id IS NULL").
		Order("created_at DESC").
		Order("id DESC").
		Find(&articles).Error
	if err != nil {
		return nil, err
	}
	return articles, nil
}

func (s *gormStore) Search(ctx context.Context, query SearchQuery) ([]Article, int64, error) {
	filter := sq.And{sq.Eq{articleFieldParentID: nil}}
	if text := strings.ToLower(strings.TrimSpace(query.Text)); text != "" {
		pattern := "%" + likeEscaper.Replace(text) + "%"
		filter = append(filter, sq.Or{
			sq.Expr("LOWER("+articleFieldTitle+") LIKE ? ESCAPE '\\'", pattern),
			sq.Expr("LOWER("+articleFieldContent+") LIKE ? ESCAPE '\\'", pattern),
		})
	}
	if authorID := strings.TrimSpace(query.AuthorID); authorID != "" {
		filter = append(filter, sq.Eq{articleFieldAuthorID: authorID})
	}

	countSQL, countArgs, err := sq.Select("COUNT(*)").From(tableArticles).Where(filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var total int64
	if err := s.db.WithContext(ctx).Raw(countSQL, countArgs...).Scan(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "ASC"
	if query.Descending {
		order = "DESC"
	}
	offset := uint64((query.Page - 1) * query.Limit)
	listSQL, listArgs, err := sq.Select(articleColumns()...).
		From(tableArticles).
		Where(filter).
		OrderBy(sortColumn(query.SortBy)+" "+order, articleFieldID+" "+order).
		Limit(uint64(query.Limit)).
		Offset(offset).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build search query: %w", err)
	}
	var articles []Article
	if err := s.db.WithContext(ctx).Raw(listSQL, listArgs...).Scan(&articles).Error; err != nil {
		return nil, 0, err
	}
	return articles, total, nil
}

func (s *gormStore) Create(ctx context.Context, article *Article) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(article).Error
}

func (s *gormStore) Save(ctx context.Context, article *Article) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Save(article).Error
}

func (s *gormStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Article{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNodeNotFound
	}
	return nil
}

// AddVote places the user in the vote set for vote.Direction, moving them
// out of the opposite set when present.
func (s *gormStore) AddVote(ctx context.Context, vote Vote) error {
	return s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: voteFieldArticleID}, {Name: voteFieldUserID}},
			DoUpdates: clause.AssignmentColumns([]string{voteFieldDirection, "created_at"}),
		}).
		Create(&vote).Error
}

// RemoveVote deletes the user from the direction's vote set and reports
// whether they were a member.
func (s *gormStore) RemoveVote(ctx context.Context, articleID, userID string, direction Direction) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("article_id = ? AND user_id = ? AND direction = ?", articleID, userID, direction).
		Delete(&Vote{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *gormStore) VoteOf(ctx context.Context, articleID, userID string) (Direction, error) {
	var vote Vote
	err := s.db.WithContext(ctx).
		Where("article_id = ? AND user_id = ?", articleID, userID).
		Take(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return vote.Direction, nil
}

type voteCountRow struct {
	ArticleID string
	Upvotes   int64
	Downvotes int64
}

func (s *gormStore) CountVotes(ctx context.Context, articleIDs []string) (map[string]VoteCounts, error) {
	counts := make(map[string]VoteCounts, len(articleIDs))
	if len(articleIDs) == 0 {
		return counts, nil
	}

	query, args, err := sq.Select(
		voteFieldArticleID,
		"COUNT(CASE WHEN direction = 'up' THEN 1 END) AS upvotes",
		"COUNT(CASE WHEN direction = 'down' THEN 1 END) AS downvotes",
	).
		From(tableVotes).
		Where(sq.Eq{voteFieldArticleID: articleIDs}).
		GroupBy(voteFieldArticleID).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build vote count query: %w", err)
	}

	var rows []voteCountRow
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ArticleID] = VoteCounts{Upvotes: row.Upvotes, Downvotes: row.Downvotes}
	}
	return counts, nil
}

func (s *gormStore) Transaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func sortColumn(field SortField) string {
	switch field {
	case SortByUpdatedAt:
		return articleFieldUpdated
	case SortByTitle:
		return articleFieldTitle
	default:
		return articleFieldCreated
	}
}
