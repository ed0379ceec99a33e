package articles

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bloggy/backend/internal/errs"
	"github.com/bloggy/backend/internal/ids"
	"github.com/bloggy/backend/internal/markdown"
	"github.com/bloggy/backend/internal/notifications"
	"github.com/bloggy/backend/internal/users"
	"go.uber.org/zap"
)

var (
	errMissingStore      = errors.New("article store is required")
	errMissingAuthors    = errors.New("author directory is required")
	errMissingIDProvider = errors.New("id provider is required")
	errAuthorNotFound    = errors.New("author not found")
	errVoterNotFound     = errors.New("voter not found")
	errParentNotFound    = errors.New("parent article not found")
	errNotOwner          = errors.New("only the author may modify this article")
	errMissingTitle      = errors.New("title is required")
	errMissingContent    = errors.New("content is required")
	errMissingParent     = errors.New("parent id is required")
	errBrokenChain       = errors.New("parent chain longer than node depth")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew    = "articles.service.new"
	opCreate        = "articles.create"
	opCreateComment = "articles.create_comment"
	opList          = "articles.list"
	opGet           = "articles.get"
	opUpdate        = "articles.update"
	opDelete        = "articles.delete"
	opSearch        = "articles.search"
	opListComments  = "articles.list_comments"
	opLoadReplies   = "articles.load_replies"
	opLoadThread    = "articles.load_thread"
	opUpvote        = "articles.upvote"
	opDownvote      = "articles.downvote"
	opVotes         = "articles.votes"
	opResolveRoot   = "articles.resolve_root"
	opNotify        = "articles.notify"
	opViews         = "articles.views"
	opRemoveAuthor  = "articles.remove_author_attachments"

	defaultSearchLimit = 10
	maxSearchLimit     = 100
	commentTitlePrefix = "Re: "
)

// AuthorDirectory resolves public author summaries.
type AuthorDirectory interface {
	Summaries(ctx context.Context, userIDs []string) (map[string]users.Summary, error)
}

// Notifier records in-app notifications.
type Notifier interface {
	CreateNotification(ctx context.Context, input notifications.Input) (*notifications.View, error)
}

// EventPublisher fans realtime events out to connected clients.
type EventPublisher interface {
	Broadcast(event string, payload any)
	PublishToRoom(room, event string, payload any)
}

// AttachmentCleaner removes stored files that belong to nodes about to be deleted.
type AttachmentCleaner interface {
	RemoveArticleFiles(ctx context.Context, articleIDs []string)
}

// ServiceConfig describes the dependencies required by the article service.
type ServiceConfig struct {
	Store       Store
	Authors     AuthorDirectory
	Notifier    Notifier
	Events      EventPublisher
	Attachments AttachmentCleaner
	Renderer    *markdown.Renderer
	Clock       func() time.Time
	IDProvider  ids.Provider
	Logger      *zap.Logger
}

// Service implements article, comment, tree and vote operations.
type Service struct {
	store       Store
	authors     AuthorDirectory
	notifier    Notifier
	events      EventPublisher
	attachments AttachmentCleaner
	renderer    *markdown.Renderer
	clock       func() time.Time
	idProvider  ids.Provider
	logger      *zap.Logger
}

// CreateInput holds the fields of a new node. A non-nil ParentID makes it a comment.
type CreateInput struct {
	Title    string
	Content  string
	ParentID *string
}

// CommentInput holds the fields of a new comment or reply.
type CommentInput struct {
	ParentID string
	Content  string
	Title    string
}

// UpdateInput carries optional title/content changes.
type UpdateInput struct {
	Title   *string
	Content *string
}

// SearchResult is one page of top-level articles.
type SearchResult struct {
	Data  []View `json:"data"`
	Total int64  `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errs.Internal(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.Authors == nil {
		return nil, errs.Internal(opServiceNew, "missing_authors", errMissingAuthors)
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
	renderer := cfg.Renderer
	if renderer == nil {
		renderer = markdown.NewRenderer()
	}
	var events EventPublisher = noopPublisher{}
	if cfg.Events != nil {
		events = cfg.Events
	}

	return &Service{
		store:       cfg.Store,
		authors:     cfg.Authors,
		notifier:    cfg.Notifier,
		events:      events,
		attachments: cfg.Attachments,
		renderer:    renderer,
		clock:       clock,
		idProvider:  cfg.IDProvider,
		logger:      logger,
	}, nil
}

// Create stores a new article, or a comment when input.ParentID is set.
func (s *Service) Create(ctx context.Context, authorID string, input CreateInput) (View, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return View{}, errs.Validation(opCreate, "missing_title", errMissingTitle)
	}
	if strings.TrimSpace(input.Content) == "" {
		return View{}, errs.Validation(opCreate, "missing_content", errMissingContent)
	}

	var parent *Article
	if input.ParentID != nil && strings.TrimSpace(*input.ParentID) != "" {
		found, err := s.findNode(ctx, opCreate, strings.TrimSpace(*input.ParentID))
		if err != nil {
			if errs.Is(err, errs.KindNotFound) {
				return View{}, errs.NotFound(opCreate, "parent_not_found", errParentNotFound)
			}
			return View{}, err
		}
		parent = &found
	}

	node, view, err := s.insertNode(ctx, opCreate, authorID, title, input.Content, parent)
	if err != nil {
		return View{}, err
	}
	if parent == nil {
		s.events.Broadcast(EventArticleCreated, view)
	} else {
		s.afterComment(ctx, *parent, node, view)
	}
	return view, nil
}

// CreateComment stores a comment or reply under input.ParentID. The title
// defaults to "Re: <parent title>".
func (s *Service) CreateComment(ctx context.Context, authorID string, input CommentInput) (View, error) {
	parentID := strings.TrimSpace(input.ParentID)
	if parentID == "" {
		return View{}, errs.Validation(opCreateComment, "missing_parent_id", errMissingParent)
	}
	if strings.TrimSpace(input.Content) == "" {
		return View{}, errs.Validation(opCreateComment, "missing_content", errMissingContent)
	}

	parent, err := s.findNode(ctx, opCreateComment, parentID)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return View{}, errs.NotFound(opCreateComment, "parent_not_found", errParentNotFound)
		}
		return View{}, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = commentTitlePrefix + parent.Title
	}

	node, view, err := s.insertNode(ctx, opCreateComment, authorID, title, input.Content, &parent)
	if err != nil {
		return View{}, err
	}
	s.afterComment(ctx, parent, node, view)
	return view, nil
}

// List returns top-level articles, newest first.
func (s *Service) List(ctx context.Context) ([]View, error) {
	articles, err := s.store.ListTopLevel(ctx)
	if err != nil {
		s.logError(opList, "query_failed", err)
		return nil, errs.Internal(opList, "query_failed", err)
	}
	return s.views(ctx, articles)
}

// Get returns a single node.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	node, err := s.findNode(ctx, opGet, id)
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, node)
}

// GetWithComments returns a node and its direct comments, newest first.
func (s *Service) GetWithComments(ctx context.Context, id string) (Detail, error) {
	node, err := s.findNode(ctx, opGet, id)
	if err != nil {
		return Detail{}, err
	}
	children, err := s.store.FindChildrenOf(ctx, []string{node.ID})
	if err != nil {
		s.logError(opGet, "comments_query_failed", err, zap.String("article_id", node.ID))
		return Detail{}, errs.Internal(opGet, "comments_query_failed", err)
	}
	views, err := s.views(ctx, append([]Article{node}, children...))
	if err != nil {
		return Detail{}, err
	}
	return Detail{View: views[0], Comments: views[1:]}, nil
}

// Update changes the title and/or content of a node owned by userID.
func (s *Service) Update(ctx context.Context, id, userID string, input UpdateInput) (View, error) {
	node, err := s.findNode(ctx, opUpdate, id)
	if err != nil {
		return View{}, err
	}
	if node.AuthorID != userID {
		return View{}, errs.Forbidden(opUpdate, "not_owner", errNotOwner)
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return View{}, errs.Validation(opUpdate, "missing_title", errMissingTitle)
		}
		node.Title = title
	}
	if input.Content != nil {
		if strings.TrimSpace(*input.Content) == "" {
			return View{}, errs.Validation(opUpdate, "missing_content", errMissingContent)
		}
		node.Content = *input.Content
	}
	node.UpdatedAt = s.clock().UTC()

	if err := s.store.Save(ctx, &node); err != nil {
		s.logError(opUpdate, "save_failed", err, zap.String("article_id", id))
		return View{}, errs.Internal(opUpdate, "save_failed", err)
	}

	view, err := s.view(ctx, node)
	if err != nil {
		return View{}, err
	}
	s.events.Broadcast(EventArticleUpdated, view)
	return view, nil
}

// Delete removes a node owned by userID. Descendants are removed by the
// store's cascading foreign key; their attachment files are removed first.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	node, err := s.findNode(ctx, opDelete, id)
	if err != nil {
		return err
	}
	if node.AuthorID != userID {
		return errs.Forbidden(opDelete, "not_owner", errNotOwner)
	}

	if s.attachments != nil {
		subtree, err := s.CollectSubtreeIDs(ctx, node.ID)
		if err != nil {
			return err
		}
		s.attachments.RemoveArticleFiles(ctx, subtree)
	}

	if err := s.store.Delete(ctx, node.ID); err != nil {
		if errors.Is(err, ErrNodeNotFound) {
			return errs.NotFound(opDelete, "article_not_found", err)
		}
		s.logError(opDelete, "delete_failed", err, zap.String("article_id", id))
		return errs.Internal(opDelete, "delete_failed", err)
	}

	s.events.Broadcast(EventArticleDeleted, ArticleDeletedEvent{ID: node.ID, AuthorID: node.AuthorID})
	return nil
}

// RemoveAuthorAttachments removes the stored files of every node authored
// by authorID and of everything below those nodes. It runs before the
// account is deleted, since the cascade drops the image rows but not the files.
func (s *Service) RemoveAuthorAttachments(ctx context.Context, authorID string) error {
	if s.attachments == nil {
		return nil
	}
	authored, err := s.store.FindIDsByAuthor(ctx, authorID)
	if err != nil {
		s.logError(opRemoveAuthor, "query_failed", err, zap.String("author_id", authorID))
		return errs.Internal(opRemoveAuthor, "query_failed", err)
	}
	if len(authored) == 0 {
		return nil
	}
	subtree, err := s.collectSubtrees(ctx, opRemoveAuthor, authored)
	if err != nil {
		return err
	}
	s.attachments.RemoveArticleFiles(ctx, subtree)
	return nil
}

// ListComments returns the direct comments of a node, newest first.
func (s *Service) ListComments(ctx context.Context, id string) ([]View, error) {
	if _, err := s.findNode(ctx, opListComments, id); err != nil {
		return nil, err
	}
	children, err := s.store.FindChildrenOf(ctx, []string{id})
	if err != nil {
		s.logError(opListComments, "query_failed", err, zap.String("article_id", id))
		return nil, errs.Internal(opListComments, "query_failed", err)
	}
	return s.views(ctx, children)
}

// Search pages through top-level articles matching query.
func (s *Service) Search(ctx context.Context, query SearchQuery) (SearchResult, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit < 1 {
		query.Limit = defaultSearchLimit
	}
	if query.Limit > maxSearchLimit {
		query.Limit = maxSearchLimit
	}

	articles, total, err := s.store.Search(ctx, query)
	if err != nil {
		s.logError(opSearch, "query_failed", err)
		return SearchResult{}, errs.Internal(opSearch, "query_failed", err)
	}
	data, err := s.views(ctx, articles)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Data: data, Total: total, Page: query.Page, Limit: query.Limit}, nil
}

// RootArticleID follows parent links from id until it reaches a top-level
// article, one lookup per hop.
func (s *Service) RootArticleID(ctx context.Context, id string) (string, error) {
	node, err := s.findNode(ctx, opResolveRoot, id)
	if err != nil {
		return "", err
	}
	return s.rootOf(ctx, node)
}

func (s *Service) rootOf(ctx context.Context, node Article) (string, error) {
	current := node
	for hops := 0; current.ParentID != nil; hops++ {
		if hops >= node.Depth {
			s.logError(opResolveRoot, "broken_chain", errBrokenChain, zap.String("article_id", node.ID))
			return "", errs.Internal(opResolveRoot, "broken_chain", errBrokenChain)
		}
		parent, err := s.findNode(ctx, opResolveRoot, *current.ParentID)
		if err != nil {
			return "", err
		}
		current = parent
	}
	return current.ID, nil
}

func (s *Service) insertNode(ctx context.Context, operation, authorID, title, content string, parent *Article) (Article, View, error) {
	authors, err := s.authors.Summaries(ctx, []string{authorID})
	if err != nil {
		return Article{}, View{}, errs.Internal(operation, "author_lookup_failed", err)
	}
	if _, ok := authors[authorID]; !ok {
		return Article{}, View{}, errs.NotFound(operation, "author_not_found", errAuthorNotFound)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, "id_generation_failed", err)
		return Article{}, View{}, errs.Internal(operation, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	node := Article{
		ID:        id,
		Title:     title,
		Content:   content,
		AuthorID:  authorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if parent != nil {
		parentID := parent.ID
		node.ParentID = &parentID
		node.Depth = parent.Depth + 1
	}

	if err := s.store.Create(ctx, &node); err != nil {
		s.logError(operation, "insert_failed", err, zap.String("author_id", authorID))
		return Article{}, View{}, errs.Internal(operation, "insert_failed", err)
	}

	view := s.buildView(node, authors, nil)
	return node, view, nil
}

// afterComment publishes the new comment to the root article's room and
// notifies the parent's author.
func (s *Service) afterComment(ctx context.Context, parent, comment Article, view View) {
	rootID, err := s.rootOf(ctx, parent)
	if err != nil {
		s.logError(opNotify, "root_resolution_failed", err, zap.String("article_id", comment.ID))
		return
	}

	s.events.PublishToRoom(ArticleRoom(rootID), EventCommentCreated, CommentCreatedEvent{
		ArticleID: rootID,
		ParentID:  parent.ID,
		Comment:   view,
	})

	input := notifications.Input{
		RecipientID: parent.AuthorID,
		ActorID:     comment.AuthorID,
		ArticleID:   rootID,
	}
	if parent.IsComment() {
		input.Type = notifications.TypeReply
		input.TargetType = notifications.TargetComment
		input.CommentID = parent.ID
	} else {
		input.Type = notifications.TypeComment
		input.TargetType = notifications.TargetArticle
		input.CommentID = comment.ID
	}
	s.notify(ctx, input)
}

func (s *Service) notify(ctx context.Context, input notifications.Input) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.CreateNotification(ctx, input); err != nil {
		s.logError(opNotify, "create_notification_failed", err,
			zap.String("recipient_id", input.RecipientID),
			zap.String("type", string(input.Type)))
	}
}

func (s *Service) findNode(ctx context.Context, operation, id string) (Article, error) {
	node, err := s.store.FindByID(ctx, strings.TrimSpace(id))
	if errors.Is(err, ErrNodeNotFound) {
		return Article{}, errs.NotFound(operation, "article_not_found", err)
	}
	if err != nil {
		s.logError(operation, "select_failed", err, zap.String("article_id", id))
		return Article{}, errs.Internal(operation, "select_failed", err)
	}
	return node, nil
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
	s.logger.Error("articles service error", attrs...)
}

type noopPublisher struct{}

func (noopPublisher) Broadcast(string, any)             {}
func (noopPublisher) PublishToRoom(string, string, any) {}
