package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bloggy/backend/internal/articles"
	"github.com/bloggy/backend/internal/images"
	"github.com/gin-gonic/gin"
)

const depthQueryKey = "depth"

type createArticleRequest struct {
	Title    string  `json:"title" validate:"required,notblank,min=3,max=255"`
	Content  string  `json:"content" validate:"required,notblank,min=10"`
	ParentID *string `json:"parentId" validate:"omitnil,notblank"`
}

type createCommentRequest struct {
	ParentID string `json:"parentId" validate:"required,notblank"`
	Content  string `json:"content" validate:"required,notblank,min=1"`
	Title    string `json:"title" validate:"max=255"`
}

type updateArticleRequest struct {
	Title   *string `json:"title" validate:"omitnil,notblank,min=3,max=255"`
	Content *string `json:"content" validate:"omitnil,notblank,min=10"`
}

type searchArticlesRequest struct {
	Query     string `form:"q"`
	AuthorID  string `form:"authorId"`
	Page      int    `form:"page" validate:"gte=0"`
	Limit     int    `form:"limit" validate:"gte=0,lte=100"`
	SortBy    string `form:"sortBy" validate:"omitempty,oneof=createdAt updatedAt title"`
	SortOrder string `form:"sortOrder" validate:"omitempty,oneof=ASC DESC asc desc"`
}

func (h *httpHandler) handleCreateArticle(c *gin.Context) {
	var request createArticleRequest
	if !h.bindJSON(c, &request) {
		return
	}
	view, err := h.articles.Create(c.Request.Context(), currentUserID(c), articles.CreateInput{
		Title:    request.Title,
		Content:  request.Content,
		ParentID: request.ParentID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *httpHandler) handleCreateComment(c *gin.Context) {
	var request createCommentRequest
	if !h.bindJSON(c, &request) {
		return
	}
	view, err := h.articles.CreateComment(c.Request.Context(), currentUserID(c), articles.CommentInput{
		ParentID: request.ParentID,
		Content:  request.Content,
		Title:    request.Title,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *httpHandler) handleListArticles(c *gin.Context) {
	list, err := h.articles.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *httpHandler) handleSearchArticles(c *gin.Context) {
	var request searchArticlesRequest
	if !h.bindQuery(c, &request) {
		return
	}
	sortBy := articles.SortField(request.SortBy)
	if sortBy == "" {
		sortBy = articles.SortByCreatedAt
	}
	result, err := h.articles.Search(c.Request.Context(), articles.SearchQuery{
		Text:       request.Query,
		AuthorID:   request.AuthorID,
		Page:       request.Page,
		Limit:      request.Limit,
		SortBy:     sortBy,
		Descending: !strings.EqualFold(request.SortOrder, "ASC"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type articleDetailResponse struct {
	articles.Detail
	Images []images.Image `json:"images"`
}

func (h *httpHandler) handleGetArticle(c *gin.Context) {
	detail, err := h.articles.GetWithComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	attached, err := h.images.List(c.Request.Context(), detail.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if attached == nil {
		attached = []images.Image{}
	}
	c.JSON(http.StatusOK, articleDetailResponse{Detail: detail, Images: attached})
}

func (h *httpHandler) handleUpdateArticle(c *gin.Context) {
	var request updateArticleRequest
	if !h.bindJSON(c, &request) {
		return
	}
	view, err := h.articles.Update(c.Request.Context(), c.Param("id"), currentUserID(c), articles.UpdateInput{
		Title:   request.Title,
		Content: request.Content,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *httpHandler) handleDeleteArticle(c *gin.Context) {
	if err := h.articles.Delete(c.Request.Context(), c.Param("id"), currentUserID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	comments, err := h.articles.ListComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

func (h *httpHandler) handleArticleThread(c *gin.Context) {
	depth, ok := h.depthParam(c)
	if !ok {
		return
	}
	thread, err := h.articles.LoadThread(c.Request.Context(), c.Param("id"), depth)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

func (h *httpHandler) handleCommentReplies(c *gin.Context) {
	depth, ok := h.depthParam(c)
	if !ok {
		return
	}
	replies, err := h.articles.LoadCommentReplies(c.Request.Context(), c.Param("commentId"), depth)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, replies)
}

func (h *httpHandler) handleUpvote(c *gin.Context) {
	h.respondVote(c)(h.articles.Upvote(c.Request.Context(), c.Param("id"), currentUserID(c)))
}

func (h *httpHandler) handleDownvote(c *gin.Context) {
	h.respondVote(c)(h.articles.Downvote(c.Request.Context(), c.Param("id"), currentUserID(c)))
}

func (h *httpHandler) handleVotes(c *gin.Context) {
	status, err := h.articles.Votes(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *httpHandler) respondVote(c *gin.Context) func(articles.VoteResult, error) {
	return func(result articles.VoteResult, err error) {
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *httpHandler) depthParam(c *gin.Context) (int, bool) {
	raw := strings.TrimSpace(c.Query(depthQueryKey))
	if raw == "" {
		return articles.DefaultTreeDepth, true
	}
	depth, err := strconv.Atoi(raw)
	if err != nil {
		h.respondInvalid(c, codeInvalidQuery, err)
		return 0, false
	}
	return depth, true
}
